package classify

import (
	"strings"

	"SignalScanner/internal/domain"
)

// categoryCorrections maps labels the model tends to hallucinate onto the
// closest valid taxonomy member. Keys are compared lowercase.
var categoryCorrections = map[string]domain.Category{
	"discussion":    domain.CategoryCommunity,
	"conversation":  domain.CategoryCommunity,
	"announcement":  domain.CategoryCommunity,
	"humor":         domain.CategoryMeme,
	"humour":        domain.CategoryMeme,
	"joke":          domain.CategoryMeme,
	"funny":         domain.CategoryMeme,
	"question":      domain.CategoryTroubleshooting,
	"help":          domain.CategoryTroubleshooting,
	"support":       domain.CategoryTroubleshooting,
	"bug":           domain.CategoryTroubleshooting,
	"news":          domain.CategoryTechnical,
	"tutorial":      domain.CategoryTechnical,
	"showcase":      domain.CategoryTechnical,
	"research":      domain.CategoryResearchVerified,
	"paper":         domain.CategoryResearchVerified,
	"off_topic":     domain.CategoryUnrelated,
	"offtopic":      domain.CategoryUnrelated,
	"off-topic":     domain.CategoryUnrelated,
	"irrelevant":    domain.CategoryUnrelated,
	"spam":          domain.CategoryEngagementBait,
	"clickbait":     domain.CategoryEngagementBait,
	"promotion":     domain.CategoryEngagementBait,
	"speculation":   domain.CategoryUnverifiedClaim,
	"unverified":    domain.CategoryUnverifiedClaim,
	"claim":         domain.CategoryUnverifiedClaim,
	"philosophical": domain.CategoryMystical,
	"spiritual":     domain.CategoryMystical,
	"other":         domain.CategoryOutlier,
	"misc":          domain.CategoryOutlier,
	"uncategorized": domain.CategoryOutlier,
}

// NormalizeCategory maps a raw model label onto the taxonomy. The second
// return value is false when the label is neither valid nor correctable;
// callers drop that single item rather than failing the batch.
func NormalizeCategory(raw string) (domain.Category, bool) {
	candidate := domain.Category(raw)
	if candidate.Valid() {
		return candidate, true
	}
	if corrected, ok := categoryCorrections[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return corrected, true
	}
	return "", false
}
