package domain

import "time"

// Category is the closed classification taxonomy.
type Category string

const (
	// Signal: content worth surfacing.
	CategoryTechnical        Category = "technical"
	CategoryTroubleshooting  Category = "troubleshooting"
	CategoryResearchVerified Category = "research_verified"

	// Noise: low-value or unreliable content.
	CategoryMystical        Category = "mystical"
	CategoryUnverifiedClaim Category = "unverified_claim"
	CategoryEngagementBait  Category = "engagement_bait"

	// Meta.
	CategoryCommunity Category = "community"
	CategoryMeme      Category = "meme"

	CategoryOutlier   Category = "outlier"
	CategoryUnrelated Category = "unrelated"
)

// SignalCategories lists categories considered useful output.
func SignalCategories() []Category {
	return []Category{CategoryTechnical, CategoryTroubleshooting, CategoryResearchVerified}
}

// NoiseCategories lists categories considered low-value.
func NoiseCategories() []Category {
	return []Category{CategoryMystical, CategoryUnverifiedClaim, CategoryEngagementBait}
}

// IsSignal reports whether c is a signal category.
func (c Category) IsSignal() bool {
	return c == CategoryTechnical || c == CategoryTroubleshooting || c == CategoryResearchVerified
}

// IsNoise reports whether c is a noise category.
func (c Category) IsNoise() bool {
	return c == CategoryMystical || c == CategoryUnverifiedClaim || c == CategoryEngagementBait
}

// Valid reports whether c is a member of the taxonomy.
func (c Category) Valid() bool {
	switch c {
	case CategoryTechnical, CategoryTroubleshooting, CategoryResearchVerified,
		CategoryMystical, CategoryUnverifiedClaim, CategoryEngagementBait,
		CategoryCommunity, CategoryMeme, CategoryOutlier, CategoryUnrelated:
		return true
	}
	return false
}

// Classification is the durable judgment for one post within a project.
// At most one row exists per (PostID, Source, Project); the store enforces
// this with upsert-on-conflict.
type Classification struct {
	PostID     string
	Source     string
	Project    string
	Category   Category
	Confidence float64
	RedFlags   []string
	Reasoning  string
	TopicTags  []string
	FormatTag  string

	// Optional second-pass tier enrichment.
	TierTags     map[string][]string
	TierClusters []string
	TierScoring  *int

	ModelVersion string
	ClassifiedAt time.Time

	// Set once when the post is consumed by a digest; never cleared.
	SentInDigestAt *time.Time
}

// ScanRecord is one row of scan history bookkeeping.
type ScanRecord struct {
	Label           string // subreddit name or source label such as "HackerNews"
	Source          string
	Project         string
	PostsFetched    int
	PostsClassified int
	PostsCached     int
	SignalRatio     float64
	ScanDate        time.Time
}
