package analyze

import (
	"sort"

	"SignalScanner/internal/domain"
)

const topSummaryCount = 5

// BuildReport aggregates scan metrics from posts and their classifications.
// The signal ratio excludes unrelated posts from its denominator: off-topic
// content says nothing about the quality of the on-topic stream.
func BuildReport(posts []domain.Post, classifications []domain.Classification, label, source, period string) domain.Report {
	report := domain.Report{
		Label:          label,
		Source:         source,
		Period:         period,
		TotalPosts:     len(posts),
		CategoryCounts: map[domain.Category]int{},
		RedFlags:       map[string]int{},
	}

	postByID := make(map[string]domain.Post, len(posts))
	for _, post := range posts {
		postByID[post.ID] = post
	}

	signalCount := 0
	for _, c := range classifications {
		report.CategoryCounts[c.Category]++
		if c.Category == domain.CategoryUnrelated {
			report.UnrelatedCount++
		}
		if c.Category.IsSignal() {
			signalCount++
		}
		for _, flag := range c.RedFlags {
			report.RedFlags[flag]++
		}
	}

	relevant := len(classifications) - report.UnrelatedCount
	if relevant > 0 {
		report.SignalRatio = float64(signalCount) / float64(relevant)
	}

	report.TopSignal = topSummaries(classifications, postByID, domain.Category.IsSignal)
	report.TopNoise = topSummaries(classifications, postByID, domain.Category.IsNoise)

	return report
}

// HealthGrade buckets a signal ratio into a letter grade for reports.
func HealthGrade(signalRatio float64) string {
	switch {
	case signalRatio >= 0.8:
		return "A+"
	case signalRatio >= 0.7:
		return "A"
	case signalRatio >= 0.6:
		return "B"
	case signalRatio >= 0.5:
		return "C"
	case signalRatio >= 0.4:
		return "D"
	default:
		return "F"
	}
}

func topSummaries(classifications []domain.Classification, postByID map[string]domain.Post, match func(domain.Category) bool) []domain.PostSummary {
	var selected []domain.Classification
	for _, c := range classifications {
		if match(c.Category) {
			if _, ok := postByID[c.PostID]; ok {
				selected = append(selected, c)
			}
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Confidence > selected[j].Confidence
	})
	if len(selected) > topSummaryCount {
		selected = selected[:topSummaryCount]
	}

	summaries := make([]domain.PostSummary, 0, len(selected))
	for _, c := range selected {
		post := postByID[c.PostID]
		summaries = append(summaries, domain.PostSummary{
			ID:          post.ID,
			Title:       post.Title,
			Score:       post.Score,
			NumComments: post.NumComments,
			URL:         post.URL,
			Category:    c.Category,
			Confidence:  c.Confidence,
		})
	}
	return summaries
}
