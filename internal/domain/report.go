package domain

import "sort"

// CacheStats reports how a scan split between cache hits and fresh calls.
// Monitoring signal only, not a correctness guarantee.
type CacheStats struct {
	Total     int
	Cached    int
	New       int
	HitRate   float64
	CostSaved float64 // estimated, unit cost per classification times hits
}

// PostSummary is condensed post information for reports.
type PostSummary struct {
	ID          string
	Title       string
	Score       int
	NumComments int
	URL         string
	Category    Category
	Confidence  float64
}

// ProjectStats summarizes the durable cache: overall row counts plus the
// per-category breakdown for one project.
type ProjectStats struct {
	TotalPosts             int
	TotalClassifications   int
	ProjectClassifications int
	ConsumedCount          int
	CategoryCounts         map[Category]int
}

// CategoryCount pairs a category with its row count for ordered display.
type CategoryCount struct {
	Category Category
	Count    int
}

// SignalCount sums the signal category rows.
func (s ProjectStats) SignalCount() int {
	total := 0
	for _, category := range SignalCategories() {
		total += s.CategoryCounts[category]
	}
	return total
}

// NoiseCount sums the noise category rows.
func (s ProjectStats) NoiseCount() int {
	total := 0
	for _, category := range NoiseCategories() {
		total += s.CategoryCounts[category]
	}
	return total
}

// SortedCategories returns the breakdown largest first, ties by name.
func (s ProjectStats) SortedCategories() []CategoryCount {
	counts := make([]CategoryCount, 0, len(s.CategoryCounts))
	for category, count := range s.CategoryCounts {
		counts = append(counts, CategoryCount{Category: category, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Category < counts[j].Category
	})
	return counts
}

// Report aggregates the metrics of one scan.
type Report struct {
	Label          string
	Source         string
	Period         string
	TotalPosts     int
	CategoryCounts map[Category]int
	SignalRatio    float64 // denominator excludes unrelated posts
	UnrelatedCount int
	RedFlags       map[string]int
	TopSignal      []PostSummary
	TopNoise       []PostSummary
}
