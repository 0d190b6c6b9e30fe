package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

// Engine partitions posts into already-classified and needing classification,
// merges results and persists new ones. The at-most-one-classification
// guarantee per (post_id, source, project) rests on the store's upsert
// semantics together with single-writer scan execution; there is no
// application-level locking.
type Engine struct {
	store     ports.ClassificationStore
	logger    *slog.Logger
	batchSize int
	unitCost  float64
}

// NewEngine wires the cache store into the analysis engine.
func NewEngine(store ports.ClassificationStore, batchSize int, unitCost float64, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Engine{store: store, logger: logger, batchSize: batchSize, unitCost: unitCost}
}

// AnalyzeWithCache serves classifications from the store where rows exist and
// sends only the misses to the classifier. Fresh results are upserted before
// being merged into the returned list. A post with a cache row is never sent
// to the classifier.
func (e *Engine) AnalyzeWithCache(ctx context.Context, posts []domain.Post, classifier ports.Classifier, source, project string) ([]domain.Classification, domain.CacheStats, error) {
	stats := domain.CacheStats{Total: len(posts)}
	if len(posts) == 0 {
		return nil, stats, nil
	}

	ids := make([]string, 0, len(posts))
	for _, post := range posts {
		ids = append(ids, post.ID)
	}

	cached, err := e.store.CachedClassifications(ctx, ids, source, project)
	if err != nil {
		return nil, stats, fmt.Errorf("load cached classifications: %w", err)
	}

	hit := make(map[string]bool, len(cached))
	for _, c := range cached {
		hit[c.PostID] = true
	}

	var misses []domain.Post
	for _, post := range posts {
		if !hit[post.ID] {
			misses = append(misses, post)
		}
	}

	e.logger.Info("cache lookup",
		"source", source, "project", project,
		"total", len(posts), "hits", len(cached), "misses", len(misses))

	results := cached
	if len(misses) > 0 {
		if err := e.store.SavePosts(ctx, misses); err != nil {
			return nil, stats, fmt.Errorf("persist posts: %w", err)
		}

		fresh, err := classifier.Classify(ctx, misses, e.batchSize, project)
		if err != nil {
			return nil, stats, fmt.Errorf("classify %d uncached posts: %w", len(misses), err)
		}
		if err := e.store.SaveClassifications(ctx, fresh); err != nil {
			return nil, stats, fmt.Errorf("persist classifications: %w", err)
		}

		results = append(results, fresh...)
		stats.New = len(fresh)
	}

	stats.Cached = len(cached)
	stats.HitRate = float64(len(cached)) / float64(len(posts))
	stats.CostSaved = e.unitCost * float64(len(cached))

	return results, stats, nil
}

// SaveScanResult records one scan's bookkeeping row.
func (e *Engine) SaveScanResult(ctx context.Context, label, source, project string, stats domain.CacheStats, signalRatio float64) error {
	record := domain.ScanRecord{
		Label:           label,
		Source:          source,
		Project:         project,
		PostsFetched:    stats.Total,
		PostsClassified: stats.New,
		PostsCached:     stats.Cached,
		SignalRatio:     signalRatio,
		ScanDate:        time.Now(),
	}
	if err := e.store.SaveScanHistory(ctx, record); err != nil {
		return fmt.Errorf("save scan history: %w", err)
	}
	return nil
}
