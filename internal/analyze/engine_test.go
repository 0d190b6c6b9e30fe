package analyze

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalScanner/internal/domain"
)

type fakeStore struct {
	cached map[string]domain.Classification

	savedPosts           []domain.Post
	savedClassifications []domain.Classification
	savedHistory         []domain.ScanRecord

	cacheErr error
}

func (f *fakeStore) SavePosts(_ context.Context, posts []domain.Post) error {
	f.savedPosts = append(f.savedPosts, posts...)
	return nil
}

func (f *fakeStore) CachedClassifications(_ context.Context, postIDs []string, _, _ string) ([]domain.Classification, error) {
	if f.cacheErr != nil {
		return nil, f.cacheErr
	}
	var out []domain.Classification
	for _, id := range postIDs {
		if c, ok := f.cached[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveClassifications(_ context.Context, classifications []domain.Classification) error {
	f.savedClassifications = append(f.savedClassifications, classifications...)
	return nil
}

func (f *fakeStore) SelectUnconsumed(context.Context, string, int, float64) ([]domain.Story, error) {
	return nil, nil
}

func (f *fakeStore) MarkConsumed(context.Context, []string, string, time.Time) error {
	return nil
}

func (f *fakeStore) SaveScanHistory(_ context.Context, record domain.ScanRecord) error {
	f.savedHistory = append(f.savedHistory, record)
	return nil
}

func (f *fakeStore) ScanHistory(context.Context, string, int) ([]domain.ScanRecord, error) {
	return nil, nil
}

type countingClassifier struct {
	calls int
	seen  []string
}

func (c *countingClassifier) Classify(_ context.Context, posts []domain.Post, _ int, project string) ([]domain.Classification, error) {
	c.calls++
	out := make([]domain.Classification, 0, len(posts))
	for _, post := range posts {
		c.seen = append(c.seen, post.ID)
		out = append(out, domain.Classification{
			PostID:   post.ID,
			Source:   post.Source,
			Project:  project,
			Category: domain.CategoryTechnical,
		})
	}
	return out, nil
}

func cachedRow(id string) domain.Classification {
	return domain.Classification{PostID: id, Source: "reddit", Project: "default", Category: domain.CategoryCommunity}
}

func postList(ids ...string) []domain.Post {
	posts := make([]domain.Post, 0, len(ids))
	for _, id := range ids {
		posts = append(posts, domain.Post{ID: id, Source: "reddit"})
	}
	return posts
}

func TestAnalyzeWithCacheAllHits(t *testing.T) {
	t.Parallel()

	store := &fakeStore{cached: map[string]domain.Classification{
		"reddit_a": cachedRow("reddit_a"),
		"reddit_b": cachedRow("reddit_b"),
	}}
	classifier := &countingClassifier{}
	engine := NewEngine(store, 20, 0.01, nil)

	results, stats, err := engine.AnalyzeWithCache(context.Background(), postList("reddit_a", "reddit_b"), classifier, "reddit", "default")
	if err != nil {
		t.Fatalf("AnalyzeWithCache error: %v", err)
	}

	if classifier.calls != 0 {
		t.Fatalf("fully cached scan must not call the classifier, got %d calls", classifier.calls)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 classifications, got %d", len(results))
	}
	if stats.Cached != 2 || stats.New != 0 || stats.HitRate != 1.0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.CostSaved != 0.02 {
		t.Fatalf("unexpected cost estimate: %f", stats.CostSaved)
	}
	if len(store.savedPosts) != 0 || len(store.savedClassifications) != 0 {
		t.Fatal("fully cached scan must not write")
	}
}

func TestAnalyzeWithCacheMixed(t *testing.T) {
	t.Parallel()

	store := &fakeStore{cached: map[string]domain.Classification{
		"reddit_a": cachedRow("reddit_a"),
	}}
	classifier := &countingClassifier{}
	engine := NewEngine(store, 20, 0.01, nil)

	results, stats, err := engine.AnalyzeWithCache(context.Background(), postList("reddit_a", "reddit_b", "reddit_c"), classifier, "reddit", "default")
	if err != nil {
		t.Fatalf("AnalyzeWithCache error: %v", err)
	}

	if len(classifier.seen) != 2 {
		t.Fatalf("expected only misses to reach the classifier, saw %v", classifier.seen)
	}
	for _, id := range classifier.seen {
		if id == "reddit_a" {
			t.Fatal("cached post sent to classifier")
		}
	}
	if len(results) != 3 {
		t.Fatalf("expected merged results for all posts, got %d", len(results))
	}
	if stats.Cached != 1 || stats.New != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if want := 1.0 / 3.0; stats.HitRate != want {
		t.Fatalf("unexpected hit rate: %f", stats.HitRate)
	}
	if len(store.savedPosts) != 2 {
		t.Fatalf("expected misses persisted before classification, got %d", len(store.savedPosts))
	}
	if len(store.savedClassifications) != 2 {
		t.Fatalf("expected fresh classifications persisted, got %d", len(store.savedClassifications))
	}
}

func TestAnalyzeWithCacheEmptyInput(t *testing.T) {
	t.Parallel()

	engine := NewEngine(&fakeStore{}, 20, 0.01, nil)
	results, stats, err := engine.AnalyzeWithCache(context.Background(), nil, &countingClassifier{}, "reddit", "default")
	if err != nil {
		t.Fatalf("AnalyzeWithCache error: %v", err)
	}
	if len(results) != 0 || stats.Total != 0 {
		t.Fatalf("expected empty result, got %v %+v", results, stats)
	}
}

func TestAnalyzeWithCacheStoreFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStore{cacheErr: errors.New("connection refused")}
	engine := NewEngine(store, 20, 0.01, nil)

	_, _, err := engine.AnalyzeWithCache(context.Background(), postList("reddit_a"), &countingClassifier{}, "reddit", "default")
	if err == nil {
		t.Fatal("expected cache lookup failure to propagate")
	}
}

func TestSaveScanResult(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	engine := NewEngine(store, 20, 0.01, nil)

	stats := domain.CacheStats{Total: 10, Cached: 4, New: 6}
	if err := engine.SaveScanResult(context.Background(), "ClaudeAI", "reddit", "default", stats, 0.57); err != nil {
		t.Fatalf("SaveScanResult error: %v", err)
	}

	if len(store.savedHistory) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(store.savedHistory))
	}
	record := store.savedHistory[0]
	if record.Label != "ClaudeAI" || record.PostsFetched != 10 || record.PostsCached != 4 || record.PostsClassified != 6 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.ScanDate.IsZero() {
		t.Fatal("scan date not set")
	}
}
