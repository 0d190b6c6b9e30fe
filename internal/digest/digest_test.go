package digest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"SignalScanner/internal/domain"
)

type digestStore struct {
	stories []domain.Story

	selectErr error
	markErr   error

	consumed   [][]string
	consumedAt time.Time
}

func (s *digestStore) SavePosts(context.Context, []domain.Post) error { return nil }

func (s *digestStore) CachedClassifications(context.Context, []string, string, string) ([]domain.Classification, error) {
	return nil, nil
}

func (s *digestStore) SaveClassifications(context.Context, []domain.Classification) error {
	return nil
}

func (s *digestStore) SelectUnconsumed(_ context.Context, _ string, limit int, _ float64) ([]domain.Story, error) {
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	if limit > 0 && limit < len(s.stories) {
		return s.stories[:limit], nil
	}
	return s.stories, nil
}

func (s *digestStore) MarkConsumed(_ context.Context, postIDs []string, _ string, at time.Time) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.consumed = append(s.consumed, postIDs)
	s.consumedAt = at
	return nil
}

func (s *digestStore) SaveScanHistory(context.Context, domain.ScanRecord) error { return nil }

func (s *digestStore) ScanHistory(context.Context, string, int) ([]domain.ScanRecord, error) {
	return nil, nil
}

type staticArticleTemplates struct {
	template string
}

func (s staticArticleTemplates) DigestTemplate(string) (string, bool) {
	return s.template, s.template != ""
}

type stubCompleter struct {
	reply string
	err   error
}

func (s stubCompleter) Complete(context.Context, string) (string, error) {
	return s.reply, s.err
}

func story(id, title string) domain.Story {
	return domain.Story{
		Post: domain.Post{ID: id, Source: "reddit", Title: title, URL: "https://example.com/" + id, Score: 100},
		Classification: domain.Classification{
			PostID: id, Source: "reddit", Project: "default",
			Category: domain.CategoryTechnical, Confidence: 0.9,
		},
	}
}

func newTestGenerator(t *testing.T, store *digestStore) *Generator {
	t.Helper()
	g := NewGenerator(store, nil, nil, nil, t.TempDir(), nil)
	g.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	g.newID = func() string { return "digest-fixed-id" }
	return g
}

func TestGenerateBothFormatsShareStories(t *testing.T) {
	t.Parallel()

	store := &digestStore{stories: []domain.Story{story("reddit_a", "First"), story("reddit_b", "Second")}}
	g := newTestGenerator(t, store)

	d, paths, err := g.Generate(context.Background(), "default", 10, 0.7, FormatMarkdown, FormatJSON)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	if len(paths) != 2 {
		t.Fatalf("expected 2 artifacts, got %v", paths)
	}

	md, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read markdown artifact: %v", err)
	}
	if !strings.Contains(string(md), "## 1. First") || !strings.Contains(string(md), "## 2. Second") {
		t.Fatalf("markdown missing ordered stories:\n%s", md)
	}

	raw, err := os.ReadFile(paths[1])
	if err != nil {
		t.Fatalf("read json artifact: %v", err)
	}
	var decoded struct {
		DigestID string `json:"digest_id"`
		Stories  []struct {
			PostID string `json:"post_id"`
		} `json:"stories"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode json artifact: %v", err)
	}
	if decoded.DigestID != d.ID {
		t.Fatalf("json digest id %s, want %s", decoded.DigestID, d.ID)
	}
	if len(decoded.Stories) != 2 || decoded.Stories[0].PostID != "reddit_a" || decoded.Stories[1].PostID != "reddit_b" {
		t.Fatalf("json stories diverge from selection: %+v", decoded.Stories)
	}

	if len(store.consumed) != 1 {
		t.Fatalf("expected exactly one consumption update, got %d", len(store.consumed))
	}
	if got := store.consumed[0]; len(got) != 2 || got[0] != "reddit_a" || got[1] != "reddit_b" {
		t.Fatalf("unexpected consumed ids: %v", got)
	}
}

func TestGenerateRenderFailureLeavesUnconsumed(t *testing.T) {
	t.Parallel()

	store := &digestStore{stories: []domain.Story{story("reddit_a", "First")}}
	g := newTestGenerator(t, store)
	outputDir := g.outputDir
	g.renderers[FormatJSON] = func(domain.Digest) ([]byte, error) {
		return nil, errors.New("render exploded")
	}

	_, _, err := g.Generate(context.Background(), "default", 10, 0.7, FormatMarkdown, FormatJSON)
	if err == nil {
		t.Fatal("expected render failure to abort generation")
	}

	if len(store.consumed) != 0 {
		t.Fatal("render failure must leave consumption markers untouched")
	}
	entries, _ := os.ReadDir(outputDir)
	if len(entries) != 0 {
		t.Fatalf("render failure must not leave artifacts, found %d", len(entries))
	}
}

func TestGenerateNoEligiblePosts(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t, &digestStore{})

	_, _, err := g.Generate(context.Background(), "default", 10, 0.7, FormatMarkdown)
	if !errors.Is(err, ErrNoEligiblePosts) {
		t.Fatalf("expected ErrNoEligiblePosts, got %v", err)
	}
}

func TestGenerateMarkConsumedFailurePropagates(t *testing.T) {
	t.Parallel()

	store := &digestStore{
		stories: []domain.Story{story("reddit_a", "First")},
		markErr: errors.New("deadlock detected"),
	}
	g := newTestGenerator(t, store)

	_, _, err := g.Generate(context.Background(), "default", 10, 0.7, FormatMarkdown)
	if err == nil {
		t.Fatal("expected mark consumed failure to propagate")
	}
}

func TestGenerateUnknownFormat(t *testing.T) {
	t.Parallel()

	store := &digestStore{stories: []domain.Story{story("reddit_a", "First")}}
	g := newTestGenerator(t, store)

	_, _, err := g.Generate(context.Background(), "default", 10, 0.7, Format("pdf"))
	if err == nil {
		t.Fatal("expected unknown format error")
	}
	if len(store.consumed) != 0 {
		t.Fatal("unknown format must not consume stories")
	}
}

func TestSelectDoesNotConsume(t *testing.T) {
	t.Parallel()

	store := &digestStore{stories: []domain.Story{story("reddit_a", "First")}}
	g := newTestGenerator(t, store)

	stories, err := g.Select(context.Background(), "default", 10, 0.7)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if len(stories) != 1 {
		t.Fatalf("expected 1 story, got %d", len(stories))
	}
	if len(store.consumed) != 0 {
		t.Fatal("dry-run selection must not consume")
	}
}

func TestGenerateArticleEnrichment(t *testing.T) {
	t.Parallel()

	store := &digestStore{stories: []domain.Story{story("reddit_a", "Raw Title")}}
	completer := stubCompleter{reply: "```json\n{\"article_title\": \"Polished Title\", \"article_body\": \"Edited body.\", \"radio_commentary\": \"On air.\"}\n```"}
	g := NewGenerator(store, completer, staticArticleTemplates{template: "Write about {title} ({category})"}, nil, t.TempDir(), nil)
	g.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	g.newID = func() string { return "digest-fixed-id" }

	d, paths, err := g.Generate(context.Background(), "default", 10, 0.7, FormatMarkdown)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	if d.Stories[0].Article.Title != "Polished Title" {
		t.Fatalf("article not attached: %+v", d.Stories[0].Article)
	}

	md, _ := os.ReadFile(paths[0])
	if !strings.Contains(string(md), "## 1. Polished Title") {
		t.Fatalf("markdown ignores generated article:\n%s", md)
	}
	if !strings.Contains(string(md), "### Commentary") || !strings.Contains(string(md), "On air.") {
		t.Fatalf("markdown missing commentary:\n%s", md)
	}
}

func TestGenerateArticleFailureFallsBack(t *testing.T) {
	t.Parallel()

	store := &digestStore{stories: []domain.Story{story("reddit_a", "Raw Title")}}
	completer := stubCompleter{err: errors.New("model unavailable")}
	g := NewGenerator(store, completer, staticArticleTemplates{template: "{title}"}, nil, t.TempDir(), nil)
	g.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	g.newID = func() string { return "digest-fixed-id" }

	d, paths, err := g.Generate(context.Background(), "default", 10, 0.7, FormatMarkdown)
	if err != nil {
		t.Fatalf("article failure must not fail the digest: %v", err)
	}

	if d.Stories[0].Article.Title != "" {
		t.Fatalf("expected empty article after failure, got %+v", d.Stories[0].Article)
	}
	md, _ := os.ReadFile(paths[0])
	if !strings.Contains(string(md), "## 1. Raw Title") {
		t.Fatalf("markdown missing raw fallback title:\n%s", md)
	}
	if len(store.consumed) != 1 {
		t.Fatal("digest with fallback stories must still consume")
	}
}

func TestGenerateRefreshesLatestJSON(t *testing.T) {
	t.Parallel()

	store := &digestStore{stories: []domain.Story{story("reddit_a", "First")}}
	g := newTestGenerator(t, store)

	_, paths, err := g.Generate(context.Background(), "default", 10, 0.7, FormatJSON)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	latest := filepath.Join(g.outputDir, "latest.json")
	pointer, err := os.ReadFile(latest)
	if err != nil {
		t.Fatalf("latest.json not written: %v", err)
	}
	artifact, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read json artifact: %v", err)
	}
	if !bytes.Equal(pointer, artifact) {
		t.Fatal("latest.json diverges from the dated artifact")
	}

	// A later digest replaces the pointer.
	store.stories = []domain.Story{story("reddit_b", "Second")}
	g.now = func() time.Time { return time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC) }
	if _, _, err := g.Generate(context.Background(), "default", 10, 0.7, FormatJSON); err != nil {
		t.Fatalf("second Generate error: %v", err)
	}
	pointer, _ = os.ReadFile(latest)
	if !strings.Contains(string(pointer), "reddit_b") {
		t.Fatalf("latest.json not refreshed by the newer digest:\n%s", pointer)
	}
}

func TestMarkdownFormatDoesNotWriteLatest(t *testing.T) {
	t.Parallel()

	store := &digestStore{stories: []domain.Story{story("reddit_a", "First")}}
	g := newTestGenerator(t, store)

	if _, _, err := g.Generate(context.Background(), "default", 10, 0.7, FormatMarkdown); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(g.outputDir, "latest.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("latest.json must track JSON artifacts only, stat: %v", err)
	}
}

func TestRenderJSONAssignsStoryIDs(t *testing.T) {
	t.Parallel()

	d := domain.Digest{
		ID:          "d1",
		Project:     "default",
		GeneratedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Stories:     []domain.Story{story("reddit_a", "First"), story("reddit_b", "Second")},
	}

	raw, err := RenderJSON(d)
	if err != nil {
		t.Fatalf("RenderJSON error: %v", err)
	}
	artifact, err := DecodeArtifact(raw)
	if err != nil {
		t.Fatalf("DecodeArtifact error: %v", err)
	}

	if artifact.Stories[0].ID != "2026-03-14-001" || artifact.Stories[1].ID != "2026-03-14-002" {
		t.Fatalf("unexpected story ids: %s, %s", artifact.Stories[0].ID, artifact.Stories[1].ID)
	}

	found, ok := artifact.Story("2026-03-14-002")
	if !ok || found.PostID != "reddit_b" {
		t.Fatalf("story lookup by id failed: %+v ok=%v", found, ok)
	}
	if _, ok := artifact.Story("2026-03-14-099"); ok {
		t.Fatal("lookup of an absent id must miss")
	}
}

func TestRenderJSONOmitsEmptyArticle(t *testing.T) {
	t.Parallel()

	d := domain.Digest{
		ID:          "d1",
		Project:     "default",
		GeneratedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Stories:     []domain.Story{story("reddit_a", "First")},
	}

	raw, err := RenderJSON(d)
	if err != nil {
		t.Fatalf("RenderJSON error: %v", err)
	}
	if strings.Contains(string(raw), "article_title") {
		t.Fatalf("empty article fields must be omitted:\n%s", raw)
	}
	if !strings.Contains(string(raw), `"generated_at": "2026-03-14T09:30:00Z"`) {
		t.Fatalf("unexpected timestamp encoding:\n%s", raw)
	}
}
