package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"SignalScanner/internal/domain"
)

type bookmarkStore struct {
	saved   []domain.Bookmark
	saveErr error

	listed    []domain.Bookmark
	gotStatus domain.BookmarkStatus
	gotLimit  int

	updated   map[string]domain.BookmarkStatus
	updateErr error
}

func (s *bookmarkStore) SaveBookmark(_ context.Context, bookmark domain.Bookmark) (bool, error) {
	if s.saveErr != nil {
		return false, s.saveErr
	}
	for _, existing := range s.saved {
		if existing.StoryID == bookmark.StoryID {
			return false, nil
		}
	}
	s.saved = append(s.saved, bookmark)
	return true, nil
}

func (s *bookmarkStore) Bookmarks(_ context.Context, status domain.BookmarkStatus, limit int) ([]domain.Bookmark, error) {
	s.gotStatus = status
	s.gotLimit = limit
	return s.listed, nil
}

func (s *bookmarkStore) UpdateBookmarkStatus(_ context.Context, storyID string, status domain.BookmarkStatus) (bool, error) {
	if s.updateErr != nil {
		return false, s.updateErr
	}
	if s.updated == nil {
		s.updated = map[string]domain.BookmarkStatus{}
	}
	for _, existing := range s.saved {
		if existing.StoryID == storyID {
			s.updated[storyID] = status
			return true, nil
		}
	}
	return false, nil
}

const digestArtifact = `{
  "digest_id": "d1",
  "project": "default",
  "generated_at": "2026-03-14T09:30:00Z",
  "stories": [
    {
      "id": "2026-03-14-001",
      "post_id": "reddit_a",
      "source": "reddit",
      "title": "Tracing allocator stalls",
      "url": "https://example.com/a",
      "category": "technical",
      "confidence": 0.93,
      "topic_tags": ["performance"],
      "format_tag": "deep_dive"
    },
    {
      "id": "2026-03-14-002",
      "post_id": "hn_42",
      "source": "hackernews",
      "title": "Second story",
      "url": "https://example.com/b",
      "category": "troubleshooting",
      "confidence": 0.81
    }
  ]
}`

func writeArtifact(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(digestArtifact), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
}

func TestBookmarksAddCopiesStoryFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArtifact(t, dir, "digest_default_2026-03-14_093000.json")
	store := &bookmarkStore{}
	bookmarks := NewBookmarks(store, dir)

	saved, created, err := bookmarks.Add(context.Background(), "2026-03-14-001", "try the flamegraph trick", domain.BookmarkToImplement)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if !created {
		t.Fatal("first add must report created")
	}

	if saved.StoryID != "2026-03-14-001" || saved.DigestDate != "2026-03-14" {
		t.Fatalf("unexpected identity fields: %+v", saved)
	}
	if saved.PostID != "reddit_a" || saved.Title != "Tracing allocator stalls" || saved.URL != "https://example.com/a" {
		t.Fatalf("story fields not copied: %+v", saved)
	}
	if saved.Category != domain.CategoryTechnical || saved.FormatTag != "deep_dive" {
		t.Fatalf("classification fields not copied: %+v", saved)
	}
	if len(saved.TopicTags) != 1 || saved.TopicTags[0] != "performance" {
		t.Fatalf("topic tags not copied: %v", saved.TopicTags)
	}
	if saved.Notes != "try the flamegraph trick" || saved.Status != domain.BookmarkToImplement {
		t.Fatalf("note or status lost: %+v", saved)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one stored bookmark, got %d", len(store.saved))
	}
}

func TestBookmarksAddDuplicateReportsExisting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArtifact(t, dir, "digest_default_2026-03-14_093000.json")
	store := &bookmarkStore{}
	bookmarks := NewBookmarks(store, dir)

	if _, created, err := bookmarks.Add(context.Background(), "2026-03-14-002", "", ""); err != nil || !created {
		t.Fatalf("first add: created=%v err=%v", created, err)
	}
	_, created, err := bookmarks.Add(context.Background(), "2026-03-14-002", "", "")
	if err != nil {
		t.Fatalf("duplicate add must not error: %v", err)
	}
	if created {
		t.Fatal("duplicate add must report the existing bookmark")
	}
	if len(store.saved) != 1 {
		t.Fatalf("duplicate add must not store a second row, got %d", len(store.saved))
	}
}

func TestBookmarksAddDefaultsStatus(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArtifact(t, dir, "digest_default_2026-03-14_093000.json")
	bookmarks := NewBookmarks(&bookmarkStore{}, dir)

	saved, _, err := bookmarks.Add(context.Background(), "2026-03-14-001", "", "")
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if saved.Status != domain.BookmarkToRead {
		t.Fatalf("empty status must default to to_read, got %s", saved.Status)
	}
}

func TestBookmarksAddUnknownStory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArtifact(t, dir, "digest_default_2026-03-14_093000.json")
	bookmarks := NewBookmarks(&bookmarkStore{}, dir)

	_, _, err := bookmarks.Add(context.Background(), "2026-03-14-099", "", "")
	if !errors.Is(err, ErrStoryNotFound) {
		t.Fatalf("expected ErrStoryNotFound, got %v", err)
	}
}

func TestBookmarksAddMissingDigest(t *testing.T) {
	t.Parallel()

	bookmarks := NewBookmarks(&bookmarkStore{}, t.TempDir())

	_, _, err := bookmarks.Add(context.Background(), "2026-03-14-001", "", "")
	if !errors.Is(err, ErrDigestArtifactNotFound) {
		t.Fatalf("expected ErrDigestArtifactNotFound, got %v", err)
	}
}

func TestBookmarksAddMalformedID(t *testing.T) {
	t.Parallel()

	bookmarks := NewBookmarks(&bookmarkStore{}, t.TempDir())

	if _, _, err := bookmarks.Add(context.Background(), "42", "", ""); err == nil {
		t.Fatal("expected story id validation error")
	}
}

func TestBookmarksArtifactLatest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArtifact(t, dir, "latest.json")
	bookmarks := NewBookmarks(&bookmarkStore{}, dir)

	artifact, err := bookmarks.Artifact("latest")
	if err != nil {
		t.Fatalf("Artifact error: %v", err)
	}
	if artifact.DigestID != "d1" || len(artifact.Stories) != 2 {
		t.Fatalf("unexpected artifact: %+v", artifact)
	}

	// Empty ref means latest too.
	if _, err := bookmarks.Artifact(""); err != nil {
		t.Fatalf("empty ref: %v", err)
	}
}

func TestBookmarksArtifactByDatePicksNewest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArtifact(t, dir, "digest_default_2026-03-14_080000.json")
	writeArtifact(t, dir, "digest_default_2026-03-14_093000.json")
	bookmarks := NewBookmarks(&bookmarkStore{}, dir)

	if _, err := bookmarks.Artifact("2026-03-14"); err != nil {
		t.Fatalf("Artifact error: %v", err)
	}
	if _, err := bookmarks.Artifact("2026-03-15"); !errors.Is(err, ErrDigestArtifactNotFound) {
		t.Fatalf("expected ErrDigestArtifactNotFound for empty day, got %v", err)
	}
	if _, err := bookmarks.Artifact("yesterday"); err == nil {
		t.Fatal("expected ref validation error")
	}
}

func TestBookmarksListDefaultsLimit(t *testing.T) {
	t.Parallel()

	store := &bookmarkStore{listed: []domain.Bookmark{{StoryID: "2026-03-14-001"}}}
	bookmarks := NewBookmarks(store, t.TempDir())

	got, err := bookmarks.List(context.Background(), domain.BookmarkToRead, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected passthrough of stored bookmarks, got %d", len(got))
	}
	if store.gotStatus != domain.BookmarkToRead || store.gotLimit != 20 {
		t.Fatalf("unexpected store call: status=%s limit=%d", store.gotStatus, store.gotLimit)
	}
}

func TestBookmarksSetStatus(t *testing.T) {
	t.Parallel()

	store := &bookmarkStore{saved: []domain.Bookmark{{StoryID: "2026-03-14-001"}}}
	bookmarks := NewBookmarks(store, t.TempDir())

	if err := bookmarks.SetStatus(context.Background(), "2026-03-14-001", domain.BookmarkDone); err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}
	if store.updated["2026-03-14-001"] != domain.BookmarkDone {
		t.Fatalf("status not updated: %v", store.updated)
	}

	err := bookmarks.SetStatus(context.Background(), "2026-03-14-099", domain.BookmarkDone)
	if !errors.Is(err, ErrBookmarkNotFound) {
		t.Fatalf("expected ErrBookmarkNotFound, got %v", err)
	}
}
