package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"SignalScanner/internal/digest"
	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

var (
	// ErrDigestArtifactNotFound means no JSON digest artifact exists for the
	// requested date, or latest.json has not been written yet.
	ErrDigestArtifactNotFound = errors.New("digest artifact not found")

	// ErrStoryNotFound means the artifact exists but carries no story with the
	// requested id.
	ErrStoryNotFound = errors.New("story not found in digest")

	// ErrBookmarkNotFound means no bookmark row matches the story id.
	ErrBookmarkNotFound = errors.New("bookmark not found")
)

// Bookmarks saves digest stories for later reading. Stories are addressed by
// the artifact ids embedded in the JSON digests, so adding a bookmark reads
// the artifact back from the output directory and copies the story fields
// into the store.
type Bookmarks struct {
	store     ports.BookmarkStore
	outputDir string
}

// NewBookmarks wires the bookmark workflow against the digest output directory.
func NewBookmarks(store ports.BookmarkStore, outputDir string) *Bookmarks {
	return &Bookmarks{store: store, outputDir: outputDir}
}

// Artifact loads a digest artifact. The ref is either "latest" (or empty) for
// the stable latest.json pointer, or a date like 2026-08-31 addressing the
// newest JSON digest generated on that day.
func (b *Bookmarks) Artifact(ref string) (digest.Artifact, error) {
	path, err := b.artifactPath(ref)
	if err != nil {
		return digest.Artifact{}, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return digest.Artifact{}, fmt.Errorf("%w: %s", ErrDigestArtifactNotFound, path)
		}
		return digest.Artifact{}, fmt.Errorf("read digest artifact: %w", err)
	}
	return digest.DecodeArtifact(raw)
}

func (b *Bookmarks) artifactPath(ref string) (string, error) {
	if ref == "" || ref == "latest" {
		return filepath.Join(b.outputDir, "latest.json"), nil
	}

	if _, err := time.Parse("2006-01-02", ref); err != nil {
		return "", fmt.Errorf("digest ref must be 'latest' or a date like 2006-01-02, got %q", ref)
	}

	matches, err := filepath.Glob(filepath.Join(b.outputDir, "digest_*_"+ref+"_*.json"))
	if err != nil {
		return "", fmt.Errorf("list digest artifacts: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no JSON digest for %s", ErrDigestArtifactNotFound, ref)
	}

	// File names embed the generation timestamp, so the lexicographic maximum
	// is the newest digest of that day.
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// Add saves the story behind an artifact id. The digest date is the id prefix,
// so the matching artifact is located without the caller naming it. A story
// already bookmarked is left untouched and reported with created=false.
func (b *Bookmarks) Add(ctx context.Context, storyID, notes string, status domain.BookmarkStatus) (domain.Bookmark, bool, error) {
	if len(storyID) < len("2006-01-02-001") {
		return domain.Bookmark{}, false, fmt.Errorf("story id must look like 2006-01-02-001, got %q", storyID)
	}
	date := storyID[:len("2006-01-02")]

	artifact, err := b.Artifact(date)
	if err != nil {
		return domain.Bookmark{}, false, err
	}
	story, ok := artifact.Story(storyID)
	if !ok {
		return domain.Bookmark{}, false, fmt.Errorf("%w: %s", ErrStoryNotFound, storyID)
	}

	if status == "" {
		status = domain.BookmarkToRead
	}
	bookmark := domain.Bookmark{
		StoryID:    story.ID,
		DigestDate: date,
		PostID:     story.PostID,
		Title:      story.Title,
		URL:        story.URL,
		Source:     story.Source,
		Category:   domain.Category(story.Category),
		TopicTags:  story.TopicTags,
		FormatTag:  story.FormatTag,
		Notes:      notes,
		Status:     status,
	}

	created, err := b.store.SaveBookmark(ctx, bookmark)
	if err != nil {
		return domain.Bookmark{}, false, fmt.Errorf("save bookmark: %w", err)
	}
	return bookmark, created, nil
}

// List returns saved stories newest first. An empty status means all.
func (b *Bookmarks) List(ctx context.Context, status domain.BookmarkStatus, limit int) ([]domain.Bookmark, error) {
	if limit <= 0 {
		limit = 20
	}
	return b.store.Bookmarks(ctx, status, limit)
}

// SetStatus moves a bookmark to the given workflow status.
func (b *Bookmarks) SetStatus(ctx context.Context, storyID string, status domain.BookmarkStatus) error {
	found, err := b.store.UpdateBookmarkStatus(ctx, storyID, status)
	if err != nil {
		return fmt.Errorf("update bookmark: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrBookmarkNotFound, storyID)
	}
	return nil
}
