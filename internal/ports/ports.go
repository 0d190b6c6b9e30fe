package ports

import (
	"context"
	"fmt"
	"time"

	"SignalScanner/internal/domain"
)

// Completer sends a prompt to the LLM service and returns the raw reply text.
// Implementations map provider failures onto the closed error set below so
// callers branch on error types, never on message substrings.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// RefusalError signals the provider declined to process the content.
// Recoverable by batch splitting; terminal for an individual post.
type RefusalError struct {
	Reason string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("provider refused request: %s", e.Reason)
}

// AuthError signals a credential problem. Fatal, never retried.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (status %d)", e.Status)
}

// TransportError covers network failures, server errors, and empty replies.
// Fatal for the batch, never retried by the batcher.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm transport failure: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Classifier turns raw posts into classification records.
type Classifier interface {
	Classify(ctx context.Context, posts []domain.Post, batchSize int, project string) ([]domain.Classification, error)
}

// ClassificationStore is the durable cache backing the analysis engine and
// the digest consumption protocol.
type ClassificationStore interface {
	// SavePosts inserts posts that are not yet known; existing rows are left as is.
	SavePosts(ctx context.Context, posts []domain.Post) error

	// CachedClassifications returns existing rows keyed by (post id, source, project).
	CachedClassifications(ctx context.Context, postIDs []string, source, project string) ([]domain.Classification, error)

	// SaveClassifications upserts on the (post_id, source, project) unique key.
	SaveClassifications(ctx context.Context, classifications []domain.Classification) error

	// SelectUnconsumed returns unconsumed signal stories for a digest: signal
	// category, sent_in_digest_at null, confidence at or above the threshold,
	// ordered by post score then confidence descending, capped at limit.
	SelectUnconsumed(ctx context.Context, project string, limit int, minConfidence float64) ([]domain.Story, error)

	// MarkConsumed sets sent_in_digest_at for all ids in one update.
	MarkConsumed(ctx context.Context, postIDs []string, project string, at time.Time) error

	SaveScanHistory(ctx context.Context, record domain.ScanRecord) error
	ScanHistory(ctx context.Context, label string, limit int) ([]domain.ScanRecord, error)
}

// BookmarkStore persists digest stories the reader saved for later.
type BookmarkStore interface {
	// SaveBookmark inserts the bookmark; a story already bookmarked is left
	// untouched and reported with created=false.
	SaveBookmark(ctx context.Context, bookmark domain.Bookmark) (created bool, err error)

	// Bookmarks lists saved stories newest first. An empty status means all.
	Bookmarks(ctx context.Context, status domain.BookmarkStatus, limit int) ([]domain.Bookmark, error)

	// UpdateBookmarkStatus moves a bookmark through the workflow; found reports
	// whether the story id matched a row.
	UpdateBookmarkStatus(ctx context.Context, storyID string, status domain.BookmarkStatus) (found bool, err error)
}

// StatsReader summarizes the durable cache.
type StatsReader interface {
	Stats(ctx context.Context, project string) (domain.ProjectStats, error)
}

// ContentFetcher retrieves the full text behind a post URL when the stored
// body was truncated.
type ContentFetcher interface {
	FetchFullContent(ctx context.Context, url string) (string, error)
}

// Notifier publishes a rendered digest summary to an outbound channel.
// Delivery is best effort; consumption bookkeeping never depends on it.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when scan cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
