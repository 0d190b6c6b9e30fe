package domain

import "time"

// BookmarkStatus tracks where a saved story sits in the reading workflow.
type BookmarkStatus string

const (
	BookmarkToRead      BookmarkStatus = "to_read"
	BookmarkToImplement BookmarkStatus = "to_implement"
	BookmarkDone        BookmarkStatus = "done"
)

// ParseBookmarkStatus validates a raw status string.
func ParseBookmarkStatus(raw string) (BookmarkStatus, bool) {
	switch BookmarkStatus(raw) {
	case BookmarkToRead, BookmarkToImplement, BookmarkDone:
		return BookmarkStatus(raw), true
	default:
		return "", false
	}
}

// Bookmark is a digest story the reader saved for later. The story fields are
// copied from the digest artifact at save time, so a bookmark stays readable
// even after the artifact file is gone.
type Bookmark struct {
	StoryID    string
	DigestDate string
	PostID     string
	Title      string
	URL        string
	Source     string
	Category   Category
	TopicTags  []string
	FormatTag  string
	Notes      string
	Status     BookmarkStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
