package domain

import (
	"fmt"
	"time"
)

// Truncation limit for post bodies sent to the classifier.
const MaxSelftextChars = 5000

// Post is a source-agnostic record fetched from a content platform.
// Immutable once produced by a source adapter.
type Post struct {
	ID          string // prefixed, globally unique: "reddit_abc123", "hn_8863"
	Source      string // "reddit", "hackernews", ...
	Title       string
	Selftext    string
	Author      string
	Score       int
	NumComments int
	CreatedAt   time.Time
	URL         string

	// Source-specific fields, empty when not applicable.
	SourceURL string // external link for HN link posts
	Subreddit string // reddit only
	Flair     string // reddit only
	ItemType  string // hackernews only: "story", "job", ...
}

// PrefixID builds the globally unique post identifier from a raw source id.
func PrefixID(rawID, source string) string {
	switch source {
	case "reddit":
		return "reddit_" + rawID
	case "hackernews":
		return "hn_" + rawID
	default:
		prefix := source
		if len(prefix) > 6 {
			prefix = prefix[:6]
		}
		return fmt.Sprintf("%s_%s", prefix, rawID)
	}
}

// TruncatedSelftext caps the body at MaxSelftextChars for prompt budgets.
func (p Post) TruncatedSelftext() string {
	if len(p.Selftext) <= MaxSelftextChars {
		return p.Selftext
	}
	return p.Selftext[:MaxSelftextChars] + "..."
}
