package domain

import "time"

// Story denormalizes one classification with its post for rendering.
type Story struct {
	Post           Post
	Classification Classification

	// Optional LLM-written article for the digest; zero value means the
	// renderer falls back to the raw post fields.
	Article Article
}

// Article is the generated editorial text for a digest story.
type Article struct {
	Title      string `json:"article_title"`
	Body       string `json:"article_body"`
	Commentary string `json:"radio_commentary"`
}

// Digest is the ephemeral output artifact of one generation run.
// Only the consumption markers on the underlying classifications are durable.
type Digest struct {
	ID          string
	Project     string
	GeneratedAt time.Time
	Stories     []Story
}

// StoryIDs returns the post ids of the selected stories in order.
func (d Digest) StoryIDs() []string {
	ids := make([]string, 0, len(d.Stories))
	for _, s := range d.Stories {
		ids = append(ids, s.Post.ID)
	}
	return ids
}
