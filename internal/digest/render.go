package digest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"SignalScanner/internal/domain"
)

// RenderMarkdown formats a digest as a markdown document.
func RenderMarkdown(d domain.Digest) ([]byte, error) {
	var sb strings.Builder

	date := d.GeneratedAt.Format("2006-01-02")
	fmt.Fprintf(&sb, "# Signal Digest — %s\n\n", date)
	fmt.Fprintf(&sb, "*%d curated stories for project %s*\n\n---\n\n", len(d.Stories), d.Project)

	for i, story := range d.Stories {
		title := story.Article.Title
		if title == "" {
			title = story.Post.Title
		}
		fmt.Fprintf(&sb, "## %d. %s\n\n", i+1, title)

		if story.Article.Body != "" {
			sb.WriteString(story.Article.Body)
			sb.WriteString("\n\n")
		} else if story.Post.Selftext != "" {
			sb.WriteString(story.Post.TruncatedSelftext())
			sb.WriteString("\n\n")
		}

		fmt.Fprintf(&sb, "**Source:** [%s](%s) — %s, score %d, %d comments\n\n",
			story.Post.Title, story.Post.URL, story.Post.Source,
			story.Post.Score, story.Post.NumComments)
		fmt.Fprintf(&sb, "*Category: %s (%.0f%% confidence)*\n\n",
			story.Classification.Category, story.Classification.Confidence*100)

		if story.Article.Commentary != "" {
			sb.WriteString("### Commentary\n\n")
			sb.WriteString(story.Article.Commentary)
			sb.WriteString("\n\n")
		}
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "*Generated by SignalScanner — project %s, %s*\n",
		d.Project, d.GeneratedAt.Format("2006-01-02 15:04"))

	return []byte(sb.String()), nil
}

// ArtifactStory is one story inside a JSON digest artifact. The ID is the
// digest date plus a position, like 2026-08-31-003, and is what the bookmark
// commands address stories by.
type ArtifactStory struct {
	ID          string   `json:"id"`
	PostID      string   `json:"post_id"`
	Source      string   `json:"source"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Author      string   `json:"author"`
	Score       int      `json:"score"`
	NumComments int      `json:"num_comments"`
	Category    string   `json:"category"`
	Confidence  float64  `json:"confidence"`
	TopicTags   []string `json:"topic_tags,omitempty"`
	FormatTag   string   `json:"format_tag,omitempty"`

	ArticleTitle string `json:"article_title,omitempty"`
	ArticleBody  string `json:"article_body,omitempty"`
	Commentary   string `json:"commentary,omitempty"`
}

// Artifact is the JSON digest document written for downstream web consumers
// and read back by the bookmark commands.
type Artifact struct {
	DigestID    string          `json:"digest_id"`
	Project     string          `json:"project"`
	GeneratedAt string          `json:"generated_at"`
	Stories     []ArtifactStory `json:"stories"`
}

// Story looks up an artifact story by id.
func (a Artifact) Story(id string) (ArtifactStory, bool) {
	for _, story := range a.Stories {
		if story.ID == id {
			return story, true
		}
	}
	return ArtifactStory{}, false
}

// DecodeArtifact parses a JSON digest artifact.
func DecodeArtifact(raw []byte) (Artifact, error) {
	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return Artifact{}, fmt.Errorf("decode digest artifact: %w", err)
	}
	return artifact, nil
}

// StoryID builds the artifact id for the story at position index.
func StoryID(generatedAt time.Time, index int) string {
	return fmt.Sprintf("%s-%03d", generatedAt.Format("2006-01-02"), index+1)
}

// RenderJSON formats a digest for downstream web consumers.
func RenderJSON(d domain.Digest) ([]byte, error) {
	out := Artifact{
		DigestID:    d.ID,
		Project:     d.Project,
		GeneratedAt: d.GeneratedAt.UTC().Format(time.RFC3339),
		Stories:     make([]ArtifactStory, 0, len(d.Stories)),
	}

	for i, story := range d.Stories {
		out.Stories = append(out.Stories, ArtifactStory{
			ID:           StoryID(d.GeneratedAt, i),
			PostID:       story.Post.ID,
			Source:       story.Post.Source,
			Title:        story.Post.Title,
			URL:          story.Post.URL,
			Author:       story.Post.Author,
			Score:        story.Post.Score,
			NumComments:  story.Post.NumComments,
			Category:     string(story.Classification.Category),
			Confidence:   story.Classification.Confidence,
			TopicTags:    story.Classification.TopicTags,
			FormatTag:    story.Classification.FormatTag,
			ArticleTitle: story.Article.Title,
			ArticleBody:  story.Article.Body,
			Commentary:   story.Article.Commentary,
		})
	}

	return json.MarshalIndent(out, "", "  ")
}

func buildArticlePrompt(template string, post domain.Post, c domain.Classification, content string) string {
	if content == "" {
		content = "No content available"
	}
	replacer := strings.NewReplacer(
		"{title}", post.Title,
		"{source}", post.Source,
		"{subreddit}", orDefault(post.Subreddit, "N/A"),
		"{author}", orDefault(post.Author, "unknown"),
		"{score}", strconv.Itoa(post.Score),
		"{num_comments}", strconv.Itoa(post.NumComments),
		"{category}", string(c.Category),
		"{url}", post.URL,
		"{content}", content,
	)
	return replacer.Replace(template)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
