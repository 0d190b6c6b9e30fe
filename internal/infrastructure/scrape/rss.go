package scrape

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/source"
)

// RSSSource pulls posts from arbitrary syndication feeds, letting projects
// watch blogs and news sites alongside the platform adapters.
type RSSSource struct {
	parser *gofeed.Parser
}

var _ source.Source = (*RSSSource)(nil)

// NewRSSSource wires a feed parser; the client's timeout bounds each fetch.
func NewRSSSource(client *http.Client, userAgent string) *RSSSource {
	parser := gofeed.NewParser()
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	parser.Client = client
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	return &RSSSource{parser: parser}
}

// Name identifies the adapter inside the registry.
func (s *RSSSource) Name() string {
	return "rss"
}

// Fetch parses the feed named by Query and normalizes its items. Feeds carry
// no score or comment counts, so those stay zero and digest ordering falls
// back to confidence.
func (s *RSSSource) Fetch(ctx context.Context, req source.Request) ([]domain.Post, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("no feed url provided")
	}

	feed, err := s.parser.ParseURLWithContext(req.Query, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", req.Query, err)
	}

	limit := req.Limit
	if limit <= 0 || limit > len(feed.Items) {
		limit = len(feed.Items)
	}

	keywords := make([]string, 0, len(req.Keywords))
	for _, k := range req.Keywords {
		keywords = append(keywords, strings.ToLower(k))
	}

	posts := make([]domain.Post, 0, limit)
	for _, item := range feed.Items {
		if len(posts) >= limit {
			break
		}
		if len(keywords) > 0 && !matchesFeedKeywords(item, keywords) {
			continue
		}

		author := ""
		if len(item.Authors) > 0 {
			author = item.Authors[0].Name
		}
		published := time.Now().UTC()
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		}

		body := item.Content
		if body == "" {
			body = item.Description
		}

		posts = append(posts, domain.Post{
			ID:        domain.PrefixID(feedItemID(item), "rss"),
			Source:    "rss",
			Title:     item.Title,
			Selftext:  body,
			Author:    author,
			CreatedAt: published,
			URL:       item.Link,
		})
	}
	return posts, nil
}

func matchesFeedKeywords(item *gofeed.Item, keywords []string) bool {
	haystack := strings.ToLower(item.Title + " " + item.Description)
	for _, keyword := range keywords {
		if strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}

func feedItemID(item *gofeed.Item) string {
	if item.GUID != "" {
		return sanitizeID(item.GUID)
	}
	return sanitizeID(item.Link)
}

func sanitizeID(raw string) string {
	replacer := strings.NewReplacer("https://", "", "http://", "", "/", "_", "?", "_", "&", "_", "#", "_")
	return replacer.Replace(raw)
}
