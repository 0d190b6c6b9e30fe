package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/source"
)

const hnBaseURL = "https://hacker-news.firebaseio.com/v0"

// The Firebase API allows 500 requests per minute; one request every 120ms
// stays safely under it.
const hnMinRequestGap = 120 * time.Millisecond

// HackerNewsSource fetches stories from the official Firebase API with
// optional keyword filtering on titles.
type HackerNewsSource struct {
	client  *http.Client
	baseURL string
	lastReq time.Time
}

var _ source.Source = (*HackerNewsSource)(nil)

// NewHackerNewsSource wires an HTTP client against the public Firebase API.
func NewHackerNewsSource(client *http.Client) *HackerNewsSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HackerNewsSource{client: client, baseURL: hnBaseURL}
}

// Name identifies the adapter inside the registry.
func (s *HackerNewsSource) Name() string {
	return "hackernews"
}

type hnItem struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	By          string `json:"by"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Time        int64  `json:"time"`
	URL         string `json:"url"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

// Fetch pulls the configured story listing, walking item ids until limit
// matching posts are collected or the listing is exhausted.
func (s *HackerNewsSource) Fetch(ctx context.Context, req source.Request) ([]domain.Post, error) {
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	endpoint := "topstories.json"
	switch req.Sort {
	case "", "top":
	case "new":
		endpoint = "newstories.json"
	case "best":
		endpoint = "beststories.json"
	default:
		return nil, fmt.Errorf("unknown hackernews sort %q", req.Sort)
	}

	var storyIDs []int
	if err := s.get(ctx, endpoint, &storyIDs); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}

	keywords := make([]string, 0, len(req.Keywords))
	for _, k := range req.Keywords {
		keywords = append(keywords, strings.ToLower(k))
	}

	var posts []domain.Post
	for _, id := range storyIDs {
		if len(posts) >= limit {
			break
		}

		var item hnItem
		if err := s.get(ctx, fmt.Sprintf("item/%d.json", id), &item); err != nil {
			return nil, fmt.Errorf("fetch item %d: %w", id, err)
		}
		if item.Dead || item.Deleted || item.Type != "story" || item.Title == "" {
			continue
		}
		if len(keywords) > 0 && !matchesKeywords(item, keywords) {
			continue
		}

		hnURL := fmt.Sprintf("https://news.ycombinator.com/item?id=%d", item.ID)
		posts = append(posts, domain.Post{
			ID:          domain.PrefixID(fmt.Sprintf("%d", item.ID), "hackernews"),
			Source:      "hackernews",
			Title:       item.Title,
			Selftext:    item.Text,
			Author:      item.By,
			Score:       item.Score,
			NumComments: item.Descendants,
			CreatedAt:   time.Unix(item.Time, 0).UTC(),
			URL:         hnURL,
			SourceURL:   item.URL,
			ItemType:    item.Type,
		})
	}
	return posts, nil
}

func matchesKeywords(item hnItem, keywords []string) bool {
	haystack := strings.ToLower(item.Title + " " + item.Text)
	for _, keyword := range keywords {
		if strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}

func (s *HackerNewsSource) get(ctx context.Context, endpoint string, v any) error {
	if gap := time.Since(s.lastReq); gap < hnMinRequestGap {
		select {
		case <-time.After(hnMinRequestGap - gap):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.lastReq = time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+endpoint, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
