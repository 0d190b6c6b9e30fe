package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/source"
)

const redditBaseURL = "https://www.reddit.com"

// RedditSource fetches subreddit listings through the public JSON endpoints;
// no credentials required.
type RedditSource struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

var _ source.Source = (*RedditSource)(nil)

// NewRedditSource wires an HTTP client; a custom user agent keeps the JSON
// endpoints from throttling the default Go one.
func NewRedditSource(client *http.Client, userAgent string) *RedditSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = "signal-scanner/1.0"
	}
	return &RedditSource{client: client, baseURL: redditBaseURL, userAgent: userAgent}
}

// Name identifies the adapter inside the registry.
func (s *RedditSource) Name() string {
	return "reddit"
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Selftext      string  `json:"selftext"`
	Author        string  `json:"author"`
	Score         int     `json:"score"`
	NumComments   int     `json:"num_comments"`
	CreatedUTC    float64 `json:"created_utc"`
	URL           string  `json:"url"`
	Permalink     string  `json:"permalink"`
	Subreddit     string  `json:"subreddit"`
	LinkFlairText string  `json:"link_flair_text"`
	Stickied      bool    `json:"stickied"`
}

// Fetch pulls one subreddit listing and normalizes it into posts.
func (s *RedditSource) Fetch(ctx context.Context, req source.Request) ([]domain.Post, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("no subreddit provided")
	}

	sort := req.Sort
	if sort == "" {
		sort = "hot"
	}

	endpoint := fmt.Sprintf("%s/r/%s/%s.json", s.baseURL, url.PathEscape(req.Query), sort)
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", req.Limit))
	if sort == "top" && req.TimeFilter != "" {
		params.Set("t", req.TimeFilter)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", req.Query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch r/%s: unexpected status %s", req.Query, resp.Status)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode r/%s listing: %w", req.Query, err)
	}

	posts := make([]domain.Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		raw := child.Data
		if raw.Stickied {
			continue
		}

		postURL := raw.URL
		if postURL == "" && raw.Permalink != "" {
			postURL = s.baseURL + raw.Permalink
		}

		posts = append(posts, domain.Post{
			ID:          domain.PrefixID(raw.ID, "reddit"),
			Source:      "reddit",
			Title:       raw.Title,
			Selftext:    raw.Selftext,
			Author:      raw.Author,
			Score:       raw.Score,
			NumComments: raw.NumComments,
			CreatedAt:   time.Unix(int64(raw.CreatedUTC), 0).UTC(),
			URL:         postURL,
			Subreddit:   raw.Subreddit,
			Flair:       raw.LinkFlairText,
		})
	}
	return posts, nil
}
