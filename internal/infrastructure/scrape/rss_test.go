package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"SignalScanner/internal/source"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Engineering Blog</title>
    <item>
      <title>Scaling the claude classifier</title>
      <link>https://blog.example.com/scaling</link>
      <guid>https://blog.example.com/scaling</guid>
      <description>How we batch requests.</description>
      <pubDate>Mon, 02 Mar 2026 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Office plants update</title>
      <link>https://blog.example.com/plants</link>
      <guid>plants-2026</guid>
      <description>Ferns doing well.</description>
    </item>
  </channel>
</rss>`

func TestRSSFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	}))
	defer server.Close()

	src := NewRSSSource(server.Client(), "test-agent")

	posts, err := src.Fetch(context.Background(), source.Request{Query: server.URL})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	if len(posts) != 2 {
		t.Fatalf("expected 2 items, got %d", len(posts))
	}
	first := posts[0]
	if first.ID != "rss_blog.example.com_scaling" {
		t.Fatalf("unexpected id: %s", first.ID)
	}
	if first.Source != "rss" || first.URL != "https://blog.example.com/scaling" {
		t.Fatalf("unexpected post fields: %+v", first)
	}
	if first.Selftext != "How we batch requests." {
		t.Fatalf("description not used as body: %q", first.Selftext)
	}
	if first.CreatedAt.Year() != 2026 {
		t.Fatalf("published date not parsed: %v", first.CreatedAt)
	}
}

func TestRSSFetchKeywordFilter(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testFeed))
	}))
	defer server.Close()

	src := NewRSSSource(server.Client(), "")

	posts, err := src.Fetch(context.Background(), source.Request{Query: server.URL, Keywords: []string{"claude"}})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(posts) != 1 || posts[0].Title != "Scaling the claude classifier" {
		t.Fatalf("keyword filter failed: %+v", posts)
	}
}

func TestRSSFetchMissingURL(t *testing.T) {
	t.Parallel()

	src := NewRSSSource(nil, "")
	if _, err := src.Fetch(context.Background(), source.Request{}); err == nil {
		t.Fatal("expected error without feed url")
	}
}
