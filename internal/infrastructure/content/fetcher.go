package content

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"SignalScanner/internal/ports"
)

const maxContentChars = 10000

// Fetcher retrieves the readable text behind a post URL, used when the stored
// body was truncated and a digest article needs the full content.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

var _ ports.ContentFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client for page fetches.
func NewFetcher(client *http.Client, userAgent string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Fetcher{client: client, userAgent: userAgent}
}

// FetchFullContent downloads the page and extracts its readable text,
// preferring an article element over the whole body.
func (f *Fetcher) FetchFullContent(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", fmt.Errorf("fetch %s: unsupported content type %s", url, ct)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", url, err)
	}

	doc.Find("script, style, nav, header, footer, aside").Remove()

	scope := doc.Find("article")
	if scope.Length() == 0 {
		scope = doc.Find("body")
	}

	var paragraphs []string
	scope.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	text := strings.Join(paragraphs, "\n\n")
	if text == "" {
		text = strings.TrimSpace(scope.Text())
	}
	if len(text) > maxContentChars {
		text = text[:maxContentChars]
	}
	return text, nil
}
