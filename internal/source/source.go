package source

import (
	"context"
	"fmt"

	"SignalScanner/internal/domain"
)

// Request carries all parameters required to execute one fetch.
type Request struct {
	Query      string   // subreddit name or feed URL, depending on the source
	Keywords   []string // relevance filter for keyword-driven sources
	Limit      int
	Sort       string // source-specific: hot/new/top for reddit, top/new/best for HN
	TimeFilter string // reddit "top" window: hour, day, week, month, year, all
}

// Source is one content platform adapter producing normalized posts with
// prefixed ids. The core never retries transport failures from a source.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]domain.Post, error)
}

// Registry keeps a mapping from source names to their implementations.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(source Source) {
	if r.sources == nil {
		r.sources = map[string]Source{}
	}
	r.sources[source.Name()] = source
}

// Resolve returns a source by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Source, error) {
	if source, ok := r.sources[name]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("source %s is not registered", name)
}
