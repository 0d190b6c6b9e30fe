package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"SignalScanner/internal/classify"
	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

// Format names a digest output format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ErrNoEligiblePosts distinguishes an empty candidate pool from a generation
// failure; callers report it as a normal outcome, not an error condition.
var ErrNoEligiblePosts = errors.New("no unconsumed signal posts available")

// ArticleTemplates resolves the optional per-project article template.
type ArticleTemplates interface {
	DigestTemplate(project string) (string, bool)
}

// Generator assembles digests from unconsumed signal classifications and
// marks them consumed exactly once, after every requested format succeeded.
type Generator struct {
	store     ports.ClassificationStore
	completer ports.Completer
	templates ArticleTemplates
	fetcher   ports.ContentFetcher
	logger    *slog.Logger

	outputDir string
	renderers map[Format]func(domain.Digest) ([]byte, error)
	now       func() time.Time
	newID     func() string
}

// NewGenerator wires the digest pipeline. completer, templates and fetcher
// may be nil; the article enrichment pass is skipped without them.
func NewGenerator(store ports.ClassificationStore, completer ports.Completer, templates ArticleTemplates, fetcher ports.ContentFetcher, outputDir string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		store:     store,
		completer: completer,
		templates: templates,
		fetcher:   fetcher,
		logger:    logger,
		outputDir: outputDir,
		renderers: map[Format]func(domain.Digest) ([]byte, error){
			FormatMarkdown: RenderMarkdown,
			FormatJSON:     RenderJSON,
		},
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Select returns the digest candidates without consuming them (dry-run view).
func (g *Generator) Select(ctx context.Context, project string, limit int, minConfidence float64) ([]domain.Story, error) {
	stories, err := g.store.SelectUnconsumed(ctx, project, limit, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("select unconsumed signal posts: %w", err)
	}
	return stories, nil
}

// Generate selects the candidate set once, renders every requested format
// from that same set, writes the artifacts, and only then marks all story
// posts consumed in one update. A failure in any format leaves every
// consumption marker untouched so the next invocation reselects the same
// candidates.
func (g *Generator) Generate(ctx context.Context, project string, limit int, minConfidence float64, formats ...Format) (*domain.Digest, []string, error) {
	if len(formats) == 0 {
		formats = []Format{FormatMarkdown}
	}

	stories, err := g.Select(ctx, project, limit, minConfidence)
	if err != nil {
		return nil, nil, err
	}
	if len(stories) == 0 {
		return nil, nil, ErrNoEligiblePosts
	}

	d := domain.Digest{
		ID:          g.newID(),
		Project:     project,
		GeneratedAt: g.now(),
		Stories:     stories,
	}

	g.enrichArticles(ctx, project, d.Stories)

	// Render all formats from the identical story slice before anything is
	// written or consumed, so two formats of one invocation always carry the
	// same stories in the same order.
	rendered := make([][]byte, len(formats))
	for i, format := range formats {
		render, ok := g.renderers[format]
		if !ok {
			return nil, nil, fmt.Errorf("unknown digest format %q", format)
		}
		rendered[i], err = render(d)
		if err != nil {
			return nil, nil, fmt.Errorf("render %s digest: %w", format, err)
		}
	}

	paths := make([]string, len(formats))
	for i, format := range formats {
		paths[i], err = g.write(d, format, rendered[i])
		if err != nil {
			return nil, nil, fmt.Errorf("write %s digest: %w", format, err)
		}
	}

	if err := g.store.MarkConsumed(ctx, d.StoryIDs(), project, g.now()); err != nil {
		return nil, nil, fmt.Errorf("mark posts consumed: %w", err)
	}

	g.logger.Info("digest generated",
		"project", project, "digest_id", d.ID, "stories", len(d.Stories), "formats", len(formats))
	return &d, paths, nil
}

// enrichArticles asks the model for editorial text per story when the project
// has a digest template. A story whose article fails is rendered from its raw
// post fields instead; article generation never blocks the digest.
func (g *Generator) enrichArticles(ctx context.Context, project string, stories []domain.Story) {
	if g.completer == nil || g.templates == nil {
		return
	}
	template, ok := g.templates.DigestTemplate(project)
	if !ok {
		return
	}

	for i := range stories {
		article, err := g.generateArticle(ctx, template, &stories[i])
		if err != nil {
			g.logger.Warn("article generation failed, using raw post fields",
				"post_id", stories[i].Post.ID, "error", err)
			continue
		}
		stories[i].Article = article
	}
}

func (g *Generator) generateArticle(ctx context.Context, template string, story *domain.Story) (domain.Article, error) {
	content := story.Post.Selftext
	if g.fetcher != nil && len(content) >= domain.MaxSelftextChars && story.Post.URL != "" {
		if full, err := g.fetcher.FetchFullContent(ctx, story.Post.URL); err == nil && full != "" {
			content = full
		}
	}
	if len(content) > 10000 {
		content = content[:10000]
	}

	prompt := buildArticlePrompt(template, story.Post, story.Classification, content)
	reply, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		return domain.Article{}, err
	}

	raw, err := classify.ExtractObject(reply)
	if err != nil {
		return domain.Article{}, err
	}

	var article domain.Article
	if err := json.Unmarshal(raw, &article); err != nil {
		return domain.Article{}, fmt.Errorf("decode article: %w", err)
	}
	if article.Title == "" || article.Body == "" {
		return domain.Article{}, fmt.Errorf("incomplete article response")
	}
	return article, nil
}

func (g *Generator) write(d domain.Digest, format Format, content []byte) (string, error) {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", err
	}

	ext := "md"
	if format == FormatJSON {
		ext = "json"
	}
	name := fmt.Sprintf("digest_%s_%s.%s", d.Project, d.GeneratedAt.Format("2006-01-02_150405"), ext)
	path := filepath.Join(g.outputDir, name)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}

	// The JSON artifact doubles as a stable pointer for readers that want
	// "the newest digest" without globbing for timestamps.
	if format == FormatJSON {
		latest := filepath.Join(g.outputDir, "latest.json")
		if err := os.WriteFile(latest, content, 0o644); err != nil {
			return "", err
		}
	}
	return path, nil
}
