package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

// Templates resolves the per-project instruction templates. The tier template
// is optional: projects without one skip the enrichment pass entirely.
type Templates interface {
	ClassifyTemplate(project string) (string, error)
	TierTemplate(project string) (string, bool)
	Topic(project string) string
}

// Batcher drives batched classification calls against the LLM service.
type Batcher struct {
	completer    ports.Completer
	templates    Templates
	logger       *slog.Logger
	modelVersion string
	now          func() time.Time
}

var _ ports.Classifier = (*Batcher)(nil)

// NewBatcher wires the LLM client with the project template registry.
func NewBatcher(completer ports.Completer, templates Templates, modelVersion string, logger *slog.Logger) *Batcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{
		completer:    completer,
		templates:    templates,
		logger:       logger,
		modelVersion: modelVersion,
		now:          time.Now,
	}
}

// Classify processes posts in batches of batchSize, degrading refused batches
// to single-item retries. Posts the provider refuses twice are skipped and
// logged; any non-refusal failure aborts and propagates. After the primary
// pass, an optional tier-tagging pass enriches non-unrelated results.
func (b *Batcher) Classify(ctx context.Context, posts []domain.Post, batchSize int, project string) ([]domain.Classification, error) {
	if len(posts) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = 20
	}

	template, err := b.templates.ClassifyTemplate(project)
	if err != nil {
		return nil, fmt.Errorf("load classify template for project %s: %w", project, err)
	}

	var results []domain.Classification
	for start := 0; start < len(posts); start += batchSize {
		end := start + batchSize
		if end > len(posts) {
			end = len(posts)
		}
		batch := posts[start:end]

		classifications, err := b.classifyBatch(ctx, batch, template, project)
		if err != nil {
			var refusal *ports.RefusalError
			if !errors.As(err, &refusal) {
				return nil, fmt.Errorf("classify batch of %d posts: %w", len(batch), err)
			}
			// A refusal is usually triggered by one problematic item in an
			// otherwise-fine batch. Retry each post on its own so the rest
			// of the batch still succeeds.
			b.logger.Warn("batch refused, splitting into individual requests",
				"project", project, "batch_size", len(batch), "reason", refusal.Reason)
			classifications, err = b.classifyIndividually(ctx, batch, template, project)
			if err != nil {
				return nil, err
			}
		}
		results = append(results, classifications...)
	}

	if err := b.tierPass(ctx, posts, results, batchSize, project); err != nil {
		return nil, err
	}

	return results, nil
}

func (b *Batcher) classifyIndividually(ctx context.Context, batch []domain.Post, template, project string) ([]domain.Classification, error) {
	var results []domain.Classification
	for _, post := range batch {
		single, err := b.classifyBatch(ctx, []domain.Post{post}, template, project)
		if err != nil {
			var refusal *ports.RefusalError
			if errors.As(err, &refusal) {
				// Terminal failure path: content the provider will never classify.
				b.logger.Warn("post permanently skipped after individual refusal",
					"post_id", post.ID, "project", project, "reason", refusal.Reason)
				continue
			}
			return nil, fmt.Errorf("classify post %s individually: %w", post.ID, err)
		}
		results = append(results, single...)
	}
	return results, nil
}

// classificationPayload is the strongly-typed shape expected from the model,
// validated immediately after extraction.
type classificationPayload struct {
	PostID     string   `json:"post_id"`
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	RedFlags   []string `json:"red_flags"`
	Reasoning  string   `json:"reasoning"`
	TopicTags  []string `json:"topic_tags"`
	FormatTag  string   `json:"format_tag"`
}

func (b *Batcher) classifyBatch(ctx context.Context, batch []domain.Post, template, project string) ([]domain.Classification, error) {
	prompt, err := buildClassifyPrompt(template, b.templates.Topic(project), batch)
	if err != nil {
		return nil, err
	}

	reply, err := b.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	raw, err := ExtractArray(reply)
	if err != nil {
		return nil, err
	}

	var payloads []classificationPayload
	if err := json.Unmarshal(raw, &payloads); err != nil {
		return nil, &ExtractionError{Msg: fmt.Sprintf("response array has unexpected item shape: %v", err)}
	}

	known := make(map[string]domain.Post, len(batch))
	for _, post := range batch {
		known[post.ID] = post
	}

	classifiedAt := b.now()
	results := make([]domain.Classification, 0, len(payloads))
	for _, payload := range payloads {
		post, ok := known[payload.PostID]
		if !ok {
			b.logger.Warn("dropping classification for unknown post id", "post_id", payload.PostID, "project", project)
			continue
		}
		category, ok := NormalizeCategory(payload.Category)
		if !ok {
			b.logger.Warn("dropping classification with invalid category",
				"post_id", payload.PostID, "category", payload.Category, "project", project)
			continue
		}
		if payload.Confidence < 0 || payload.Confidence > 1 {
			b.logger.Warn("dropping classification with out-of-range confidence",
				"post_id", payload.PostID, "confidence", payload.Confidence, "project", project)
			continue
		}

		results = append(results, domain.Classification{
			PostID:       post.ID,
			Source:       post.Source,
			Project:      project,
			Category:     category,
			Confidence:   payload.Confidence,
			RedFlags:     payload.RedFlags,
			Reasoning:    payload.Reasoning,
			TopicTags:    payload.TopicTags,
			FormatTag:    payload.FormatTag,
			ModelVersion: b.modelVersion,
			ClassifiedAt: classifiedAt,
		})
	}

	if len(results) < len(batch) {
		b.logger.Warn("batch returned fewer valid classifications than posts",
			"posts", len(batch), "valid", len(results), "project", project)
	}
	return results, nil
}

// tierPayload is the item shape of the tier-tagging reply.
type tierPayload struct {
	PostID       string              `json:"post_id"`
	TierTags     map[string][]string `json:"tier_tags"`
	TierClusters []string            `json:"tier_clusters"`
	TierScoring  *int                `json:"tier_scoring"`
}

// tierPass runs the optional second-pass enrichment over posts whose primary
// category is not unrelated. Tier failures are logged per batch and never
// invalidate the primary classifications already produced.
func (b *Batcher) tierPass(ctx context.Context, posts []domain.Post, results []domain.Classification, batchSize int, project string) error {
	template, ok := b.templates.TierTemplate(project)
	if !ok {
		return nil
	}

	byID := make(map[string]*domain.Classification, len(results))
	for i := range results {
		byID[results[i].PostID] = &results[i]
	}

	var eligible []domain.Post
	for _, post := range posts {
		if c, ok := byID[post.ID]; ok && c.Category != domain.CategoryUnrelated {
			eligible = append(eligible, post)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	for start := 0; start < len(eligible); start += batchSize {
		end := start + batchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		batch := eligible[start:end]

		payloads, err := b.tierBatch(ctx, batch, template)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("tier tagging batch failed, keeping primary classifications",
				"project", project, "batch_size", len(batch), "error", err)
			continue
		}

		for _, payload := range payloads {
			c, ok := byID[payload.PostID]
			if !ok {
				continue
			}
			c.TierTags = payload.TierTags
			c.TierClusters = payload.TierClusters
			c.TierScoring = payload.TierScoring
		}
	}
	return nil
}

func (b *Batcher) tierBatch(ctx context.Context, batch []domain.Post, template string) ([]tierPayload, error) {
	prompt, err := buildTierPrompt(template, batch)
	if err != nil {
		return nil, err
	}

	reply, err := b.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	raw, err := ExtractArray(reply)
	if err != nil {
		return nil, err
	}

	var payloads []tierPayload
	if err := json.Unmarshal(raw, &payloads); err != nil {
		return nil, fmt.Errorf("tier reply has unexpected item shape: %w", err)
	}
	return payloads, nil
}

func buildClassifyPrompt(template, topic string, batch []domain.Post) (string, error) {
	type promptPost struct {
		PostID    string `json:"post_id"`
		Title     string `json:"title"`
		Selftext  string `json:"selftext"`
		Author    string `json:"author"`
		Subreddit string `json:"subreddit,omitempty"`
		Flair     string `json:"flair,omitempty"`
	}

	payload := make([]promptPost, 0, len(batch))
	for _, post := range batch {
		payload = append(payload, promptPost{
			PostID:    post.ID,
			Title:     post.Title,
			Selftext:  post.TruncatedSelftext(),
			Author:    post.Author,
			Subreddit: post.Subreddit,
			Flair:     post.Flair,
		})
	}

	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal posts for prompt: %w", err)
	}

	prompt := strings.ReplaceAll(template, "{posts_json}", string(encoded))
	prompt = strings.ReplaceAll(prompt, "{topic}", topic)
	return prompt, nil
}

func buildTierPrompt(template string, batch []domain.Post) (string, error) {
	type promptPost struct {
		PostID   string `json:"post_id"`
		Title    string `json:"title"`
		Selftext string `json:"selftext"`
	}

	payload := make([]promptPost, 0, len(batch))
	for _, post := range batch {
		payload = append(payload, promptPost{
			PostID:   post.ID,
			Title:    post.Title,
			Selftext: post.TruncatedSelftext(),
		})
	}

	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal posts for tier prompt: %w", err)
	}

	return strings.ReplaceAll(template, "{posts_json}", string(encoded)), nil
}
