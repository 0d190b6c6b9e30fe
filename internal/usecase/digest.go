package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"SignalScanner/internal/digest"
	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

// DigestRunner drives digest generation and best-effort delivery. Consumption
// bookkeeping lives entirely in the generator; a notification failure never
// rolls a digest back.
type DigestRunner struct {
	generator *digest.Generator
	notifier  ports.Notifier
	logger    *slog.Logger
}

// NewDigestRunner wires the generator with an optional notifier.
func NewDigestRunner(generator *digest.Generator, notifier ports.Notifier, logger *slog.Logger) *DigestRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &DigestRunner{generator: generator, notifier: notifier, logger: logger}
}

// Preview returns the stories a digest would contain without consuming them.
func (r *DigestRunner) Preview(ctx context.Context, project string, limit int, minConfidence float64) ([]domain.Story, error) {
	return r.generator.Select(ctx, project, limit, minConfidence)
}

// Run generates a digest in the requested formats, marks the stories
// consumed, and pushes a summary to the notifier if one is configured.
func (r *DigestRunner) Run(ctx context.Context, project string, limit int, minConfidence float64, formats ...digest.Format) (*domain.Digest, []string, error) {
	d, paths, err := r.generator.Generate(ctx, project, limit, minConfidence, formats...)
	if err != nil {
		return nil, nil, err
	}

	if r.notifier != nil {
		if err := r.notifier.PublishDigest(ctx, summaryMessage(d)); err != nil {
			r.logger.Warn("digest notification failed", "project", project, "error", err)
		}
	}

	return d, paths, nil
}

func summaryMessage(d *domain.Digest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Digest for %s* (%d stories)\n\n", d.Project, len(d.Stories))
	for i, story := range d.Stories {
		fmt.Fprintf(&sb, "%d. %s\n%s\n", i+1, story.Post.Title, story.Post.URL)
	}
	return sb.String()
}
