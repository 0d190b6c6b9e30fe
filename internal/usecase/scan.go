package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"SignalScanner/internal/analyze"
	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
	"SignalScanner/internal/source"
)

// ScanRequest describes one scan cycle: where to pull posts from and which
// project scopes the classification.
type ScanRequest struct {
	Source     string // registered source name: reddit, hackernews, rss
	Query      string // subreddit name or feed URL, source dependent
	Keywords   []string
	Limit      int
	Sort       string
	TimeFilter string
	Project    string
	NoCache    bool // classify everything fresh, skip persistence
}

// ScanResult bundles the classifications and metrics of one scan.
type ScanResult struct {
	Posts           []domain.Post
	Classifications []domain.Classification
	Report          domain.Report
	Stats           domain.CacheStats
}

// ScannerDeps wires the driven adapters into the scan workflow.
type ScannerDeps struct {
	Sources    *source.Registry
	Classifier ports.Classifier
	Engine     *analyze.Engine
	Logger     *slog.Logger
}

// Scanner implements the fetch-classify-report workflow.
type Scanner struct {
	sources    *source.Registry
	classifier ports.Classifier
	engine     *analyze.Engine
	logger     *slog.Logger
}

// NewScanner constructs the scan use case.
func NewScanner(deps ScannerDeps) *Scanner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		sources:    deps.Sources,
		classifier: deps.Classifier,
		engine:     deps.Engine,
		logger:     logger,
	}
}

// Scan fetches posts from the requested source, classifies them through the
// cache-aware engine, and records the scan in history. With NoCache set, every
// post goes straight to the classifier and nothing is persisted.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) (ScanResult, error) {
	var result ScanResult

	src, err := s.sources.Resolve(req.Source)
	if err != nil {
		return result, err
	}

	posts, err := src.Fetch(ctx, source.Request{
		Query:      req.Query,
		Keywords:   req.Keywords,
		Limit:      req.Limit,
		Sort:       req.Sort,
		TimeFilter: req.TimeFilter,
	})
	if err != nil {
		return result, fmt.Errorf("fetch from %s: %w", req.Source, err)
	}
	result.Posts = posts

	label := req.Query
	if label == "" {
		label = src.Name()
	}

	s.logger.Info("scan fetched posts",
		"source", req.Source, "label", label, "project", req.Project, "count", len(posts))

	if req.NoCache {
		result.Classifications, err = s.classifier.Classify(ctx, posts, 0, req.Project)
		if err != nil {
			return result, fmt.Errorf("classify %d posts: %w", len(posts), err)
		}
		result.Stats = domain.CacheStats{Total: len(posts), New: len(result.Classifications)}
	} else {
		result.Classifications, result.Stats, err = s.engine.AnalyzeWithCache(ctx, posts, s.classifier, req.Source, req.Project)
		if err != nil {
			return result, err
		}
	}

	period := req.TimeFilter
	if period == "" {
		period = req.Sort
	}
	result.Report = analyze.BuildReport(posts, result.Classifications, label, req.Source, period)

	if !req.NoCache {
		if err := s.engine.SaveScanResult(ctx, label, req.Source, req.Project, result.Stats, result.Report.SignalRatio); err != nil {
			s.logger.Warn("scan history not recorded", "error", err)
		}
	}

	return result, nil
}
