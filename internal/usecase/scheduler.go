package usecase

import (
	"context"
	"log/slog"
	"time"

	"SignalScanner/internal/ports"
	"SignalScanner/internal/project"
)

// ScheduledScans runs a full scan cycle over every configured project on the
// driver's cadence. Projects and their sources are re-read each cycle so
// config edits land without a restart.
type ScheduledScans struct {
	driver   ports.Scheduler
	scanner  *Scanner
	projects *project.Registry
	limit    int
	logger   *slog.Logger
}

// NewScheduledScans wires the recurring scan job.
func NewScheduledScans(driver ports.Scheduler, scanner *Scanner, projects *project.Registry, limit int, logger *slog.Logger) *ScheduledScans {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduledScans{driver: driver, scanner: scanner, projects: projects, limit: limit, logger: logger}
}

// Start registers the scan cycle with the scheduler driver.
func (s *ScheduledScans) Start(ctx context.Context) error {
	if s.driver == nil || s.scanner == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.logger.Info("scheduled scan cycle starting", "trigger", trigger)
		s.runCycle(ctx)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *ScheduledScans) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}

func (s *ScheduledScans) runCycle(ctx context.Context) {
	s.projects.Reload()

	names, err := s.projects.List()
	if err != nil {
		s.logger.Error("project discovery failed", "error", err)
		return
	}

	for _, name := range names {
		p, err := s.projects.Load(name)
		if err != nil {
			s.logger.Error("project load failed", "project", name, "error", err)
			continue
		}
		s.scanProject(ctx, p)
	}
}

func (s *ScheduledScans) scanProject(ctx context.Context, p *project.Project) {
	for _, subreddit := range p.Subreddits {
		s.run(ctx, ScanRequest{
			Source:  "reddit",
			Query:   subreddit,
			Limit:   s.limit,
			Sort:    "hot",
			Project: p.Name,
		})
	}

	if len(p.HNKeywords) > 0 {
		s.run(ctx, ScanRequest{
			Source:   "hackernews",
			Keywords: p.HNKeywords,
			Limit:    s.limit,
			Sort:     "top",
			Project:  p.Name,
		})
	}

	for _, feed := range p.FeedURLs {
		s.run(ctx, ScanRequest{
			Source:   "rss",
			Query:    feed,
			Keywords: p.HNKeywords,
			Limit:    s.limit,
			Project:  p.Name,
		})
	}
}

func (s *ScheduledScans) run(ctx context.Context, req ScanRequest) {
	result, err := s.scanner.Scan(ctx, req)
	if err != nil {
		s.logger.Error("scheduled scan failed",
			"source", req.Source, "query", req.Query, "project", req.Project, "error", err)
		return
	}
	s.logger.Info("scheduled scan finished",
		"source", req.Source, "query", req.Query, "project", req.Project,
		"posts", result.Stats.Total, "new", result.Stats.New, "cached", result.Stats.Cached,
		"signal_ratio", result.Report.SignalRatio)
}
