package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"SignalScanner/internal/analyze"
	"SignalScanner/internal/app"
	"SignalScanner/internal/config"
	"SignalScanner/internal/digest"
	"SignalScanner/internal/domain"
	"SignalScanner/internal/logging"
	"SignalScanner/internal/usecase"
)

var projectFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:           "signalscanner",
		Short:         "Classify community posts into signal and noise, cache verdicts, emit digests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&projectFlag, "project", "default", "project profile to scan under")

	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(scanHNCmd())
	rootCmd.AddCommand(scanRSSCmd())
	rootCmd.AddCommand(digestCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(bookmarkCmd())
	rootCmd.AddCommand(projectsCmd())
	rootCmd.AddCommand(runCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildApp() (*app.Application, config.Config, error) {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)
	application, err := app.New(cfg, logger)
	if err != nil {
		return nil, cfg, err
	}
	return application, cfg, nil
}

func scanCmd() *cobra.Command {
	var (
		sortOrder  string
		timeFilter string
		limit      int
		noCache    bool
	)

	cmd := &cobra.Command{
		Use:   "scan [subreddit]",
		Short: "Scan a subreddit and classify its posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cfg, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if limit <= 0 {
				limit = cfg.Scan.DefaultLimit
			}

			result, err := application.Scanner.Scan(cmd.Context(), usecase.ScanRequest{
				Source:     "reddit",
				Query:      args[0],
				Limit:      limit,
				Sort:       sortOrder,
				TimeFilter: timeFilter,
				Project:    projectFlag,
				NoCache:    noCache,
			})
			if err != nil {
				return err
			}

			printReport(result.Report, result.Stats)
			return nil
		},
	}

	cmd.Flags().StringVar(&sortOrder, "sort", "hot", "reddit listing: hot, new, top")
	cmd.Flags().StringVar(&timeFilter, "time", "day", "top listing window: hour, day, week, month, year, all")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of posts to fetch")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "classify everything fresh, do not persist")
	return cmd
}

func scanHNCmd() *cobra.Command {
	var (
		keywords  []string
		sortOrder string
		limit     int
		noCache   bool
	)

	cmd := &cobra.Command{
		Use:   "scan-hn",
		Short: "Scan Hacker News stories matching keywords",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cfg, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if limit <= 0 {
				limit = cfg.Scan.DefaultLimit
			}
			if len(keywords) == 0 {
				if p, err := application.Projects.Load(projectFlag); err == nil {
					keywords = p.HNKeywords
				}
			}

			result, err := application.Scanner.Scan(cmd.Context(), usecase.ScanRequest{
				Source:   "hackernews",
				Keywords: keywords,
				Limit:    limit,
				Sort:     sortOrder,
				Project:  projectFlag,
				NoCache:  noCache,
			})
			if err != nil {
				return err
			}

			printReport(result.Report, result.Stats)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&keywords, "keywords", "k", nil, "relevance keywords (defaults to the project's)")
	cmd.Flags().StringVar(&sortOrder, "sort", "top", "story listing: top, new, best")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of stories to fetch")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "classify everything fresh, do not persist")
	return cmd
}

func scanRSSCmd() *cobra.Command {
	var (
		keywords []string
		limit    int
		noCache  bool
	)

	cmd := &cobra.Command{
		Use:   "scan-rss [feed-url]",
		Short: "Scan an RSS or Atom feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cfg, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if limit <= 0 {
				limit = cfg.Scan.DefaultLimit
			}

			result, err := application.Scanner.Scan(cmd.Context(), usecase.ScanRequest{
				Source:   "rss",
				Query:    args[0],
				Keywords: keywords,
				Limit:    limit,
				Project:  projectFlag,
				NoCache:  noCache,
			})
			if err != nil {
				return err
			}

			printReport(result.Report, result.Stats)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&keywords, "keywords", "k", nil, "relevance keywords for feed items")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of items to fetch")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "classify everything fresh, do not persist")
	return cmd
}

func digestCmd() *cobra.Command {
	var (
		dryRun        bool
		format        string
		limit         int
		minConfidence float64
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Generate a digest from unconsumed signal posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cfg, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if limit <= 0 {
				limit = cfg.Digest.DefaultLimit
			}
			if minConfidence <= 0 {
				minConfidence = cfg.Digest.MinConfidence
			}

			if dryRun {
				stories, err := application.Digests.Preview(cmd.Context(), projectFlag, limit, minConfidence)
				if err != nil {
					return err
				}
				if len(stories) == 0 {
					fmt.Println("No eligible posts.")
					return nil
				}
				fmt.Printf("Digest would contain %d stories:\n", len(stories))
				for i, story := range stories {
					fmt.Printf("%2d. [%s %.2f] %s\n", i+1, story.Classification.Category, story.Classification.Confidence, story.Post.Title)
				}
				return nil
			}

			formats, err := parseFormats(format)
			if err != nil {
				return err
			}

			d, paths, err := application.Digests.Run(cmd.Context(), projectFlag, limit, minConfidence, formats...)
			if err != nil {
				return err
			}

			fmt.Printf("Digest %s generated with %d stories.\n", d.ID, len(d.Stories))
			for _, path := range paths {
				fmt.Println("  ", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show eligible posts without consuming them")
	cmd.Flags().StringVar(&format, "format", "markdown", "output formats: markdown, json, both")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of stories")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "minimum classification confidence")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [label]",
		Short: "Show recent scan history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			label := ""
			if len(args) == 1 {
				label = args[0]
			}

			records, err := application.Store.ScanHistory(cmd.Context(), label, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No scans recorded.")
				return nil
			}

			for _, r := range records {
				fmt.Printf("%s  %-12s %-20s fetched=%-3d new=%-3d cached=%-3d signal=%.0f%%\n",
					r.ScanDate.Format("2006-01-02 15:04"),
					r.Source, r.Label,
					r.PostsFetched, r.PostsClassified, r.PostsCached,
					r.SignalRatio*100)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache totals and the project's category breakdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			stats, err := application.Store.Stats(cmd.Context(), projectFlag)
			if err != nil {
				return err
			}

			fmt.Printf("Cached posts: %d, classifications: %d total\n",
				stats.TotalPosts, stats.TotalClassifications)
			fmt.Printf("Project %s: %d classifications (%d signal, %d noise, %d sent in digests)\n",
				projectFlag, stats.ProjectClassifications,
				stats.SignalCount(), stats.NoiseCount(), stats.ConsumedCount)

			for _, entry := range stats.SortedCategories() {
				fmt.Printf("  %-18s %d\n", entry.Category, entry.Count)
			}
			return nil
		},
	}
}

func bookmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookmark",
		Short: "Save digest stories for later reading",
	}
	cmd.AddCommand(bookmarkShowCmd())
	cmd.AddCommand(bookmarkAddCmd())
	cmd.AddCommand(bookmarkListCmd())
	cmd.AddCommand(bookmarkDoneCmd())
	cmd.AddCommand(bookmarkStatusCmd())
	return cmd
}

func bookmarkShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [date|latest]",
		Short: "Show the stories of a JSON digest with their bookmark ids",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			ref := "latest"
			if len(args) == 1 {
				ref = args[0]
			}

			artifact, err := application.Bookmarks.Artifact(ref)
			if err != nil {
				return err
			}

			fmt.Printf("Digest %s (%s), %d stories:\n", artifact.DigestID, artifact.GeneratedAt, len(artifact.Stories))
			for _, story := range artifact.Stories {
				tags := strings.Join(story.TopicTags, ",")
				if tags == "" {
					tags = "none"
				}
				fmt.Printf("%s  [%s] [%s] %s\n", story.ID, story.Category, tags, story.Title)
				fmt.Printf("    %s\n", story.URL)
			}
			return nil
		},
	}
}

func bookmarkAddCmd() *cobra.Command {
	var (
		note   string
		status string
	)

	cmd := &cobra.Command{
		Use:   "add [story-id]",
		Short: "Bookmark a digest story by its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := domain.ParseBookmarkStatus(status)
			if !ok {
				return fmt.Errorf("unknown status %q, expected to_read, to_implement or done", status)
			}

			application, _, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			bookmark, created, err := application.Bookmarks.Add(cmd.Context(), args[0], note, parsed)
			if err != nil {
				return err
			}
			if !created {
				fmt.Printf("Already bookmarked: %s\n", bookmark.StoryID)
				return nil
			}
			fmt.Printf("Bookmarked %s: %s\n", bookmark.StoryID, bookmark.Title)
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "free-form note to keep with the bookmark")
	cmd.Flags().StringVar(&status, "status", string(domain.BookmarkToRead), "initial status: to_read, to_implement, done")
	return cmd
}

func bookmarkListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved bookmarks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter domain.BookmarkStatus
			if status != "" {
				parsed, ok := domain.ParseBookmarkStatus(status)
				if !ok {
					return fmt.Errorf("unknown status %q, expected to_read, to_implement or done", status)
				}
				filter = parsed
			}

			application, _, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			bookmarks, err := application.Bookmarks.List(cmd.Context(), filter, limit)
			if err != nil {
				return err
			}
			if len(bookmarks) == 0 {
				fmt.Println("No bookmarks saved.")
				return nil
			}

			for _, b := range bookmarks {
				fmt.Printf("%-14s %-12s [%s] %s\n", b.StoryID, b.Status, b.Category, b.Title)
				if b.Notes != "" {
					fmt.Printf("    note: %s\n", b.Notes)
				}
				fmt.Printf("    %s\n", b.URL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status: to_read, to_implement, done")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of bookmarks to show")
	return cmd
}

func bookmarkDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done [story-id]",
		Short: "Mark a bookmark as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Bookmarks.SetStatus(cmd.Context(), args[0], domain.BookmarkDone); err != nil {
				return err
			}
			fmt.Printf("Marked %s as done.\n", args[0])
			return nil
		},
	}
}

func bookmarkStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [story-id] [new-status]",
		Short: "Move a bookmark to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := domain.ParseBookmarkStatus(args[1])
			if !ok {
				return fmt.Errorf("unknown status %q, expected to_read, to_implement or done", args[1])
			}

			application, _, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Bookmarks.SetStatus(cmd.Context(), args[0], parsed); err != nil {
				return err
			}
			fmt.Printf("Moved %s to %s.\n", args[0], parsed)
			return nil
		},
	}
}

func projectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List configured projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			names, err := application.Projects.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("No projects configured.")
				return nil
			}
			for _, name := range names {
				p, err := application.Projects.Load(name)
				if err != nil {
					fmt.Printf("%-16s (broken: %v)\n", name, err)
					continue
				}
				fmt.Printf("%-16s %s\n", name, p.Description)
			}
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run recurring scans for every project until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return application.RunScheduled(ctx)
		},
	}
}

func parseFormats(raw string) ([]digest.Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "markdown", "md":
		return []digest.Format{digest.FormatMarkdown}, nil
	case "json":
		return []digest.Format{digest.FormatJSON}, nil
	case "both", "all":
		return []digest.Format{digest.FormatMarkdown, digest.FormatJSON}, nil
	default:
		return nil, fmt.Errorf("unknown format %q, expected markdown, json or both", raw)
	}
}

func printReport(report domain.Report, stats domain.CacheStats) {
	fmt.Printf("Scan of %s (%s)\n", report.Label, report.Source)
	fmt.Printf("Posts: %d total, %d cached, %d newly classified", stats.Total, stats.Cached, stats.New)
	if stats.Total > 0 {
		fmt.Printf(" (hit rate %.0f%%, ~$%.2f saved)", stats.HitRate*100, stats.CostSaved)
	}
	fmt.Println()

	fmt.Printf("Signal ratio: %.1f%% (grade %s", report.SignalRatio*100, analyze.HealthGrade(report.SignalRatio))
	if report.UnrelatedCount > 0 {
		fmt.Printf(", %d unrelated excluded", report.UnrelatedCount)
	}
	fmt.Println(")")

	if len(report.CategoryCounts) > 0 {
		categories := make([]domain.Category, 0, len(report.CategoryCounts))
		for category := range report.CategoryCounts {
			categories = append(categories, category)
		}
		sort.Slice(categories, func(i, j int) bool {
			return report.CategoryCounts[categories[i]] > report.CategoryCounts[categories[j]]
		})
		fmt.Println("Categories:")
		for _, category := range categories {
			fmt.Printf("  %-18s %d\n", category, report.CategoryCounts[category])
		}
	}

	if len(report.TopSignal) > 0 {
		fmt.Println("Top signal:")
		for _, summary := range report.TopSignal {
			fmt.Printf("  [%.2f] %s\n", summary.Confidence, summary.Title)
		}
	}
	if len(report.TopNoise) > 0 {
		fmt.Println("Top noise:")
		for _, summary := range report.TopNoise {
			fmt.Printf("  [%.2f] %s\n", summary.Confidence, summary.Title)
		}
	}
}
