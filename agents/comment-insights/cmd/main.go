package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	commentinsights "comment-insights/agents/comment-insights"
	"comment-insights/shared/config"
	"comment-insights/shared/logging"
	"comment-insights/shared/scheduler"

	"go.uber.org/zap"
)

const usage = `Usage: comment-insights <command> [args]

Commands:
  run                    download, analyze, aggregate and report
  download               download comments for the configured videos
  analyze                analyze downloaded comments (uses the cache)
  aggregate              combine cached video results
  report                 generate markdown reports from the aggregation
  status                 show the index, cached results and recent runs
  clear-cache [video_id] remove cached results for one or all videos
  serve                  run the pipeline on the configured schedule
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]
	if command == "-h" || command == "--help" || command == "help" {
		fmt.Print(usage)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Create context that responds to signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pipeline := commentinsights.NewPipeline(cfg, logger)
	defer func() { _ = pipeline.Close() }()

	if err := run(ctx, command, os.Args[2:], cfg, pipeline, logger); err != nil {
		logger.Error("Command failed", zap.String("command", command), zap.Error(err))
		_ = pipeline.Close()
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, cfg *config.Config, pipeline *commentinsights.Pipeline, logger *zap.Logger) error {
	switch command {
	case commentinsights.CommandRun, commentinsights.CommandDownload, commentinsights.CommandAnalyze,
		commentinsights.CommandAggregate, commentinsights.CommandReport:
		metrics, err := pipeline.Execute(ctx, command)
		if err != nil {
			return err
		}
		fmt.Println(metrics.GetSummary())
		if err := metrics.PartialError(); err != nil {
			fmt.Printf("Completed with problems: %v\n", err)
		}
		return nil

	case "status":
		return printStatus(ctx, pipeline)

	case "clear-cache":
		videoID := ""
		if len(args) > 0 {
			videoID = args[0]
		}
		removed, err := pipeline.ClearCache(videoID)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d cached result(s)\n", removed)
		return nil

	case "serve":
		if err := pipeline.Initialize(); err != nil {
			return err
		}
		s := scheduler.New(cfg, pipeline, pipeline.RunLog(), logger)
		fmt.Println("Starting scheduler...")
		if err := s.Start(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("scheduler failed: %w", err)
		}
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("%w: %s", commentinsights.ErrUnknownCommand, command)
	}
}

func printStatus(ctx context.Context, pipeline *commentinsights.Pipeline) error {
	status, err := pipeline.Status(ctx, 5)
	if err != nil {
		return err
	}

	if status.Indexed > 0 {
		fmt.Printf("Indexed videos: %d (downloaded %s)\n", status.Indexed, status.IndexedAt.Local().Format(time.DateTime))
	} else {
		fmt.Println("Indexed videos: none, run download first")
	}
	fmt.Printf("Cached results: %d\n", len(status.CacheFiles))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, f := range status.CacheFiles {
		fmt.Fprintf(w, "  %s\t%s\n", f.VideoID, f.CacheKey)
	}
	_ = w.Flush()

	if len(status.Runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Println("\nRecent runs:")
	for _, r := range status.Runs {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", r.StartedAt.Local().Format(time.DateTime), r.Command, r.Status, r.ID, r.Error)
	}
	_ = w.Flush()

	if len(status.Outcomes) > 0 {
		fmt.Println("\nLast run videos:")
		for _, o := range status.Outcomes {
			fmt.Fprintf(w, "  %s\t%s\t%d comments\t%d failed batches\t%s\t%s\n",
				o.VideoID, o.Status, o.Comments, o.FailedBatches, o.Duration.Round(time.Millisecond), o.Error)
		}
		_ = w.Flush()
	}
	return nil
}
