package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"comment-insights/internal/models"
	"comment-insights/shared/ai"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoUsableResults is returned when no configured video produced a usable result.
var ErrNoUsableResults = errors.New("no video produced usable results")

// CommentSource produces the downloaded comments of a video.
type CommentSource interface {
	Comments(ctx context.Context, videoID string) ([]models.Comment, error)
}

// ResultStore persists video results under their cache key.
type ResultStore interface {
	Lookup(videoID, cacheKey string) (*models.VideoAnalysisResult, bool, error)
	Save(result *models.VideoAnalysisResult) error
}

type VideoStatus string

const (
	StatusCached     VideoStatus = "cached"
	StatusAnalyzed   VideoStatus = "analyzed"
	StatusIncomplete VideoStatus = "incomplete"
	StatusEmpty      VideoStatus = "empty"
	StatusFailed     VideoStatus = "failed"
)

// VideoOutcome is the per-video report of a coordinator run.
type VideoOutcome struct {
	VideoID       string
	CacheKey      string
	Status        VideoStatus
	Comments      int
	FailedBatches int
	Err           error
	Duration      time.Duration
}

// Usable reports whether the video contributed data to the run.
func (o VideoOutcome) Usable() bool {
	switch o.Status {
	case StatusCached, StatusAnalyzed, StatusIncomplete:
		return true
	}
	return false
}

type RunSummary struct {
	Outcomes []VideoOutcome
	Results  []*models.VideoAnalysisResult
}

// Usable counts the videos that contributed data.
func (s *RunSummary) Usable() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Usable() {
			n++
		}
	}
	return n
}

type CoordinatorOptions struct {
	MaxVideoWorkers int
	UseCache        bool
}

// Coordinator runs the batch analyzer for every configured video with a bounded number
// of videos in flight.
type Coordinator struct {
	source   CommentSource
	store    ResultStore
	analyzer *BatchAnalyzer
	opts     CoordinatorOptions
	logger   *zap.Logger
}

func NewCoordinator(source CommentSource, store ResultStore, analyzer *BatchAnalyzer, opts CoordinatorOptions, logger *zap.Logger) *Coordinator {
	if opts.MaxVideoWorkers < 1 {
		opts.MaxVideoWorkers = 1
	}
	return &Coordinator{
		source:   source,
		store:    store,
		analyzer: analyzer,
		opts:     opts,
		logger:   logger,
	}
}

// Run analyzes each video, reusing cached results when allowed. Per-video failures are
// recorded in the summary; only a fatal error or a run with no usable video fails Run.
func (c *Coordinator) Run(ctx context.Context, videos []models.VideoRef) (*RunSummary, error) {
	videos = uniqueVideos(videos)
	outcomes := make([]VideoOutcome, len(videos))
	results := make([]*models.VideoAnalysisResult, len(videos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.MaxVideoWorkers)
	for i, video := range videos {
		g.Go(func() error {
			start := time.Now()
			result, outcome, err := c.processVideo(gctx, video)
			outcome.Duration = time.Since(start)
			outcomes[i] = outcome
			results[i] = result
			return err
		})
	}

	summary := &RunSummary{}
	err := g.Wait()
	for i, o := range outcomes {
		if o.VideoID == "" {
			// never started because the run was cancelled
			o = VideoOutcome{VideoID: videos[i].VideoID, Status: StatusFailed, Err: context.Canceled}
		}
		summary.Outcomes = append(summary.Outcomes, o)
		if o.Usable() && results[i] != nil {
			summary.Results = append(summary.Results, results[i])
		}
	}
	if err != nil {
		return summary, fmt.Errorf("analysis aborted: %w", err)
	}

	if summary.Usable() == 0 {
		return summary, ErrNoUsableResults
	}
	c.logger.Info("Analysis finished",
		zap.Int("videos", len(videos)),
		zap.Int("usable", summary.Usable()))
	return summary, nil
}

// processVideo returns a non-nil error only for failures that must abort the whole run.
func (c *Coordinator) processVideo(ctx context.Context, video models.VideoRef) (*models.VideoAnalysisResult, VideoOutcome, error) {
	key := CacheKey(video.VideoID, c.analyzer.Config())
	outcome := VideoOutcome{VideoID: video.VideoID, CacheKey: key}
	logger := c.logger.With(zap.String("video_id", video.VideoID), zap.String("cache_key", key))

	if c.opts.UseCache {
		cached, ok, err := c.store.Lookup(video.VideoID, key)
		switch {
		case err != nil:
			logger.Warn("Failed to read cached result, reanalyzing", zap.Error(err))
		case ok:
			// any stored result for the key is reused; clear-cache or a new cache_version forces a rerun
			logger.Info("Using cached analysis", zap.Bool("incomplete", cached.Incomplete))
			outcome.Status = StatusCached
			outcome.Comments = cached.CommentsAnalyzed
			outcome.FailedBatches = len(cached.FailedBatches)
			if cached.Empty {
				outcome.Status = StatusEmpty
				outcome.Err = ErrNoComments
			}
			return cached, outcome, nil
		}
	}

	comments, err := c.source.Comments(ctx, video.VideoID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, outcome, ctx.Err()
		}
		logger.Error("Failed to load comments", zap.Error(err))
		outcome.Status = StatusFailed
		outcome.Err = fmt.Errorf("failed to load comments: %w", err)
		return nil, outcome, nil
	}

	result, err := c.analyzer.Analyze(ctx, video, comments)
	if err != nil {
		if errors.Is(err, ai.ErrFatal) || ctx.Err() != nil {
			outcome.Status = StatusFailed
			outcome.Err = err
			return nil, outcome, err
		}
		logger.Error("Video analysis failed", zap.Error(err))
		outcome.Status = StatusFailed
		outcome.Err = err
		return nil, outcome, nil
	}

	if err := c.store.Save(result); err != nil {
		logger.Error("Failed to persist analysis", zap.Error(err))
		outcome.Status = StatusFailed
		outcome.Err = fmt.Errorf("failed to persist analysis: %w", err)
		return nil, outcome, nil
	}

	outcome.Comments = result.CommentsAnalyzed
	outcome.FailedBatches = len(result.FailedBatches)
	switch {
	case result.Empty:
		outcome.Status = StatusEmpty
		outcome.Err = ErrNoComments
	case result.Incomplete:
		outcome.Status = StatusIncomplete
	default:
		outcome.Status = StatusAnalyzed
	}
	return result, outcome, nil
}

func uniqueVideos(videos []models.VideoRef) []models.VideoRef {
	seen := make(map[string]bool, len(videos))
	out := make([]models.VideoRef, 0, len(videos))
	for _, v := range videos {
		if seen[v.VideoID] {
			continue
		}
		seen[v.VideoID] = true
		out = append(out, v)
	}
	return out
}
