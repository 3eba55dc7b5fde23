package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"comment-insights/internal/models"
	"comment-insights/shared/ai"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoComments marks a video that had nothing left to analyze after filtering.
	ErrNoComments = errors.New("no comments to analyze")
	// ErrAllBatchesFailed is returned when every batch of a video failed after retries.
	ErrAllBatchesFailed = errors.New("all batches failed")
)

// BatchExtractor performs the structured per-comment extraction for one batch.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, comments []models.Comment) ([]models.CommentAnalysis, error)
}

// Summarizer turns a prompt into narrative markdown.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

type BatchAnalyzer struct {
	extractor  BatchExtractor
	summarizer Summarizer
	cfg        models.AnalysisConfig
	workers    int
	retry      RetryPolicy
	logger     *zap.Logger
	now        func() time.Time
}

// NewBatchAnalyzer creates an analyzer for one fixed configuration. summarizer is only
// used when cfg.AnalyzeAudience is set and may be nil otherwise.
func NewBatchAnalyzer(extractor BatchExtractor, summarizer Summarizer, cfg models.AnalysisConfig, workers int, retry RetryPolicy, logger *zap.Logger) *BatchAnalyzer {
	if workers < 1 {
		workers = 1
	}
	return &BatchAnalyzer{
		extractor:  extractor,
		summarizer: summarizer,
		cfg:        cfg,
		workers:    workers,
		retry:      retry,
		logger:     logger,
		now:        time.Now,
	}
}

// Config returns the analysis configuration the analyzer was built with.
func (b *BatchAnalyzer) Config() models.AnalysisConfig {
	return b.cfg
}

// Analyze filters, batches and analyzes the comments of one video. Batches that still
// fail after retries are excluded from the merge and the result is flagged incomplete.
// A video with no comments left after filtering yields an Empty result.
func (b *BatchAnalyzer) Analyze(ctx context.Context, video models.VideoRef, comments []models.Comment) (*models.VideoAnalysisResult, error) {
	key := CacheKey(video.VideoID, b.cfg)
	logger := b.logger.With(zap.String("video_id", video.VideoID), zap.String("cache_key", key))

	result := &models.VideoAnalysisResult{
		VideoID:        video.VideoID,
		VideoURL:       video.VideoURL,
		CacheKey:       key,
		Config:         b.cfg,
		CommentsLoaded: len(comments),
	}

	filtered := FilterComments(comments, b.cfg)
	if len(filtered) == 0 {
		logger.Warn("No comments left after filtering", zap.Int("loaded", len(comments)))
		result.Empty = true
		result.AnalyzedAt = b.now()
		ApplySummary(result)
		return result, nil
	}

	batches := Partition(filtered, b.cfg.BatchSize)
	result.BatchesTotal = len(batches)
	logger.Info("Analyzing comments",
		zap.Int("loaded", len(comments)),
		zap.Int("filtered", len(filtered)),
		zap.Int("batches", len(batches)))

	succeeded := make([]*models.BatchResult, len(batches))
	failed := make([]*models.BatchFailure, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, batch := range batches {
		g.Go(func() error {
			batchLogger := logger.With(zap.Int("batch", i))
			analyses, err := Retry(gctx, b.retry, batchLogger, func(ctx context.Context) ([]models.CommentAnalysis, error) {
				return b.extractor.ExtractBatch(ctx, batch)
			})
			if err != nil {
				if errors.Is(err, ai.ErrFatal) || gctx.Err() != nil {
					return err
				}
				batchLogger.Error("Batch failed after retries, excluding it", zap.Error(err))
				failed[i] = &models.BatchFailure{Index: i, Size: len(batch), Error: err.Error()}
				return nil
			}

			reduced := ReduceBatch(batch, analyses)
			succeeded[i] = &reduced
			batchLogger.Debug("Batch analyzed", zap.Int("comments", reduced.Comments))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to analyze video %s: %w", video.VideoID, err)
	}

	var parts []models.BatchResult
	for i := range batches {
		if succeeded[i] != nil {
			parts = append(parts, *succeeded[i])
		}
		if failed[i] != nil {
			result.FailedBatches = append(result.FailedBatches, *failed[i])
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: video %s, %d batches", ErrAllBatchesFailed, video.VideoID, len(batches))
	}

	merged := MergeBatchResults(parts...)
	result.Merged = &merged
	result.Incomplete = len(result.FailedBatches) > 0
	ApplySummary(result)

	if b.cfg.AnalyzeAudience && b.summarizer != nil {
		profile, err := b.audienceProfile(ctx, result)
		if err != nil {
			if errors.Is(err, ai.ErrFatal) || ctx.Err() != nil {
				return nil, err
			}
			logger.Warn("Audience profile failed, continuing without it", zap.Error(err))
		}
		result.AudienceProfile = profile
	}

	result.AnalyzedAt = b.now()
	if result.Incomplete {
		logger.Warn("Video analysis incomplete",
			zap.Int("failed_batches", len(result.FailedBatches)),
			zap.Int("comments_analyzed", result.CommentsAnalyzed))
	} else {
		logger.Info("Video analysis complete", zap.Int("comments_analyzed", result.CommentsAnalyzed))
	}
	return result, nil
}

func (b *BatchAnalyzer) audienceProfile(ctx context.Context, result *models.VideoAnalysisResult) (string, error) {
	data, err := json.MarshalIndent(struct {
		Sentiment models.SentimentSummary `json:"sentiment"`
		Audience  models.AudienceSummary  `json:"audience"`
		Topics    []models.RankedItem     `json:"top_topics"`
	}{result.Sentiment, result.Audience, result.TopTopics}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal audience data: %w", err)
	}

	prompt := ai.BuildAudienceProfilePrompt(string(data))
	return Retry(ctx, b.retry, b.logger, func(ctx context.Context) (string, error) {
		return b.summarizer.Summarize(ctx, prompt)
	})
}
