package aggregate

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"comment-insights/internal/models"
	"comment-insights/shared/analysis"
	"comment-insights/shared/storage"

	"go.uber.org/zap"
)

// ErrNoResults is returned when there is no persisted video result to aggregate.
var ErrNoResults = errors.New("no video analysis results to aggregate")

// ResultLoader reads every persisted video result, reporting the files it could not decode.
type ResultLoader interface {
	LoadAll() ([]*models.VideoAnalysisResult, []storage.ResultFile, error)
}

type Aggregator struct {
	results    ResultLoader
	outputFile string
	logger     *zap.Logger
	now        func() time.Time
}

func NewAggregator(results ResultLoader, outputFile string, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		results:    results,
		outputFile: outputFile,
		logger:     logger,
		now:        time.Now,
	}
}

// Run rebuilds the aggregated analysis from all persisted results and writes it.
func (a *Aggregator) Run() (*models.AggregatedAnalysis, error) {
	results, unreadable, err := a.results.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load video results: %w", err)
	}
	for _, f := range unreadable {
		a.logger.Warn("Skipping unreadable video result",
			zap.String("video_id", f.VideoID),
			zap.String("file", f.Path),
			zap.Error(f.Err))
	}

	aggregated, err := Combine(results, a.now().UTC())
	if err != nil {
		if len(unreadable) > 0 {
			return nil, fmt.Errorf("%w (%d unreadable result files skipped)", err, len(unreadable))
		}
		return nil, err
	}
	for _, f := range unreadable {
		aggregated.Metadata.UnreadableFiles = append(aggregated.Metadata.UnreadableFiles, filepath.Base(f.Path))
	}

	if err := storage.WriteJSONAtomic(a.outputFile, aggregated); err != nil {
		return nil, fmt.Errorf("failed to write aggregated analysis: %w", err)
	}

	a.logger.Info("Aggregated analysis written",
		zap.String("file", a.outputFile),
		zap.Int("videos", aggregated.Metadata.TotalVideos),
		zap.Int("comments", aggregated.CommentsAnalyzed),
		zap.Int("incomplete", len(aggregated.Metadata.IncompleteVideos)))
	return aggregated, nil
}

// Combine merges video results into one dataset. Only the newest result of each video is
// used and videos are ordered by id, so the output depends only on the inputs and
// generatedAt.
func Combine(results []*models.VideoAnalysisResult, generatedAt time.Time) (*models.AggregatedAnalysis, error) {
	latest := map[string]*models.VideoAnalysisResult{}
	for _, r := range results {
		if r == nil || r.VideoID == "" {
			continue
		}
		prev, ok := latest[r.VideoID]
		if !ok || newer(r, prev) {
			latest[r.VideoID] = r
		}
	}
	if len(latest) == 0 {
		return nil, ErrNoResults
	}

	videos := make([]*models.VideoAnalysisResult, 0, len(latest))
	for _, r := range latest {
		videos = append(videos, r)
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].VideoID < videos[j].VideoID })

	out := &models.AggregatedAnalysis{
		Metadata: models.AggregationMetadata{
			TotalVideos: len(videos),
			GeneratedAt: generatedAt,
		},
		Videos: videos,
	}

	var merged []models.BatchResult
	var configs []models.AnalysisConfig
	for _, v := range videos {
		configs = append(configs, v.Config)
		if v.Empty || !v.Usable() {
			out.Metadata.EmptyVideos = append(out.Metadata.EmptyVideos, v.VideoID)
			continue
		}
		if v.Incomplete {
			out.Metadata.IncompleteVideos = append(out.Metadata.IncompleteVideos, v.VideoID)
		}
		merged = append(merged, *v.Merged)
	}
	if len(merged) == 0 {
		return nil, fmt.Errorf("%w: every video result is empty", ErrNoResults)
	}

	if cfg, ok := sharedConfig(configs); ok {
		out.Metadata.ConfigUsed = &cfg
	}

	total := analysis.MergeBatchResults(merged...)
	out.CommentsAnalyzed = total.Comments
	out.Sentiment = analysis.SummarizeSentiment(total.Sentiment)
	out.TopTopics = analysis.Rank(total.Topics, analysis.TopItems)
	out.CommonPainPoints = analysis.Rank(total.PainPoints, analysis.TopItems)
	out.HighlightedAdvantages = analysis.Rank(total.Advantages, analysis.TopItems)
	out.ChannelAudience = analysis.SummarizeAudience(total)
	return out, nil
}

func newer(a, b *models.VideoAnalysisResult) bool {
	if !a.AnalyzedAt.Equal(b.AnalyzedAt) {
		return a.AnalyzedAt.After(b.AnalyzedAt)
	}
	return a.CacheKey > b.CacheKey
}

// sharedConfig returns the analysis config when every video used the same one.
func sharedConfig(configs []models.AnalysisConfig) (models.AnalysisConfig, bool) {
	if len(configs) == 0 {
		return models.AnalysisConfig{}, false
	}
	for _, c := range configs[1:] {
		if c != configs[0] {
			return models.AnalysisConfig{}, false
		}
	}
	return configs[0], true
}
