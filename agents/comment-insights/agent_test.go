package commentinsights

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"comment-insights/internal/models"
	"comment-insights/shared/analysis"
	"comment-insights/shared/config"
	"comment-insights/shared/report"
	"comment-insights/shared/scheduler"
	"comment-insights/shared/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	mu       sync.Mutex
	comments map[string][]models.Comment
	errs     map[string]error
	calls    int
}

func (f *fakeSource) Comments(ctx context.Context, videoID string) ([]models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[videoID]; err != nil {
		return nil, err
	}
	return f.comments[videoID], nil
}

type fakeModel struct {
	mu        sync.Mutex
	batches   int
	summaries int
}

func (f *fakeModel) ExtractBatch(ctx context.Context, comments []models.Comment) ([]models.CommentAnalysis, error) {
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()

	out := make([]models.CommentAnalysis, len(comments))
	for i := range comments {
		out[i] = models.CommentAnalysis{
			Sentiment:          models.SentimentPositive,
			Topics:             []string{"editing"},
			PainPoints:         []string{},
			Advantages:         []string{"clear explanations"},
			Recommendations:    []string{},
			IsRelevantFeedback: true,
		}
	}
	return out, nil
}

func (f *fakeModel) Summarize(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.summaries++
	f.mu.Unlock()
	return "## Findings\n- viewers enjoy the editing", nil
}

type fakeMailer struct {
	titles []string
	err    error
}

func (f *fakeMailer) SendReport(title, markdown string, date time.Time) error {
	f.titles = append(f.titles, title)
	return f.err
}

func testConfig(t *testing.T, urls ...string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		VideoURLs:       urls,
		AnalysisModel:   "test-model",
		BatchSize:       2,
		MaxComments:     100,
		MaxVideoWorkers: 2,
		MaxBatchWorkers: 2,
		CacheVersion:    "1.0",
		OutputLanguage:  "English",
		Retry:           config.RetryConfig{MaxRetries: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
		Paths: config.PathsConfig{
			DataDir:    filepath.Join(dir, "data"),
			ReportsDir: filepath.Join(dir, "reports"),
			LogsDir:    filepath.Join(dir, "logs"),
		},
	}
}

func comments(texts ...string) []models.Comment {
	out := make([]models.Comment, len(texts))
	for i, text := range texts {
		out[i] = models.Comment{ID: string(rune('a' + i)), Text: text, Language: "en"}
	}
	return out
}

func newTestPipeline(t *testing.T, cfg *config.Config, source *fakeSource, model *fakeModel) *Pipeline {
	t.Helper()
	p := NewPipeline(cfg, zap.NewNop())
	p.newSource = func(ctx context.Context) (analysis.CommentSource, error) { return source, nil }
	p.newModel = func(ctx context.Context) (Model, error) { return model, nil }
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func twoVideoSource() *fakeSource {
	return &fakeSource{comments: map[string][]models.Comment{
		"videoAAA1": comments("Loved the pacing of this one", "Great editing as always", "Thanks for the tips"),
		"videoBBB2": comments("The explanation was really clear"),
	}}
}

func TestPipelineName(t *testing.T) {
	p := NewPipeline(&config.Config{}, zap.NewNop())
	assert.Equal(t, "Comment Insights", p.Name())
}

func TestExecuteRunsFullPipeline(t *testing.T) {
	cfg := testConfig(t, "https://www.youtube.com/watch?v=videoAAA1", "https://youtu.be/videoBBB2")
	source := twoVideoSource()
	model := &fakeModel{}
	p := newTestPipeline(t, cfg, source, model)
	mailer := &fakeMailer{}
	p.mailer = mailer

	metrics, err := p.Execute(context.Background(), CommandRun)
	require.NoError(t, err)

	assert.Equal(t, 2, metrics.Downloaded)
	assert.Equal(t, 2, metrics.Analyzed)
	assert.Equal(t, 2, metrics.Aggregated)
	assert.Equal(t, 2, metrics.Reports)
	assert.False(t, metrics.Partial())
	// 3 comments in batches of 2, plus 1 comment
	assert.Equal(t, 3, model.batches)
	assert.Equal(t, []string{"Key Insights Report"}, mailer.titles)

	var aggregated models.AggregatedAnalysis
	require.NoError(t, storage.ReadJSON(cfg.AggregatedFile(), &aggregated))
	assert.Equal(t, 4, aggregated.CommentsAnalyzed)
	assert.Equal(t, 4, aggregated.Sentiment.Positive)

	_, err = os.Stat(filepath.Join(cfg.Paths.ReportsDir, "latest_"+report.KeyInsights+".md"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Paths.ReportsDir, "latest_"+report.Comprehensive+".md"))
	assert.NoError(t, err)

	runs, err := p.RunLog().RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, CommandRun, runs[0].Command)
	assert.Equal(t, storage.RunSucceeded, runs[0].Status)

	outcomes, err := p.RunLog().Outcomes(context.Background(), runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, outcomes, 2)
}

func TestExecuteRerunUsesCache(t *testing.T) {
	cfg := testConfig(t, "videoAAA1", "videoBBB2")
	source := twoVideoSource()
	model := &fakeModel{}
	p := newTestPipeline(t, cfg, source, model)

	_, err := p.Execute(context.Background(), CommandRun)
	require.NoError(t, err)
	batches, downloads := model.batches, source.calls

	metrics, err := p.Execute(context.Background(), CommandRun)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.DownloadSkipped)
	assert.Equal(t, 2, metrics.Cached)
	assert.Equal(t, 0, metrics.Analyzed)
	assert.Equal(t, batches, model.batches, "no extraction calls on a cached rerun")
	assert.Equal(t, downloads, source.calls)
}

func TestDownloadIsolatesFailures(t *testing.T) {
	cfg := testConfig(t, "videoAAA1", "videoBBB2", "videoCCC3")
	source := twoVideoSource()
	source.errs = map[string]error{"videoBBB2": errors.New("commentsDisabled")}
	p := newTestPipeline(t, cfg, source, &fakeModel{})

	metrics, err := p.Execute(context.Background(), CommandDownload)
	require.NoError(t, err)
	// videoCCC3 has no comments at all
	assert.Equal(t, 1, metrics.Downloaded)
	assert.Equal(t, 2, metrics.DownloadFailed)
	assert.True(t, metrics.Partial())

	index, err := p.comments.ReadIndex()
	require.NoError(t, err)
	require.Len(t, index.Videos, 1)
	assert.Equal(t, "videoAAA1", index.Videos[0].VideoID)
	assert.Equal(t, p.comments.Path("videoAAA1"), index.Videos[0].CommentFile)

	runs, err := p.RunLog().RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, storage.RunPartial, runs[0].Status)
}

func TestDownloadFailsWithoutAnyComments(t *testing.T) {
	cfg := testConfig(t, "videoAAA1")
	source := &fakeSource{errs: map[string]error{"videoAAA1": errors.New("quotaExceeded")}}
	p := newTestPipeline(t, cfg, source, &fakeModel{})

	_, err := p.Execute(context.Background(), CommandDownload)
	assert.ErrorIs(t, err, ErrNoDownloads)

	runs, err := p.RunLog().RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, storage.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "no video has downloaded comments")
}

func TestForceDownloadRefetches(t *testing.T) {
	cfg := testConfig(t, "videoAAA1")
	source := twoVideoSource()
	p := newTestPipeline(t, cfg, source, &fakeModel{})

	_, err := p.Execute(context.Background(), CommandDownload)
	require.NoError(t, err)
	cfg.ForceDownload = true
	metrics, err := p.Execute(context.Background(), CommandDownload)
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.Downloaded)
	assert.Equal(t, 2, source.calls)
}

func TestAnalyzeRequiresIndex(t *testing.T) {
	p := newTestPipeline(t, testConfig(t, "videoAAA1"), twoVideoSource(), &fakeModel{})

	_, err := p.Execute(context.Background(), CommandAnalyze)
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestAnalyzeOnlyConfiguredVideos(t *testing.T) {
	cfg := testConfig(t, "videoAAA1", "videoBBB2")
	source := twoVideoSource()
	model := &fakeModel{}
	p := newTestPipeline(t, cfg, source, model)

	_, err := p.Execute(context.Background(), CommandDownload)
	require.NoError(t, err)

	// videoBBB2 removed from the config after the download
	cfg.VideoURLs = []string{"videoAAA1", "videoCCC3"}
	metrics, err := p.Execute(context.Background(), CommandAnalyze)
	require.NoError(t, err)

	require.Len(t, metrics.Outcomes, 1)
	assert.Equal(t, "videoAAA1", metrics.Outcomes[0].VideoID)
	assert.Equal(t, 2, model.batches)

	cfg.VideoURLs = []string{"videoCCC3"}
	_, err = p.Execute(context.Background(), CommandAnalyze)
	assert.ErrorIs(t, err, ErrNoDownloads)
}

func TestReportRequiresCredentials(t *testing.T) {
	cfg := testConfig(t, "videoAAA1")
	p := NewPipeline(cfg, zap.NewNop())
	t.Cleanup(func() { _ = p.Close() })

	_, err := p.Execute(context.Background(), CommandReport)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}

func TestExecuteRejectsInvalidInput(t *testing.T) {
	p := newTestPipeline(t, testConfig(t, "https://vimeo.com/1234567"), twoVideoSource(), &fakeModel{})

	_, err := p.Execute(context.Background(), CommandDownload)
	assert.ErrorIs(t, err, ErrNoVideos)

	_, err = p.Execute(context.Background(), "publish")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestRunOnceReportsPartialFailure(t *testing.T) {
	cfg := testConfig(t, "videoAAA1", "videoBBB2")
	source := twoVideoSource()
	source.errs = map[string]error{"videoBBB2": errors.New("commentsDisabled")}
	p := newTestPipeline(t, cfg, source, &fakeModel{})

	var partial error
	var succeeded bool
	events := &scheduler.AgentEvents{
		OnSuccess:        func(metrics scheduler.Metrics, duration time.Duration) { succeeded = true },
		OnPartialFailure: func(err error, duration time.Duration) { partial = err },
	}

	require.NoError(t, p.RunOnce(context.Background(), events))
	assert.False(t, succeeded)
	require.Error(t, partial)
	assert.Contains(t, partial.Error(), "1 downloads failed")
}

func TestStatusAndClearCache(t *testing.T) {
	cfg := testConfig(t, "videoAAA1", "videoBBB2")
	p := newTestPipeline(t, cfg, twoVideoSource(), &fakeModel{})

	_, err := p.Execute(context.Background(), CommandRun)
	require.NoError(t, err)

	status, err := p.Status(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Indexed)
	assert.Len(t, status.CacheFiles, 2)
	require.Len(t, status.Runs, 1)
	assert.Len(t, status.Outcomes, 2)

	removed, err := p.ClearCache("videoAAA1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = p.ClearCache("")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	status, err = p.Status(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, status.CacheFiles)
}

func TestMetricsGetSummary(t *testing.T) {
	tests := []struct {
		name     string
		metrics  Metrics
		expected string
	}{
		{
			name:     "All zeros",
			metrics:  Metrics{},
			expected: "downloaded 0 videos (0 skipped), analyzed 0 (0 cached, 0 incomplete, 0 failed), wrote 0 reports",
		},
		{
			name: "Mixed outcomes",
			metrics: Metrics{
				Downloaded:      2,
				DownloadSkipped: 1,
				Analyzed:        1,
				Incomplete:      1,
				Cached:          1,
				Reports:         3,
			},
			expected: "downloaded 2 videos (1 skipped), analyzed 2 (1 cached, 1 incomplete, 0 failed), wrote 3 reports",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.metrics.GetSummary())
		})
	}
}

func TestMetricsPartialError(t *testing.T) {
	m := &Metrics{}
	m.addOutcomes([]analysis.VideoOutcome{
		{VideoID: "a", Status: analysis.StatusAnalyzed},
		{VideoID: "b", Status: analysis.StatusFailed},
		{VideoID: "c", Status: analysis.StatusIncomplete},
	})

	assert.True(t, m.Partial())
	assert.EqualError(t, m.PartialError(), "1 videos failed (b); 1 videos incomplete")
	assert.NoError(t, (&Metrics{}).PartialError())
}
