package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"comment-insights/internal/models"
	"comment-insights/shared/aggregate"
	"comment-insights/shared/analysis"
	"comment-insights/shared/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSummarizer struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("## Section %d\n- insight", len(f.prompts)), nil
}

var generatedAt = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func writeAggregated(t *testing.T, dir string) string {
	t.Helper()
	merged := models.BatchResult{
		Comments:  4,
		Sentiment: models.SentimentCounts{Positive: 3, Negative: 1},
		Topics:    map[string]int{"editing": 3},
		Audience:  models.AudienceSignals{RelevantFeedback: 4, Languages: map[string]int{"en": 4}},
	}
	video := &models.VideoAnalysisResult{
		VideoID:         "abc",
		VideoURL:        "https://youtu.be/abc",
		CacheKey:        strings.Repeat("a", 32),
		Config:          models.AnalysisConfig{Model: "gemini-test", FilterLanguage: "en", MinLength: 3},
		Merged:          &merged,
		Incomplete:      true,
		FailedBatches:   []models.BatchFailure{{Index: 1, Size: 2, Error: "503"}},
		AudienceProfile: "Mostly hobbyists.",
	}
	analysis.ApplySummary(video)

	aggregated, err := aggregate.Combine([]*models.VideoAnalysisResult{video}, generatedAt)
	require.NoError(t, err)

	path := filepath.Join(dir, "aggregated_analysis.json")
	require.NoError(t, storage.WriteJSONAtomic(path, aggregated))
	return path
}

func newTestGenerator(summarizer analysis.Summarizer, aggregatedFile, reportsDir string, audience bool) *Generator {
	g := NewGenerator(summarizer, Options{
		AggregatedFile:  aggregatedFile,
		ReportsDir:      reportsDir,
		OutputLanguage:  "Czech",
		AnalyzeAudience: audience,
		Retry:           analysis.RetryPolicy{MaxRetries: 1, InitialWait: time.Millisecond},
	}, zap.NewNop())
	g.now = func() time.Time { return generatedAt }
	return g
}

func TestGenerateWritesTimestampedAndLatest(t *testing.T) {
	dir := t.TempDir()
	reportsDir := filepath.Join(dir, "reports")
	summarizer := &fakeSummarizer{}

	reports, err := newTestGenerator(summarizer, writeAggregated(t, dir), reportsDir, false).Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, KeyInsights, reports[0].Name)
	assert.Equal(t, Comprehensive, reports[1].Name)

	assert.FileExists(t, filepath.Join(reportsDir, "key_insights_2025-06-01_09-30.md"))
	assert.FileExists(t, filepath.Join(reportsDir, "latest_key_insights.md"))
	assert.FileExists(t, filepath.Join(reportsDir, "comprehensive_report_2025-06-01_09-30.md"))

	latest, err := os.ReadFile(filepath.Join(reportsDir, "latest_comprehensive_report.md"))
	require.NoError(t, err)
	assert.Equal(t, reports[1].Content, string(latest))
	assert.True(t, strings.HasPrefix(string(latest), "# Comprehensive YouTube Comment Analysis\n"))
	assert.Contains(t, string(latest), "partially analyzed: abc")

	require.Len(t, summarizer.prompts, 2)
	assert.Contains(t, summarizer.prompts[0], "VIDEO abc (https://youtu.be/abc)")
	assert.Contains(t, summarizer.prompts[0], "editing (3)")
	assert.Contains(t, summarizer.prompts[0], "report in Czech")
	assert.Contains(t, summarizer.prompts[1], "Analysis Model: gemini-test")
	assert.Contains(t, summarizer.prompts[1], "Audience analysis was not enabled")
	assert.NotContains(t, summarizer.prompts[1], `"merged"`)
}

func TestGenerateWithAudience(t *testing.T) {
	dir := t.TempDir()
	summarizer := &fakeSummarizer{}

	reports, err := newTestGenerator(summarizer, writeAggregated(t, dir), filepath.Join(dir, "reports"), true).Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, AudienceInsights, reports[1].Name)

	require.Len(t, summarizer.prompts, 3)
	assert.Contains(t, summarizer.prompts[1], "Mostly hobbyists.")
	assert.Contains(t, summarizer.prompts[2], "## Section 2", "audience insights feed the comprehensive report")
}

func TestGenerateWithoutAggregation(t *testing.T) {
	dir := t.TempDir()
	_, err := newTestGenerator(&fakeSummarizer{}, filepath.Join(dir, "missing.json"), dir, false).Generate(context.Background())
	assert.ErrorIs(t, err, ErrNoAggregation)
}

func TestGenerateSummarizerFailure(t *testing.T) {
	dir := t.TempDir()
	reportsDir := filepath.Join(dir, "reports")
	summarizer := &fakeSummarizer{err: errors.New("overloaded")}

	_, err := newTestGenerator(summarizer, writeAggregated(t, dir), reportsDir, false).Generate(context.Background())
	assert.Error(t, err)
	assert.Len(t, summarizer.prompts, 2, "one retry")
	assert.NoDirExists(t, reportsDir)
}
