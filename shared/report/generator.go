package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"comment-insights/internal/models"
	"comment-insights/shared/ai"
	"comment-insights/shared/analysis"
	"comment-insights/shared/storage"

	"go.uber.org/zap"
)

const (
	KeyInsights      = "key_insights"
	AudienceInsights = "audience_insights"
	Comprehensive    = "comprehensive_report"

	timestampLayout = "2006-01-02_15-04"
)

// ErrNoAggregation is returned when the aggregated analysis file has not been written yet.
var ErrNoAggregation = errors.New("aggregated analysis not found, run aggregate first")

type Options struct {
	AggregatedFile  string
	ReportsDir      string
	OutputLanguage  string
	AnalyzeAudience bool
	Retry           analysis.RetryPolicy
}

// Report is one generated markdown document.
type Report struct {
	Name       string
	Title      string
	Path       string
	LatestPath string
	Content    string
}

type Generator struct {
	summarizer analysis.Summarizer
	opts       Options
	logger     *zap.Logger
	now        func() time.Time
}

func NewGenerator(summarizer analysis.Summarizer, opts Options, logger *zap.Logger) *Generator {
	if opts.OutputLanguage == "" {
		opts.OutputLanguage = "English"
	}
	return &Generator{
		summarizer: summarizer,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// Generate writes the key insights report, the audience insights report when enabled, and
// the comprehensive report. Each report is stored with a timestamp and as a latest copy.
func (g *Generator) Generate(ctx context.Context) ([]Report, error) {
	var aggregated models.AggregatedAnalysis
	if err := storage.ReadJSON(g.opts.AggregatedFile, &aggregated); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoAggregation
		}
		return nil, err
	}
	if len(aggregated.Videos) == 0 {
		return nil, fmt.Errorf("%w: aggregated analysis has no videos", ErrNoAggregation)
	}

	generatedAt := g.now()
	summaries := VideoSummaries(&aggregated)
	var reports []Report

	keyInsights, err := g.summarize(ctx, KeyInsights, ai.BuildKeyInsightsPrompt(summaries, g.opts.OutputLanguage))
	if err != nil {
		return nil, err
	}
	r, err := g.write(KeyInsights, "Key Insights Report", keyInsights, &aggregated, generatedAt)
	if err != nil {
		return nil, err
	}
	reports = append(reports, r)

	audienceText := "Audience analysis was not enabled for this run."
	if g.opts.AnalyzeAudience {
		audienceData, err := json.MarshalIndent(aggregated.ChannelAudience, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal channel audience: %w", err)
		}
		prompt := ai.BuildAudienceInsightsPrompt(string(audienceData), audienceProfiles(&aggregated), g.opts.OutputLanguage)
		audienceText, err = g.summarize(ctx, AudienceInsights, prompt)
		if err != nil {
			return nil, err
		}
		r, err := g.write(AudienceInsights, "Audience Insights Report", audienceText, &aggregated, generatedAt)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}

	videoData, err := json.MarshalIndent(compactVideos(aggregated.Videos), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal video analyses: %w", err)
	}
	in := ai.ComprehensiveReportInput{
		VideoSummaries:   string(videoData),
		AudienceInsights: audienceText,
		VideosAnalyzed:   aggregated.Metadata.TotalVideos,
		OutputLanguage:   g.opts.OutputLanguage,
	}
	if cfg := aggregated.Metadata.ConfigUsed; cfg != nil {
		in.Model = cfg.Model
		in.LanguageFilter = cfg.FilterLanguage
		in.MinLength = cfg.MinLength
	}
	comprehensive, err := g.summarize(ctx, Comprehensive, ai.BuildComprehensiveReportPrompt(in))
	if err != nil {
		return nil, err
	}
	r, err = g.write(Comprehensive, "Comprehensive YouTube Comment Analysis", comprehensive, &aggregated, generatedAt)
	if err != nil {
		return nil, err
	}
	reports = append(reports, r)

	return reports, nil
}

func (g *Generator) summarize(ctx context.Context, name, prompt string) (string, error) {
	g.logger.Info("Generating report", zap.String("report", name))
	text, err := analysis.Retry(ctx, g.opts.Retry, g.logger, func(ctx context.Context) (string, error) {
		return g.summarizer.Summarize(ctx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", name, err)
	}
	return text, nil
}

func (g *Generator) write(name, title, body string, aggregated *models.AggregatedAnalysis, generatedAt time.Time) (Report, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "_Generated %s from %d videos and %d comments._\n\n",
		generatedAt.Format("2006-01-02 15:04"), aggregated.Metadata.TotalVideos, aggregated.CommentsAnalyzed)
	if n := len(aggregated.Metadata.IncompleteVideos); n > 0 {
		fmt.Fprintf(&b, "> %d video(s) were only partially analyzed: %s\n\n", n, strings.Join(aggregated.Metadata.IncompleteVideos, ", "))
	}
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")
	content := b.String()

	r := Report{
		Name:       name,
		Title:      title,
		Path:       filepath.Join(g.opts.ReportsDir, fmt.Sprintf("%s_%s.md", name, generatedAt.Format(timestampLayout))),
		LatestPath: filepath.Join(g.opts.ReportsDir, "latest_"+name+".md"),
		Content:    content,
	}
	for _, path := range []string{r.Path, r.LatestPath} {
		err := storage.WriteFileAtomic(path, func(w io.Writer) error {
			_, err := io.WriteString(w, content)
			return err
		})
		if err != nil {
			return Report{}, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	g.logger.Info("Report written", zap.String("report", name), zap.String("file", r.Path))
	return r, nil
}

// VideoSummaries renders a compact plain-text digest of every video for report prompts.
func VideoSummaries(aggregated *models.AggregatedAnalysis) string {
	var b strings.Builder
	for _, v := range aggregated.Videos {
		fmt.Fprintf(&b, "VIDEO %s (%s)\n", v.VideoID, v.VideoURL)
		if !v.Usable() {
			b.WriteString("- no comments analyzed\n\n")
			continue
		}
		fmt.Fprintf(&b, "- comments analyzed: %d", v.CommentsAnalyzed)
		if v.Incomplete {
			fmt.Fprintf(&b, " (incomplete, %d failed batches)", len(v.FailedBatches))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "- sentiment: %.1f%% positive, %.1f%% neutral, %.1f%% negative\n",
			v.Sentiment.PositivePercentage, v.Sentiment.NeutralPercentage, v.Sentiment.NegativePercentage)
		writeRanked(&b, "top topics", v.TopTopics)
		writeRanked(&b, "pain points", v.CommonPainPoints)
		writeRanked(&b, "advantages", v.HighlightedAdvantages)
		writeRanked(&b, "recommendations", v.CreatorRecommendations)
		b.WriteString("\n")
	}
	return b.String()
}

func writeRanked(b *strings.Builder, label string, items []models.RankedItem) {
	if len(items) == 0 {
		return
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%s (%d)", item.Text, item.Count)
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(parts, ", "))
}

func audienceProfiles(aggregated *models.AggregatedAnalysis) string {
	var b strings.Builder
	for _, v := range aggregated.Videos {
		if v.AudienceProfile == "" {
			continue
		}
		fmt.Fprintf(&b, "### Video %s\n%s\n\n", v.VideoID, strings.TrimSpace(v.AudienceProfile))
	}
	if b.Len() == 0 {
		return "No per-video audience profiles available."
	}
	return b.String()
}

// compactVideos drops the raw merged counters, which only repeat the ranked fields.
func compactVideos(videos []*models.VideoAnalysisResult) []models.VideoAnalysisResult {
	out := make([]models.VideoAnalysisResult, 0, len(videos))
	for _, v := range videos {
		c := *v
		c.Merged = nil
		c.AudienceProfile = ""
		out = append(out, c)
	}
	return out
}
