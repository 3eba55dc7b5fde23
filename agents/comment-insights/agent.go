package commentinsights

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"comment-insights/agents/comment-insights/youtube"
	"comment-insights/internal/models"
	"comment-insights/shared/aggregate"
	"comment-insights/shared/ai"
	"comment-insights/shared/analysis"
	"comment-insights/shared/config"
	"comment-insights/shared/email"
	"comment-insights/shared/report"
	"comment-insights/shared/scheduler"
	"comment-insights/shared/storage"

	"go.uber.org/zap"
)

const (
	CommandRun       = "run"
	CommandDownload  = "download"
	CommandAnalyze   = "analyze"
	CommandAggregate = "aggregate"
	CommandReport    = "report"
)

var (
	// ErrNoVideos is returned when none of the configured URLs names a video.
	ErrNoVideos = errors.New("no valid video URLs configured")
	// ErrNoDownloads is returned when the download step leaves no video with comments.
	ErrNoDownloads = errors.New("no video has downloaded comments")
	// ErrNoIndex is returned by the analyze step before anything was downloaded.
	ErrNoIndex = errors.New("video index not found, run download first")
	// ErrUnknownCommand is returned by Execute for an unsupported step name.
	ErrUnknownCommand = errors.New("unknown command")
)

// Model is the LLM surface used by the analyze and report steps.
type Model interface {
	analysis.BatchExtractor
	analysis.Summarizer
}

// ReportMailer delivers a generated report.
type ReportMailer interface {
	SendReport(title, markdown string, date time.Time) error
}

// Pipeline implements the scheduler.Agent interface. API clients are created on first
// use so that steps which do not need a credential run without it.
type Pipeline struct {
	config   *config.Config
	logger   *zap.Logger
	comments *storage.CommentStore
	results  *storage.ResultStore
	runLog   *storage.RunLog
	mailer   ReportMailer

	source      analysis.CommentSource
	model       Model
	newSource   func(ctx context.Context) (analysis.CommentSource, error)
	newModel    func(ctx context.Context) (Model, error)
	initialized bool
}

func NewPipeline(cfg *config.Config, logger *zap.Logger) *Pipeline {
	p := &Pipeline{
		config: cfg,
		logger: logger,
	}
	p.newSource = func(ctx context.Context) (analysis.CommentSource, error) {
		client, err := youtube.NewClient(ctx, p.config, p.logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	p.newModel = func(ctx context.Context) (Model, error) {
		analyzer, err := ai.NewAnalyzer(ctx, p.config, p.logger)
		if err != nil {
			return nil, err
		}
		return analyzer, nil
	}
	return p
}

func (p *Pipeline) Name() string {
	return "Comment Insights"
}

// Initialize prepares the on-disk stores and the run log. It needs no credentials.
func (p *Pipeline) Initialize() error {
	if p.initialized {
		return nil
	}
	p.logger.Info("Initializing pipeline", zap.String("agent", p.Name()))

	comments, err := storage.NewCommentStore(p.config.CommentsDir(), p.config.IndexFile())
	if err != nil {
		return fmt.Errorf("failed to create comment store: %w", err)
	}
	results, err := storage.NewResultStore(p.config.AnalysisDir())
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}
	runLog, err := storage.OpenRunLog(p.config.RunLogFile(), p.logger)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}

	p.comments = comments
	p.results = results
	p.runLog = runLog
	if p.mailer == nil && p.config.EmailEnabled() {
		p.mailer = email.NewSender(&p.config.Email, p.logger)
	}
	p.initialized = true
	return nil
}

// Close releases the run log.
func (p *Pipeline) Close() error {
	if p.runLog == nil {
		return nil
	}
	return p.runLog.Close()
}

// RunLog exposes the run history for the status endpoint.
func (p *Pipeline) RunLog() *storage.RunLog {
	return p.runLog
}

// RunOnce executes the full pipeline for the scheduler.
func (p *Pipeline) RunOnce(ctx context.Context, events *scheduler.AgentEvents) error {
	startTime := time.Now()

	metrics, err := p.Execute(ctx, CommandRun)
	if err != nil {
		return err
	}

	duration := time.Since(startTime)
	if events == nil {
		return nil
	}
	if metrics.Partial() {
		events.OnPartialFailure(metrics.PartialError(), duration)
		return nil
	}
	events.OnSuccess(metrics, duration)
	return nil
}

// Execute runs one step, or the whole pipeline for CommandRun, and records it in the run log.
func (p *Pipeline) Execute(ctx context.Context, command string) (*Metrics, error) {
	if err := p.Initialize(); err != nil {
		return nil, err
	}

	var steps []func(context.Context, *Metrics) error
	switch command {
	case CommandRun:
		steps = []func(context.Context, *Metrics) error{p.download, p.analyze, p.aggregate, p.report}
	case CommandDownload:
		steps = append(steps, p.download)
	case CommandAnalyze:
		steps = append(steps, p.analyze)
	case CommandAggregate:
		steps = append(steps, p.aggregate)
	case CommandReport:
		steps = append(steps, p.report)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}

	runID, err := p.runLog.StartRun(ctx, command)
	if err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}
	logger := p.logger.With(zap.String("run_id", runID), zap.String("command", command))
	logger.Info("Run started")

	metrics := &Metrics{}
	var runErr error
	for _, step := range steps {
		if runErr = step(ctx, metrics); runErr != nil {
			break
		}
	}

	// record with a fresh context so a cancelled run is still closed out
	recordCtx := context.WithoutCancel(ctx)
	for _, o := range metrics.Outcomes {
		if err := p.runLog.RecordOutcome(recordCtx, runID, toStoredOutcome(o)); err != nil {
			logger.Warn("Failed to record video outcome", zap.String("video_id", o.VideoID), zap.Error(err))
		}
	}

	status := storage.RunSucceeded
	switch {
	case runErr != nil:
		status = storage.RunFailed
	case metrics.Partial():
		status = storage.RunPartial
	}
	if err := p.runLog.FinishRun(recordCtx, runID, status, runErr); err != nil {
		logger.Warn("Failed to record run end", zap.Error(err))
	}

	if runErr != nil {
		logger.Error("Run failed", zap.Error(runErr))
		return metrics, runErr
	}
	logger.Info("Run finished", zap.String("status", string(status)), zap.String("summary", metrics.GetSummary()))
	return metrics, nil
}

// VideoRefs resolves the configured URLs to video references. Invalid URLs are logged and skipped.
func (p *Pipeline) VideoRefs() ([]models.VideoRef, error) {
	var refs []models.VideoRef
	seen := make(map[string]bool)
	for _, raw := range p.config.VideoURLs {
		id, err := youtube.VideoIDFromURL(raw)
		if err != nil {
			p.logger.Warn("Skipping invalid video URL", zap.String("url", raw), zap.Error(err))
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		refs = append(refs, models.VideoRef{VideoID: id, VideoURL: raw})
	}
	if len(refs) == 0 {
		return nil, ErrNoVideos
	}
	return refs, nil
}

func (p *Pipeline) download(ctx context.Context, m *Metrics) error {
	refs, err := p.VideoRefs()
	if err != nil {
		return err
	}
	m.Videos = len(refs)

	var indexed []models.VideoRef
	for _, ref := range refs {
		logger := p.logger.With(zap.String("video_id", ref.VideoID))

		if p.comments.Exists(ref.VideoID) && !p.config.ForceDownload {
			logger.Info("Comments already downloaded, skipping")
			ref.CommentFile = p.comments.Path(ref.VideoID)
			indexed = append(indexed, ref)
			m.DownloadSkipped++
			continue
		}

		source, err := p.commentSource(ctx)
		if err != nil {
			return err
		}

		comments, err := source.Comments(ctx, ref.VideoID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("Failed to download comments", zap.Error(err))
			m.DownloadFailed++
			continue
		}
		if len(comments) == 0 {
			logger.Warn("Video has no comments")
			m.DownloadFailed++
			continue
		}

		path, err := p.comments.Save(ref.VideoID, comments)
		if err != nil {
			return fmt.Errorf("failed to save comments for %s: %w", ref.VideoID, err)
		}
		logger.Info("Downloaded comments", zap.Int("comments", len(comments)), zap.String("file", path))
		ref.CommentFile = path
		indexed = append(indexed, ref)
		m.Downloaded++
	}

	if len(indexed) == 0 {
		return ErrNoDownloads
	}
	if err := p.comments.WriteIndex(indexed); err != nil {
		return fmt.Errorf("failed to write video index: %w", err)
	}
	return nil
}

func (p *Pipeline) analyze(ctx context.Context, m *Metrics) error {
	index, err := p.comments.ReadIndex()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNoIndex
		}
		return err
	}

	videos, err := p.configuredVideos(index.Videos)
	if err != nil {
		return err
	}

	model, err := p.llm(ctx)
	if err != nil {
		return err
	}

	batch := analysis.NewBatchAnalyzer(model, model, p.config.AnalysisConfig(), p.config.MaxBatchWorkers,
		analysis.PolicyFromConfig(p.config.Retry), p.logger)
	coordinator := analysis.NewCoordinator(p.comments, p.results, batch, analysis.CoordinatorOptions{
		MaxVideoWorkers: p.config.MaxVideoWorkers,
		UseCache:        p.config.CacheEnabled(),
	}, p.logger)

	summary, err := coordinator.Run(ctx, videos)
	if summary != nil {
		m.addOutcomes(summary.Outcomes)
	}
	return err
}

// configuredVideos keeps the indexed videos that are still listed in video_urls, in index order.
func (p *Pipeline) configuredVideos(indexed []models.VideoRef) ([]models.VideoRef, error) {
	refs, err := p.VideoRefs()
	if err != nil {
		return nil, err
	}
	configured := make(map[string]bool, len(refs))
	for _, ref := range refs {
		configured[ref.VideoID] = true
	}

	var videos []models.VideoRef
	inIndex := make(map[string]bool, len(indexed))
	for _, v := range indexed {
		inIndex[v.VideoID] = true
		if !configured[v.VideoID] {
			p.logger.Warn("Skipping indexed video that is no longer configured", zap.String("video_id", v.VideoID))
			continue
		}
		videos = append(videos, v)
	}
	for _, ref := range refs {
		if !inIndex[ref.VideoID] {
			p.logger.Warn("Configured video has no downloaded comments, run download", zap.String("video_id", ref.VideoID))
		}
	}

	if len(videos) == 0 {
		return nil, ErrNoDownloads
	}
	return videos, nil
}

func (p *Pipeline) aggregate(_ context.Context, m *Metrics) error {
	aggregated, err := aggregate.NewAggregator(p.results, p.config.AggregatedFile(), p.logger).Run()
	if err != nil {
		return err
	}
	m.Aggregated = aggregated.Metadata.TotalVideos
	return nil
}

func (p *Pipeline) report(ctx context.Context, m *Metrics) error {
	model, err := p.llm(ctx)
	if err != nil {
		return err
	}

	generator := report.NewGenerator(model, report.Options{
		AggregatedFile:  p.config.AggregatedFile(),
		ReportsDir:      p.config.Paths.ReportsDir,
		OutputLanguage:  p.config.OutputLanguage,
		AnalyzeAudience: p.config.AnalyzeAudience,
		Retry:           analysis.PolicyFromConfig(p.config.Retry),
	}, p.logger)

	reports, err := generator.Generate(ctx)
	if err != nil {
		return err
	}
	m.Reports = len(reports)

	if p.mailer == nil {
		return nil
	}
	for _, r := range reports {
		if r.Name != report.KeyInsights {
			continue
		}
		if err := p.mailer.SendReport(r.Title, r.Content, time.Now()); err != nil {
			p.logger.Error("Failed to send report email", zap.Error(err))
			m.EmailFailed = true
			return nil
		}
		p.logger.Info("Report email sent", zap.String("report", r.Name))
		m.Emailed = true
	}
	return nil
}

func (p *Pipeline) commentSource(ctx context.Context) (analysis.CommentSource, error) {
	if p.source == nil {
		source, err := p.newSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create YouTube client: %w", err)
		}
		p.source = source
	}
	return p.source, nil
}

func (p *Pipeline) llm(ctx context.Context) (Model, error) {
	if p.model == nil {
		model, err := p.newModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create AI analyzer: %w", err)
		}
		p.model = model
	}
	return p.model, nil
}

// StatusReport describes the pipeline state shown by the status command.
type StatusReport struct {
	Indexed    int
	IndexedAt  time.Time
	CacheFiles []storage.ResultFile
	Runs       []storage.Run
	// Outcomes of the most recent run
	Outcomes []storage.Outcome
}

// Status collects the index, the cached results and the recent runs.
func (p *Pipeline) Status(ctx context.Context, runs int) (*StatusReport, error) {
	if err := p.Initialize(); err != nil {
		return nil, err
	}

	status := &StatusReport{}
	index, err := p.comments.ReadIndex()
	switch {
	case err == nil:
		status.Indexed = len(index.Videos)
		status.IndexedAt = index.CreatedAt
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	if status.CacheFiles, err = p.results.List(); err != nil {
		return nil, err
	}
	if status.Runs, err = p.runLog.RecentRuns(ctx, runs); err != nil {
		return nil, err
	}
	if len(status.Runs) > 0 {
		if status.Outcomes, err = p.runLog.Outcomes(ctx, status.Runs[0].ID); err != nil {
			return nil, err
		}
	}
	return status, nil
}

// ClearCache removes the cached results of one video, or of all videos when videoID is empty.
func (p *Pipeline) ClearCache(videoID string) (int, error) {
	if err := p.Initialize(); err != nil {
		return 0, err
	}
	removed, err := p.results.Clear(videoID)
	if err != nil {
		return removed, err
	}
	p.logger.Info("Cache cleared", zap.String("video_id", videoID), zap.Int("removed", removed))
	return removed, nil
}

func toStoredOutcome(o analysis.VideoOutcome) storage.Outcome {
	out := storage.Outcome{
		VideoID:       o.VideoID,
		CacheKey:      o.CacheKey,
		Status:        string(o.Status),
		Comments:      o.Comments,
		FailedBatches: o.FailedBatches,
		Duration:      o.Duration,
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return out
}

// Metrics implements scheduler.Metrics for one pipeline run
type Metrics struct {
	Videos          int
	Downloaded      int
	DownloadSkipped int
	DownloadFailed  int
	Analyzed        int
	Cached          int
	Incomplete      int
	Empty           int
	Failed          int
	Aggregated      int
	Reports         int
	Emailed         bool
	EmailFailed     bool
	Outcomes        []analysis.VideoOutcome
}

func (m *Metrics) addOutcomes(outcomes []analysis.VideoOutcome) {
	m.Outcomes = append(m.Outcomes, outcomes...)
	for _, o := range outcomes {
		switch o.Status {
		case analysis.StatusAnalyzed:
			m.Analyzed++
		case analysis.StatusCached:
			m.Cached++
		case analysis.StatusIncomplete:
			m.Incomplete++
		case analysis.StatusEmpty:
			m.Empty++
		case analysis.StatusFailed:
			m.Failed++
		}
	}
}

// Partial reports whether the run finished but lost some videos, batches or the email.
func (m *Metrics) Partial() bool {
	return m.DownloadFailed > 0 || m.Failed > 0 || m.Incomplete > 0 || m.EmailFailed
}

// PartialError describes what a partial run lost.
func (m *Metrics) PartialError() error {
	var parts []string
	if m.DownloadFailed > 0 {
		parts = append(parts, fmt.Sprintf("%d downloads failed", m.DownloadFailed))
	}
	if m.Failed > 0 {
		var ids []string
		for _, o := range m.Outcomes {
			if o.Status == analysis.StatusFailed {
				ids = append(ids, o.VideoID)
			}
		}
		parts = append(parts, fmt.Sprintf("%d videos failed (%s)", m.Failed, strings.Join(ids, ", ")))
	}
	if m.Incomplete > 0 {
		parts = append(parts, fmt.Sprintf("%d videos incomplete", m.Incomplete))
	}
	if m.EmailFailed {
		parts = append(parts, "report email failed")
	}
	if len(parts) == 0 {
		return nil
	}
	return errors.New(strings.Join(parts, "; "))
}

func (m *Metrics) GetSummary() string {
	return fmt.Sprintf("downloaded %d videos (%d skipped), analyzed %d (%d cached, %d incomplete, %d failed), wrote %d reports",
		m.Downloaded, m.DownloadSkipped, m.Analyzed+m.Incomplete, m.Cached, m.Incomplete, m.Failed, m.Reports)
}
