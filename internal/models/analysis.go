package models

import "time"

// Sentiment labels accepted from the analysis model.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

type SentimentCounts struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

func (s SentimentCounts) Total() int {
	return s.Positive + s.Neutral + s.Negative
}

// Add sums o into s.
func (s *SentimentCounts) Add(o SentimentCounts) {
	s.Positive += o.Positive
	s.Neutral += o.Neutral
	s.Negative += o.Negative
}

// Record counts a single sentiment label. Unknown labels are ignored.
func (s *SentimentCounts) Record(label string) {
	switch label {
	case SentimentPositive:
		s.Positive++
	case SentimentNeutral:
		s.Neutral++
	case SentimentNegative:
		s.Negative++
	}
}

// CommentAnalysis is the structured extraction for one comment.
type CommentAnalysis struct {
	Sentiment          string   `json:"sentiment"`
	Topics             []string `json:"topics"`
	PainPoints         []string `json:"pain_points"`
	Advantages         []string `json:"advantages"`
	Recommendations    []string `json:"recommendations_for_creator"`
	IsRelevantFeedback bool     `json:"is_relevant_feedback"`
}

// AudienceSignals are additive engagement counters. They are never averaged so that
// merged values stay weighted by comment volume.
type AudienceSignals struct {
	RelevantFeedback    int                        `json:"relevant_feedback"`
	WithPainPoints      int                        `json:"with_pain_points"`
	WithAdvantages      int                        `json:"with_advantages"`
	WithRecommendations int                        `json:"with_recommendations"`
	Languages           map[string]int             `json:"languages,omitempty"`
	SentimentByLanguage map[string]SentimentCounts `json:"sentiment_by_language,omitempty"`
}

// BatchResult is the reduced analysis of one batch of comments. Merging batch results is
// commutative, so batches may complete in any order.
type BatchResult struct {
	Comments        int             `json:"comments"`
	Sentiment       SentimentCounts `json:"sentiment"`
	Topics          map[string]int  `json:"topics,omitempty"`
	PainPoints      map[string]int  `json:"pain_points,omitempty"`
	Advantages      map[string]int  `json:"advantages,omitempty"`
	Recommendations map[string]int  `json:"recommendations,omitempty"`
	Audience        AudienceSignals `json:"audience"`
}

// BatchFailure records a batch that was excluded from the merge after exhausting retries.
type BatchFailure struct {
	Index int    `json:"index"`
	Size  int    `json:"size"`
	Error string `json:"error"`
}

// RankedItem is a normalised phrase with its frequency.
type RankedItem struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

type SentimentSummary struct {
	SentimentCounts
	PositivePercentage float64 `json:"positive_percentage"`
	NeutralPercentage  float64 `json:"neutral_percentage"`
	NegativePercentage float64 `json:"negative_percentage"`
}

type FeedbackPatterns struct {
	ConstructiveCriticism int     `json:"constructive_criticism"`
	PositiveFeedback      int     `json:"positive_feedback"`
	SuggestionsProvided   int     `json:"suggestions_provided"`
	CriticismPercentage   float64 `json:"criticism_percentage"`
	PraisePercentage      float64 `json:"praise_percentage"`
	SuggestionsPercentage float64 `json:"suggestions_percentage"`
}

type LanguageShare struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type LanguageSentiment struct {
	Code      string           `json:"code"`
	Name      string           `json:"name"`
	Sentiment SentimentSummary `json:"sentiment"`
}

type AudienceSummary struct {
	TotalAnalyzed              int                 `json:"total_analyzed"`
	RelevantFeedbackCount      int                 `json:"relevant_feedback_count"`
	RelevantFeedbackPercentage float64             `json:"relevant_feedback_percentage"`
	FeedbackPatterns           FeedbackPatterns    `json:"feedback_patterns"`
	LanguageDistribution       []LanguageShare     `json:"language_distribution,omitempty"`
	SentimentByLanguage        []LanguageSentiment `json:"sentiment_by_language,omitempty"`
}

// VideoAnalysisResult is the merged analysis of one video under one configuration.
// It is persisted under its cache key.
type VideoAnalysisResult struct {
	VideoID                string           `json:"video_id"`
	VideoURL               string           `json:"video_url"`
	CacheKey               string           `json:"cache_key"`
	Config                 AnalysisConfig   `json:"config_used"`
	CommentsLoaded         int              `json:"comments_loaded"`
	CommentsAnalyzed       int              `json:"comments_analyzed"`
	BatchesTotal           int              `json:"batches_total"`
	FailedBatches          []BatchFailure   `json:"failed_batches,omitempty"`
	Incomplete             bool             `json:"incomplete"`
	Empty                  bool             `json:"empty"`
	Sentiment              SentimentSummary `json:"sentiment"`
	TopTopics              []RankedItem     `json:"top_topics"`
	CommonPainPoints       []RankedItem     `json:"common_pain_points"`
	HighlightedAdvantages  []RankedItem     `json:"highlighted_advantages"`
	CreatorRecommendations []RankedItem     `json:"creator_recommendations"`
	Audience               AudienceSummary  `json:"audience"`
	AudienceProfile        string           `json:"audience_profile,omitempty"`
	Merged                 *BatchResult     `json:"merged,omitempty"`
	AnalyzedAt             time.Time        `json:"analyzed_at"`
}

// Usable reports whether the result carries any analysed data.
func (r *VideoAnalysisResult) Usable() bool {
	return r != nil && !r.Empty && r.Merged != nil && r.Merged.Comments > 0
}

type AggregationMetadata struct {
	TotalVideos      int             `json:"total_videos"`
	IncompleteVideos []string        `json:"incomplete_videos,omitempty"`
	EmptyVideos      []string        `json:"empty_videos,omitempty"`
	ConfigUsed       *AnalysisConfig `json:"config_used,omitempty"`
	// UnreadableFiles lists result files skipped because they could not be decoded
	UnreadableFiles  []string        `json:"unreadable_files,omitempty"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// AggregatedAnalysis combines every persisted video result. It is rebuilt from scratch
// on each aggregation.
type AggregatedAnalysis struct {
	Metadata              AggregationMetadata    `json:"analysis_metadata"`
	CommentsAnalyzed      int                    `json:"comments_analyzed"`
	Sentiment             SentimentSummary       `json:"sentiment"`
	TopTopics             []RankedItem           `json:"top_topics"`
	CommonPainPoints      []RankedItem           `json:"common_pain_points"`
	HighlightedAdvantages []RankedItem           `json:"highlighted_advantages"`
	ChannelAudience       AudienceSummary        `json:"channel_audience"`
	Videos                []*VideoAnalysisResult `json:"video_analyses"`
}
