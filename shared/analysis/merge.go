package analysis

import (
	"math"
	"sort"
	"strings"

	"comment-insights/internal/models"
)

const (
	// TopItems bounds the topic, pain point and advantage rankings.
	TopItems = 5
	// TopRecommendations bounds the creator recommendation ranking.
	TopRecommendations = 10

	unknownLanguage = "unknown"
)

var languageNames = map[string]string{
	"cs": "Czech", "sk": "Slovak", "en": "English", "de": "German",
	"pl": "Polish", "hu": "Hungarian", "ru": "Russian", "fr": "French",
	"es": "Spanish", "it": "Italian", "pt": "Portuguese", "nl": "Dutch",
	"sv": "Swedish", "da": "Danish", "no": "Norwegian", "fi": "Finnish",
	"ar": "Arabic", "zh": "Chinese", "ja": "Japanese", "ko": "Korean",
	"hi": "Hindi", "tr": "Turkish", unknownLanguage: "Unknown",
}

// LanguageName returns a display name for an ISO 639-1 code.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return strings.ToUpper(code)
}

// ReduceBatch folds the per-comment analyses of one batch into a BatchResult.
// comments and analyses are parallel slices.
func ReduceBatch(comments []models.Comment, analyses []models.CommentAnalysis) models.BatchResult {
	r := models.BatchResult{
		Comments:        len(analyses),
		Topics:          map[string]int{},
		PainPoints:      map[string]int{},
		Advantages:      map[string]int{},
		Recommendations: map[string]int{},
		Audience: models.AudienceSignals{
			Languages:           map[string]int{},
			SentimentByLanguage: map[string]models.SentimentCounts{},
		},
	}

	for i, a := range analyses {
		r.Sentiment.Record(a.Sentiment)

		lang := unknownLanguage
		if i < len(comments) && comments[i].Language != "" {
			lang = strings.ToLower(comments[i].Language)
		}
		r.Audience.Languages[lang]++
		byLang := r.Audience.SentimentByLanguage[lang]
		byLang.Record(a.Sentiment)
		r.Audience.SentimentByLanguage[lang] = byLang

		if len(a.PainPoints) > 0 {
			r.Audience.WithPainPoints++
		}
		if len(a.Advantages) > 0 {
			r.Audience.WithAdvantages++
		}
		if len(a.Recommendations) > 0 {
			r.Audience.WithRecommendations++
		}

		if !a.IsRelevantFeedback {
			continue
		}
		r.Audience.RelevantFeedback++
		countPhrases(r.Topics, a.Topics)
		countPhrases(r.PainPoints, a.PainPoints)
		countPhrases(r.Advantages, a.Advantages)
		countPhrases(r.Recommendations, a.Recommendations)
	}
	return r
}

func countPhrases(counts map[string]int, phrases []string) {
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		counts[p]++
	}
}

// MergeBatchResults sums batch results. The merge is commutative and associative; the
// inputs are never modified.
func MergeBatchResults(results ...models.BatchResult) models.BatchResult {
	out := models.BatchResult{
		Topics:          map[string]int{},
		PainPoints:      map[string]int{},
		Advantages:      map[string]int{},
		Recommendations: map[string]int{},
		Audience: models.AudienceSignals{
			Languages:           map[string]int{},
			SentimentByLanguage: map[string]models.SentimentCounts{},
		},
	}

	for _, r := range results {
		out.Comments += r.Comments
		out.Sentiment.Add(r.Sentiment)
		addCounts(out.Topics, r.Topics)
		addCounts(out.PainPoints, r.PainPoints)
		addCounts(out.Advantages, r.Advantages)
		addCounts(out.Recommendations, r.Recommendations)

		out.Audience.RelevantFeedback += r.Audience.RelevantFeedback
		out.Audience.WithPainPoints += r.Audience.WithPainPoints
		out.Audience.WithAdvantages += r.Audience.WithAdvantages
		out.Audience.WithRecommendations += r.Audience.WithRecommendations
		addCounts(out.Audience.Languages, r.Audience.Languages)
		for lang, counts := range r.Audience.SentimentByLanguage {
			merged := out.Audience.SentimentByLanguage[lang]
			merged.Add(counts)
			out.Audience.SentimentByLanguage[lang] = merged
		}
	}
	return out
}

func addCounts(dst, src map[string]int) {
	for k, v := range src {
		dst[k] += v
	}
}

// Rank orders phrases by count descending, then alphabetically, and keeps the first limit.
func Rank(counts map[string]int, limit int) []models.RankedItem {
	items := make([]models.RankedItem, 0, len(counts))
	for text, count := range counts {
		items = append(items, models.RankedItem{Text: text, Count: count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Text < items[j].Text
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// SummarizeSentiment adds percentages to raw sentiment counts.
func SummarizeSentiment(counts models.SentimentCounts) models.SentimentSummary {
	total := counts.Total()
	return models.SentimentSummary{
		SentimentCounts:    counts,
		PositivePercentage: percentage(counts.Positive, total),
		NeutralPercentage:  percentage(counts.Neutral, total),
		NegativePercentage: percentage(counts.Negative, total),
	}
}

// SummarizeAudience derives the audience report section from merged counters.
func SummarizeAudience(merged models.BatchResult) models.AudienceSummary {
	total := merged.Comments
	signals := merged.Audience

	summary := models.AudienceSummary{
		TotalAnalyzed:              total,
		RelevantFeedbackCount:      signals.RelevantFeedback,
		RelevantFeedbackPercentage: percentage(signals.RelevantFeedback, total),
		FeedbackPatterns: models.FeedbackPatterns{
			ConstructiveCriticism: signals.WithPainPoints,
			PositiveFeedback:      signals.WithAdvantages,
			SuggestionsProvided:   signals.WithRecommendations,
			CriticismPercentage:   percentage(signals.WithPainPoints, total),
			PraisePercentage:      percentage(signals.WithAdvantages, total),
			SuggestionsPercentage: percentage(signals.WithRecommendations, total),
		},
	}

	for _, item := range Rank(signals.Languages, 0) {
		summary.LanguageDistribution = append(summary.LanguageDistribution, models.LanguageShare{
			Code:       item.Text,
			Name:       LanguageName(item.Text),
			Count:      item.Count,
			Percentage: percentage(item.Count, total),
		})
		summary.SentimentByLanguage = append(summary.SentimentByLanguage, models.LanguageSentiment{
			Code:      item.Text,
			Name:      LanguageName(item.Text),
			Sentiment: SummarizeSentiment(signals.SentimentByLanguage[item.Text]),
		})
	}
	return summary
}

// ApplySummary fills the ranked and percentage fields of r from its merged counters.
func ApplySummary(r *models.VideoAnalysisResult) {
	merged := models.BatchResult{}
	if r.Merged != nil {
		merged = *r.Merged
	}
	r.CommentsAnalyzed = merged.Comments
	r.Sentiment = SummarizeSentiment(merged.Sentiment)
	r.TopTopics = Rank(merged.Topics, TopItems)
	r.CommonPainPoints = Rank(merged.PainPoints, TopItems)
	r.HighlightedAdvantages = Rank(merged.Advantages, TopItems)
	r.CreatorRecommendations = Rank(merged.Recommendations, TopRecommendations)
	r.Audience = SummarizeAudience(merged)
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}
