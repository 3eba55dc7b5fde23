package ai

import (
	"fmt"
	"strings"

	"comment-insights/internal/models"
)

// BuildBatchPrompt renders the structured extraction prompt for one batch of comments.
func BuildBatchPrompt(comments []models.Comment) string {
	var b strings.Builder
	for i, c := range comments {
		fmt.Fprintf(&b, "COMMENT %d:\n```\n%s\n```\n\n", i+1, strings.TrimSpace(c.Text))
	}

	return fmt.Sprintf(`You are an expert YouTube comment analyst. Analyze the following %d YouTube comments.
For each comment, provide a JSON analysis with these fields:
- sentiment: "positive", "negative", or "neutral"
- topics: list of 1-3 main topics (concise strings)
- pain_points: list of specific criticisms (empty list if none)
- advantages: list of specific praises (empty list if none)
- recommendations_for_creator: list of actionable suggestions (empty list if none)
- is_relevant_feedback: boolean (true if substantive feedback, false if simple greeting/spam)

Comments to analyze:
%s
Respond with a JSON array containing exactly %d objects, one for each comment in order.`,
		len(comments), b.String(), len(comments))
}

// BuildAudienceProfilePrompt asks for a narrative audience profile of a single video.
func BuildAudienceProfilePrompt(analysisData string) string {
	return fmt.Sprintf(`You are an expert audience analyst for YouTube channels. Based on the following comment analysis data,
provide insights about the channel's audience demographics, behavior patterns, and engagement characteristics.

Analysis Data:
%s

Please provide a comprehensive audience profile that includes:

1. **Geographic/Cultural Audience**: Based on language distribution, what can we infer about the audience's geographic spread and cultural background?
2. **Engagement Quality**: How engaged and constructive is this audience? What does their feedback behavior tell us?
3. **Audience Characteristics**: What interests or demographics can we infer from comment patterns?
4. **Content Preferences**: What topics or content types seem to resonate most with this audience?
5. **Community Health**: How healthy and constructive is the comment community?
6. **Growth Opportunities**: What insights for channel growth can be derived from this audience analysis?

Provide specific, actionable insights based on the data. Be concrete rather than generic.
Respond in English with clear headings and bullet points.`, analysisData)
}

// BuildAudienceInsightsPrompt summarises audience data across all videos.
func BuildAudienceInsightsPrompt(audienceData, videoAnalyses, outputLanguage string) string {
	return fmt.Sprintf(`You are an expert audience analyst for YouTube channels. Based on the aggregated audience analysis data
from multiple videos, provide comprehensive insights about the channel's overall audience.

Aggregated Audience Data:
%s

Individual Video Audience Analyses:
%s

Please provide a detailed audience insights report that includes:

1. **Channel Audience Overview**: Overall demographic and behavioral characteristics
2. **Language and Geographic Distribution**: Detailed analysis of audience linguistic diversity
3. **Engagement Patterns**: How different language groups engage with content
4. **Audience Loyalty and Quality**: Analysis of feedback quality and community health
5. **Content Preferences by Audience Segment**: What different audience segments prefer
6. **Growth and Engagement Opportunities**: Specific recommendations for audience development

Focus on actionable insights that can help with content strategy, community building, and channel growth.
Respond in %s with clear headings and specific data-driven insights.`, audienceData, videoAnalyses, outputLanguage)
}

// BuildKeyInsightsPrompt asks for the short strategic report.
func BuildKeyInsightsPrompt(videoSummaries, outputLanguage string) string {
	return fmt.Sprintf(`Based on the video comment analyses provided, generate a concise strategic report focused on key insights and actionable recommendations only.

VIDEO ANALYSES:
%s

Please create a report in %s with the following structure:
1. EXECUTIVE SUMMARY (3-5 key findings)
2. TOP 3 STRATEGIC RECOMMENDATIONS
3. CONTENT PERFORMANCE HIGHLIGHTS (most successful content types)
4. CRITICAL AREAS FOR IMPROVEMENT (top 3 issues to address)

Keep the report concise and focused on actionable insights. Maximum 1500 words.`, videoSummaries, outputLanguage)
}

// ComprehensiveReportInput carries the values interpolated into the comprehensive report prompt.
type ComprehensiveReportInput struct {
	VideoSummaries   string
	AudienceInsights string
	Model            string
	VideosAnalyzed   int
	LanguageFilter   string
	MinLength        int
	OutputLanguage   string
}

// BuildComprehensiveReportPrompt asks for the full strategic report.
func BuildComprehensiveReportPrompt(in ComprehensiveReportInput) string {
	languageFilter := in.LanguageFilter
	if languageFilter == "" {
		languageFilter = "all"
	}

	return fmt.Sprintf(`You are an experienced YouTube channel analyst preparing a comprehensive strategic report for a content creator.
You have access to detailed comment analysis data from multiple videos and audience insights.

VIDEO ANALYSIS DATA:
`+"```json\n%s\n```"+`

AUDIENCE INSIGHTS:
`+"```\n%s\n```"+`

ANALYSIS CONFIGURATION:
- Analysis Model: %s
- Videos Analyzed: %d
- Language Filter: %s
- Minimum Comment Length: %d characters

Structure your report as follows:

## EXECUTIVE SUMMARY
- Key findings and overall channel performance
- Primary strengths and areas for improvement
- Top 3 strategic recommendations

## CONTENT ANALYSIS
- Sentiment trends, most engaging topics, recurring praise and criticism

## AUDIENCE ANALYSIS
[Integrate the audience insights here, but make it flow with the overall report]

## STRATEGIC RECOMMENDATIONS
- Content strategy, audience development, production and quality

## ACTION PLAN
- Immediate actions (next 30 days)
- Medium-term improvements (3-6 months)
- Long-term strategic goals (6+ months)

Make the report actionable, specific, and data-driven. Include relevant statistics and examples.
Respond in %s.`,
		in.VideoSummaries, in.AudienceInsights, in.Model, in.VideosAnalyzed, languageFilter, in.MinLength, in.OutputLanguage)
}
