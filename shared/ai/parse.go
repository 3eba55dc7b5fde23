package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"comment-insights/internal/models"
)

// rawCommentAnalysis uses pointers so that missing fields can be told apart from empty ones.
type rawCommentAnalysis struct {
	Sentiment          *string  `json:"sentiment"`
	Topics             []string `json:"topics"`
	PainPoints         []string `json:"pain_points"`
	Advantages         []string `json:"advantages"`
	Recommendations    []string `json:"recommendations_for_creator"`
	IsRelevantFeedback *bool    `json:"is_relevant_feedback"`
}

// ParseBatchResponse decodes and validates the model's per-comment JSON array.
// Any deviation from the schema yields ErrMalformedResponse.
func ParseBatchResponse(response string, expected int) ([]models.CommentAnalysis, error) {
	response = stripFences(response)

	startIdx := strings.Index(response, "[")
	endIdx := strings.LastIndex(response, "]")
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("%w: no JSON array found in response", ErrMalformedResponse)
	}
	jsonStr := response[startIdx : endIdx+1]

	var raw []rawCommentAnalysis
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		sanitized := sanitizeJSON(jsonStr)
		if sanitizedErr := json.Unmarshal([]byte(sanitized), &raw); sanitizedErr != nil {
			return nil, fmt.Errorf("%w: %v (sanitized version also failed: %v)", ErrMalformedResponse, err, sanitizedErr)
		}
	}

	if len(raw) != expected {
		return nil, fmt.Errorf("%w: expected %d analyses, got %d", ErrMalformedResponse, expected, len(raw))
	}

	out := make([]models.CommentAnalysis, len(raw))
	for i, r := range raw {
		if r.Sentiment == nil {
			return nil, fmt.Errorf("%w: analysis %d is missing sentiment", ErrMalformedResponse, i)
		}
		sentiment := strings.ToLower(strings.TrimSpace(*r.Sentiment))
		switch sentiment {
		case models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative:
		default:
			return nil, fmt.Errorf("%w: analysis %d has unknown sentiment %q", ErrMalformedResponse, i, *r.Sentiment)
		}
		if r.IsRelevantFeedback == nil {
			return nil, fmt.Errorf("%w: analysis %d is missing is_relevant_feedback", ErrMalformedResponse, i)
		}

		out[i] = models.CommentAnalysis{
			Sentiment:          sentiment,
			Topics:             nonNil(r.Topics),
			PainPoints:         nonNil(r.PainPoints),
			Advantages:         nonNil(r.Advantages),
			Recommendations:    nonNil(r.Recommendations),
			IsRelevantFeedback: *r.IsRelevantFeedback,
		}
	}
	return out, nil
}

// stripFences removes markdown code fences from model output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// sanitizeJSON repairs the most common model formatting slips: unescaped quotes inside
// string values and trailing commas before a closing bracket.
func sanitizeJSON(jsonStr string) string {
	lines := strings.Split(jsonStr, "\n")
	var sanitizedLines []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if colonIdx := strings.Index(line, ":"); colonIdx != -1 && strings.Contains(line, "\"") {
			beforeColon := line[:colonIdx+1]
			afterColon := strings.TrimSpace(line[colonIdx+1:])

			if strings.HasPrefix(afterColon, "\"") {
				if lastQuoteIdx := strings.LastIndex(afterColon, "\""); lastQuoteIdx > 0 {
					content := afterColon[1:lastQuoteIdx]
					content = strings.ReplaceAll(content, `\"`, `"`)
					content = strings.ReplaceAll(content, `"`, `\"`)
					line = beforeColon + " \"" + content + "\"" + afterColon[lastQuoteIdx+1:]
				}
			}
		}

		sanitizedLines = append(sanitizedLines, line)
	}

	out := strings.Join(sanitizedLines, "\n")
	for _, closer := range []string{"]", "}"} {
		out = strings.ReplaceAll(out, ",\n"+closer, "\n"+closer)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
