package analysis

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"comment-insights/internal/models"
)

var urlPattern = regexp.MustCompile(`(?i)(https?://|www\.)\S+`)

// FilterComments drops empty and link-only comments, comments shorter than MinLength,
// and, when FilterLanguage is set, comments not tagged with that language. The result is
// truncated to MaxComments. Input order is preserved.
func FilterComments(comments []models.Comment, cfg models.AnalysisConfig) []models.Comment {
	lang := strings.ToLower(strings.TrimSpace(cfg.FilterLanguage))

	out := make([]models.Comment, 0, len(comments))
	for _, c := range comments {
		text := strings.TrimSpace(c.Text)
		if text == "" || isURLOnly(text) {
			continue
		}
		if utf8.RuneCountInString(text) < cfg.MinLength {
			continue
		}
		if lang != "" && strings.ToLower(c.Language) != lang {
			continue
		}
		out = append(out, c)
		if cfg.MaxComments > 0 && len(out) == cfg.MaxComments {
			break
		}
	}
	return out
}

func isURLOnly(text string) bool {
	return strings.TrimSpace(urlPattern.ReplaceAllString(text, "")) == ""
}

// Partition splits comments into consecutive batches of at most size elements.
func Partition(comments []models.Comment, size int) [][]models.Comment {
	if size < 1 {
		size = 1
	}
	batches := make([][]models.Comment, 0, (len(comments)+size-1)/size)
	for start := 0; start < len(comments); start += size {
		end := min(start+size, len(comments))
		batches = append(batches, comments[start:end])
	}
	return batches
}
