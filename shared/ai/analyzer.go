package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"comment-insights/internal/models"
	"comment-insights/shared/config"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

var (
	// ErrFatal marks errors that retrying cannot fix, such as a rejected API key.
	ErrFatal = errors.New("fatal analysis error")
	// ErrMalformedResponse is returned when the model output does not match the expected schema.
	ErrMalformedResponse = errors.New("malformed model response")
)

// generator is the subset of the genai Models service used by the Analyzer.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Analyzer struct {
	models  generator
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewAnalyzer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Analyzer, error) {
	if err := cfg.RequireAI(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.AI.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newAnalyzer(client.Models, cfg.AnalysisModel, cfg.AI.RequestsPerSecond, logger), nil
}

func newAnalyzer(g generator, model string, requestsPerSecond float64, logger *zap.Logger) *Analyzer {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Analyzer{
		models:  g,
		model:   model,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// ExtractBatch asks the model for one structured analysis per comment, in order.
func (a *Analyzer) ExtractBatch(ctx context.Context, comments []models.Comment) ([]models.CommentAnalysis, error) {
	if len(comments) == 0 {
		return nil, nil
	}

	prompt := BuildBatchPrompt(comments)
	text, err := a.generate(ctx, prompt, &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema:   batchResponseSchema,
	})
	if err != nil {
		return nil, err
	}

	return ParseBatchResponse(text, len(comments))
}

// Summarize produces free-form markdown for a report or audience profile prompt.
func (a *Analyzer) Summarize(ctx context.Context, prompt string) (string, error) {
	text, err := a.generate(ctx, prompt, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.1),
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty summary", ErrMalformedResponse)
	}
	return text, nil
}

func (a *Analyzer) generate(ctx context.Context, prompt string, gcfg *genai.GenerateContentConfig) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt)}, genai.RoleUser),
	}

	result, err := a.models.GenerateContent(ctx, a.model, contents, gcfg)
	if err != nil {
		return "", classifyError(err)
	}

	text := result.Text()
	if text == "" {
		a.logger.Warn("Empty response from model, this could indicate content filtering or API issues",
			zap.String("model", a.model))
		return "", fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	return text, nil
}

// classifyError wraps errors that will fail identically on every attempt with ErrFatal.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrFatal, err)
		case http.StatusBadRequest:
			if strings.Contains(apiErr.Message, "API key") || strings.Contains(apiErr.Message, "API_KEY_INVALID") {
				return fmt.Errorf("%w: %v", ErrFatal, err)
			}
		case http.StatusNotFound:
			// unknown model name
			return fmt.Errorf("%w: %v", ErrFatal, err)
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "PERMISSION_DENIED") || strings.Contains(msg, "UNAUTHENTICATED") {
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
	return fmt.Errorf("failed to generate content: %w", err)
}

var batchResponseSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"sentiment": {
				Type: genai.TypeString,
				Enum: []string{models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative},
			},
			"topics":                      {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"pain_points":                 {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"advantages":                  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"recommendations_for_creator": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"is_relevant_feedback":        {Type: genai.TypeBoolean},
		},
		Required: []string{
			"sentiment", "topics", "pain_points", "advantages",
			"recommendations_for_creator", "is_relevant_feedback",
		},
	},
}
