package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"comment-insights/internal/models"
	"comment-insights/shared/ai"
)

var errUnavailable = errors.New("503 service unavailable")

// fakeExtractor labels comments by keyword: "good" is positive, "bad" negative.
type fakeExtractor struct {
	mu         sync.Mutex
	calls      atomic.Int64
	batchSizes []int
	failIDs    map[string]bool
	fatal      bool
}

func (f *fakeExtractor) ExtractBatch(ctx context.Context, comments []models.Comment) ([]models.CommentAnalysis, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.batchSizes = append(f.batchSizes, len(comments))
	f.mu.Unlock()

	if f.fatal {
		return nil, fmt.Errorf("%w: API key not valid", ai.ErrFatal)
	}

	out := make([]models.CommentAnalysis, len(comments))
	for i, c := range comments {
		if f.failIDs[c.ID] {
			return nil, errUnavailable
		}
		a := models.CommentAnalysis{
			Sentiment:          models.SentimentNeutral,
			Topics:             []string{"general"},
			IsRelevantFeedback: true,
		}
		switch {
		case strings.Contains(c.Text, "good"):
			a.Sentiment = models.SentimentPositive
			a.Advantages = []string{"Quality"}
		case strings.Contains(c.Text, "bad"):
			a.Sentiment = models.SentimentNegative
			a.PainPoints = []string{"audio"}
		}
		out[i] = a
	}
	return out, nil
}

type fakeSummarizer struct {
	calls   atomic.Int64
	prompts []string
	mu      sync.Mutex
	text    string
	err     error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type memorySource struct {
	comments map[string][]models.Comment
	delay    time.Duration

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (m *memorySource) Comments(ctx context.Context, videoID string) ([]models.Comment, error) {
	current := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxInFlight.Load()
		if current <= seen || m.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	comments, ok := m.comments[videoID]
	if !ok {
		return nil, fmt.Errorf("comments for %s: not found", videoID)
	}
	return comments, nil
}

type memoryStore struct {
	mu      sync.Mutex
	results map[string]*models.VideoAnalysisResult
	saves   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{results: map[string]*models.VideoAnalysisResult{}}
}

func (m *memoryStore) Lookup(videoID, cacheKey string) (*models.VideoAnalysisResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[videoID+"_"+cacheKey]
	return r, ok, nil
}

func (m *memoryStore) Save(result *models.VideoAnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.VideoID+"_"+result.CacheKey] = result
	m.saves++
	return nil
}

func comment(id, text, lang string) models.Comment {
	return models.Comment{ID: id, Text: text, Language: lang}
}

func testConfig() models.AnalysisConfig {
	return models.AnalysisConfig{
		Model:        "test-model",
		BatchSize:    2,
		MaxComments:  100,
		CacheVersion: "1.0",
	}
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond, Multiplier: 2}
}
