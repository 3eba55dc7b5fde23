package models

// AnalysisConfig holds every setting that changes the outcome of a video analysis.
// It is immutable for the duration of a run and is the input of the cache key.
type AnalysisConfig struct {
	Model           string `json:"analysis_model"`
	BatchSize       int    `json:"batch_size"`
	MinLength       int    `json:"min_length"`
	FilterLanguage  string `json:"filter_language"`
	MaxComments     int    `json:"max_comments"`
	CacheVersion    string `json:"cache_version"`
	AnalyzeAudience bool   `json:"analyze_audience"`
}
