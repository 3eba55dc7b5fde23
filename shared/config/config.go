package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"comment-insights/internal/models"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials is returned when a step needs an API credential that is not configured.
var ErrMissingCredentials = errors.New("missing credentials")

type Config struct {
	VideoURLs           []string `yaml:"video_urls" toml:"video_urls"`
	AnalysisModel       string   `yaml:"analysis_model" toml:"analysis_model"`
	FilterLanguage      string   `yaml:"filter_language" toml:"filter_language"`
	MinLength           int      `yaml:"min_length" toml:"min_length"`
	BatchSize           int      `yaml:"batch_size" toml:"batch_size"`
	MaxComments         int      `yaml:"max_comments" toml:"max_comments"`
	MaxVideoWorkers     int      `yaml:"max_video_workers" toml:"max_video_workers"`
	MaxBatchWorkers     int      `yaml:"max_batch_workers" toml:"max_batch_workers"`
	UseCache            *bool    `yaml:"use_cache" toml:"use_cache"`
	CacheVersion        string   `yaml:"cache_version" toml:"cache_version"`
	AnalyzeAudience     bool     `yaml:"analyze_audience" toml:"analyze_audience"`
	OutputLanguage      string   `yaml:"output_language" toml:"output_language"`
	ForceDownload       bool     `yaml:"force_download" toml:"force_download"`
	MaxDownloadComments int      `yaml:"max_download_comments" toml:"max_download_comments"`

	Retry      RetryConfig      `yaml:"retry" toml:"retry"`
	AI         AIConfig         `yaml:"ai" toml:"ai"`
	YouTube    YouTubeConfig    `yaml:"youtube" toml:"youtube"`
	Email      EmailConfig      `yaml:"email" toml:"email"`
	Paths      PathsConfig      `yaml:"paths" toml:"paths"`
	Monitoring MonitoringConfig `yaml:"monitoring" toml:"monitoring"`
	Schedule   string           `yaml:"schedule" toml:"schedule"`
	LogLevel   string           `yaml:"log_level" toml:"log_level"`
}

type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries" toml:"max_retries"`
	InitialWait time.Duration `yaml:"initial_wait" toml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait" toml:"max_wait"`
}

type AIConfig struct {
	GeminiAPIKey      string  `yaml:"gemini_api_key" toml:"gemini_api_key" env:"GEMINI_API_KEY"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

type YouTubeConfig struct {
	APIKey       string `yaml:"api_key" toml:"api_key" env:"YOUTUBE_API_KEY"`
	ClientID     string `yaml:"client_id" toml:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret" env:"GOOGLE_CLIENT_SECRET"`
	TokenFile    string `yaml:"token_file" toml:"token_file"`
}

type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server" toml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port" toml:"smtp_port"`
	Username   string `yaml:"username" toml:"username" env:"EMAIL_USERNAME"`
	Password   string `yaml:"password" toml:"password" env:"EMAIL_PASSWORD"`
	FromEmail  string `yaml:"from_email" toml:"from_email"`
	ToEmail    string `yaml:"to_email" toml:"to_email"`
}

type PathsConfig struct {
	DataDir    string `yaml:"data_dir" toml:"data_dir"`
	ReportsDir string `yaml:"reports_dir" toml:"reports_dir"`
	LogsDir    string `yaml:"logs_dir" toml:"logs_dir"`
}

type MonitoringConfig struct {
	HealthPort int `yaml:"health_port" toml:"health_port"`
}

// Load reads the config file named by CONFIG_FILE (default config.yaml) after loading .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}
	return LoadFile(configFile)
}

// LoadFile reads a YAML or TOML config file, applies env fallbacks and defaults, and validates it.
func LoadFile(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(configFile), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if c.AI.GeminiAPIKey == "" {
		c.AI.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.YouTube.APIKey == "" {
		c.YouTube.APIKey = os.Getenv("YOUTUBE_API_KEY")
	}
	if c.YouTube.ClientID == "" {
		c.YouTube.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if c.YouTube.ClientSecret == "" {
		c.YouTube.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if c.Email.Username == "" {
		c.Email.Username = os.Getenv("EMAIL_USERNAME")
	}
	if c.Email.Password == "" {
		c.Email.Password = os.Getenv("EMAIL_PASSWORD")
	}
}

func (c *Config) applyDefaults() {
	if c.AnalysisModel == "" {
		c.AnalysisModel = "gemini-2.5-flash"
	}
	if c.MinLength < 0 {
		c.MinLength = 0
	}
	if c.BatchSize == 0 {
		c.BatchSize = 20
	}
	if c.MaxComments == 0 {
		c.MaxComments = 1000
	}
	if c.MaxVideoWorkers == 0 {
		c.MaxVideoWorkers = 3
	}
	if c.MaxBatchWorkers == 0 {
		c.MaxBatchWorkers = 2
	}
	if c.UseCache == nil {
		enabled := true
		c.UseCache = &enabled
	}
	if c.CacheVersion == "" {
		c.CacheVersion = "1.0"
	}
	if c.OutputLanguage == "" {
		c.OutputLanguage = "English"
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.InitialWait == 0 {
		c.Retry.InitialWait = 2 * time.Second
	}
	if c.Retry.MaxWait == 0 {
		c.Retry.MaxWait = 30 * time.Second
	}
	if c.AI.RequestsPerSecond == 0 {
		c.AI.RequestsPerSecond = 2
	}
	if c.YouTube.TokenFile == "" {
		c.YouTube.TokenFile = "youtube_token.json"
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "data"
	}
	if c.Paths.ReportsDir == "" {
		c.Paths.ReportsDir = "reports"
	}
	if c.Paths.LogsDir == "" {
		c.Paths.LogsDir = "logs"
	}
	if c.Monitoring.HealthPort == 0 {
		c.Monitoring.HealthPort = 8080
	}
	if c.Schedule == "" {
		c.Schedule = "0 0 9 * * *" // Daily at 9 AM
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if len(c.VideoURLs) == 0 {
		return fmt.Errorf("video_urls is required and must list at least one video")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxComments < 1 {
		return fmt.Errorf("max_comments must be positive, got %d", c.MaxComments)
	}
	if c.MaxVideoWorkers < 1 || c.MaxBatchWorkers < 1 {
		return fmt.Errorf("max_video_workers and max_batch_workers must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative")
	}
	return nil
}

// RequireAI checks the credentials needed by the analysis and report steps.
func (c *Config) RequireAI() error {
	if c.AI.GeminiAPIKey == "" {
		return fmt.Errorf("%w: Gemini API key is required (set GEMINI_API_KEY or ai.gemini_api_key)", ErrMissingCredentials)
	}
	return nil
}

// RequireYouTube checks the credentials needed by the download step.
func (c *Config) RequireYouTube() error {
	if c.YouTube.APIKey != "" {
		return nil
	}
	if c.YouTube.ClientID == "" || c.YouTube.ClientSecret == "" {
		return fmt.Errorf("%w: YouTube API key or OAuth client is required (set YOUTUBE_API_KEY or GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET)", ErrMissingCredentials)
	}
	return nil
}

// EmailEnabled reports whether report delivery by email is configured.
func (c *Config) EmailEnabled() bool {
	return c.Email.ToEmail != "" && c.Email.SMTPServer != ""
}

func (c *Config) CacheEnabled() bool {
	return c.UseCache == nil || *c.UseCache
}

// AnalysisConfig returns the settings that determine a video's analysis outcome.
func (c *Config) AnalysisConfig() models.AnalysisConfig {
	return models.AnalysisConfig{
		Model:           c.AnalysisModel,
		BatchSize:       c.BatchSize,
		MinLength:       c.MinLength,
		FilterLanguage:  c.FilterLanguage,
		MaxComments:     c.MaxComments,
		CacheVersion:    c.CacheVersion,
		AnalyzeAudience: c.AnalyzeAudience,
	}
}

func (c *Config) CommentsDir() string { return filepath.Join(c.Paths.DataDir, "comments") }

func (c *Config) AnalysisDir() string { return filepath.Join(c.Paths.DataDir, "analysis") }

func (c *Config) IndexFile() string {
	return filepath.Join(c.Paths.DataDir, "video_comments_index.json")
}

func (c *Config) AggregatedFile() string {
	return filepath.Join(c.Paths.DataDir, "aggregated_analysis.json")
}

func (c *Config) RunLogFile() string { return filepath.Join(c.Paths.DataDir, "runs.db") }

func (c *Config) LogFile() string { return filepath.Join(c.Paths.LogsDir, "pipeline.log") }
