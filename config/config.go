// Package config holds the settings an evaluation run is constructed from.
// A Config is built once per process, either from the environment or from a
// YAML file, and passed explicitly to the components that need it.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfiguration is returned when a required setting is missing or invalid
var ErrConfiguration = errors.New("invalid configuration")

// DefaultMetrics are the metrics run when none are configured
var DefaultMetrics = []string{
	"answer_relevancy",
	"factual_correctness",
	"llm_context_precision_without_reference",
}

// Config is the full evaluation configuration
type Config struct {
	OpenAI     OpenAIConfig     `yaml:"openai"`
	QA         QAConfig         `yaml:"qa"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// OpenAIConfig configures the judge and embedding models
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// QAConfig configures the question-answering service under test
type QAConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// TrackingConfig configures result upload. An empty APIKey disables upload.
type TrackingConfig struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Project  string `yaml:"project"`
}

// EvaluationConfig configures which metrics run and how
type EvaluationConfig struct {
	Metrics []string `yaml:"metrics"`
	// Concurrency bounds how many test cases are evaluated at once
	Concurrency int `yaml:"concurrency"`
	// MetricConcurrency bounds how many metrics score one sample at once; 0 means all
	MetricConcurrency int `yaml:"metric_concurrency"`
	// Thresholds are minimum passing scores per metric name, checked by the caller
	Thresholds map[string]float64 `yaml:"thresholds"`
	DataDir    string             `yaml:"data_dir"`
}

// LoggingConfig configures the process logger
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FromEnv builds a validated configuration from environment variables.
func FromEnv() (*Config, error) {
	var cfg Config
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads, parses and validates the configuration file. ${VAR} references are
// expanded and settings left empty fall back to the same environment variables FromEnv reads.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setIfEmpty(&cfg.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY"))
	setIfEmpty(&cfg.OpenAI.BaseURL, os.Getenv("OPENAI_BASE_URL"))
	setIfEmpty(&cfg.Tracking.APIKey, os.Getenv("LANGCHAIN_API_KEY"))
	setIfEmpty(&cfg.Tracking.APIKey, os.Getenv("LANGSMITH_API_KEY"))
	setIfEmpty(&cfg.Tracking.Endpoint, os.Getenv("LANGCHAIN_ENDPOINT"))
	setIfEmpty(&cfg.Tracking.Project, os.Getenv("RAGEVAL_PROJECT"))
	setIfEmpty(&cfg.QA.Endpoint, os.Getenv("RAG_QA_ENDPOINT"))
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.QA.Endpoint == "" {
		cfg.QA.Endpoint = "https://rahulshettyacademy.com/rag-llm/ask"
	}
	if cfg.QA.Timeout == 0 {
		cfg.QA.Timeout = 60 * time.Second
	}
	if cfg.Tracking.Endpoint == "" {
		cfg.Tracking.Endpoint = "https://api.smith.langchain.com"
	}
	if cfg.Tracking.Project == "" {
		cfg.Tracking.Project = "ragas-evaluation-results"
	}
	if len(cfg.Evaluation.Metrics) == 0 {
		cfg.Evaluation.Metrics = append([]string(nil), DefaultMetrics...)
	}
	if cfg.Evaluation.Concurrency == 0 {
		cfg.Evaluation.Concurrency = 1
	}
	if cfg.Evaluation.DataDir == "" {
		cfg.Evaluation.DataDir = "test_data"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate enforces the credential rule: the LLM provider key is required,
// the tracking key is optional and only disables upload when absent.
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrConfiguration)
	}
	if c.Evaluation.Concurrency < 0 {
		return fmt.Errorf("%w: evaluation.concurrency must not be negative", ErrConfiguration)
	}
	if c.Evaluation.MetricConcurrency < 0 {
		return fmt.Errorf("%w: evaluation.metric_concurrency must not be negative", ErrConfiguration)
	}
	for name, th := range c.Evaluation.Thresholds {
		if th < 0 || th > 1 {
			return fmt.Errorf("%w: threshold for %s must be within [0,1], got %v", ErrConfiguration, name, th)
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown logging format %q", ErrConfiguration, c.Logging.Format)
	}
	return nil
}

// UploadEnabled reports whether a tracking key is configured
func (c *Config) UploadEnabled() bool {
	return c.Tracking.APIKey != ""
}

// Threshold returns the passing score configured for a metric
func (c *Config) Threshold(metric string) (float64, bool) {
	th, ok := c.Evaluation.Thresholds[metric]
	return th, ok
}

// NewLogger builds the process logger described by the logging settings
func (c LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromString(c.Level)}
	if strings.ToLower(c.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func levelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
