package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultConfig []byte

// Fallbacks used when a duration field is empty or unparsable.
const (
	DefaultLarkRequestTimeout  = 30 * time.Second
	DefaultLarkDownloadTimeout = 60 * time.Second
	DefaultTokenRefreshMargin  = 10 * time.Second
	DefaultOpenAITimeout       = 120 * time.Second
	DefaultPipelineTimeout     = 4 * time.Minute
	DefaultMinTextChars        = 20
	DefaultLanguage            = "id"
)

type ServerConfig struct {
	ListenPort      string `yaml:"listen_port" env:"RARA_SERVER_PORT,PORT"`
	WebhookPath     string `yaml:"webhook_path" env:"RARA_WEBHOOK_PATH"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
	PipelineTimeout string `yaml:"pipeline_timeout" env:"RARA_PIPELINE_TIMEOUT"`
}

// TokenCacheConfig enables sharing the tenant token between replicas.
// Leaving RedisAddr empty keeps the cache in process memory.
type TokenCacheConfig struct {
	RedisAddr     string `yaml:"redis_addr" env:"RARA_TOKEN_CACHE_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"RARA_TOKEN_CACHE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"RARA_TOKEN_CACHE_REDIS_DB"`
}

type LarkConfig struct {
	AppID              string           `yaml:"app_id" env:"RARA_LARK_APP_ID,LARK_APP_ID"`
	AppSecret          string           `yaml:"app_secret" env:"RARA_LARK_APP_SECRET,LARK_APP_SECRET"`
	BaseURL            string           `yaml:"base_url" env:"RARA_LARK_BASE_URL"`
	ProxyURL           string           `yaml:"proxy_url" env:"RARA_LARK_PROXY_URL"`
	VerificationToken  string           `yaml:"verification_token" env:"RARA_LARK_VERIFICATION_TOKEN"`
	RequestTimeout     string           `yaml:"request_timeout"`
	DownloadTimeout    string           `yaml:"download_timeout"`
	TokenRefreshMargin string           `yaml:"token_refresh_margin"`
	MaxDownloadBytes   int64            `yaml:"max_download_bytes"`
	TokenCache         TokenCacheConfig `yaml:"token_cache"`
}

type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key" env:"RARA_OPENAI_API_KEY,OPENAI_API_KEY"`
	BaseURL     string  `yaml:"base_url" env:"RARA_OPENAI_BASE_URL"`
	ProxyURL    string  `yaml:"proxy_url" env:"RARA_OPENAI_PROXY_URL"`
	Model       string  `yaml:"model" env:"RARA_OPENAI_MODEL"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

type AnalysisConfig struct {
	Language     string `yaml:"language" env:"RARA_ANALYSIS_LANGUAGE"`
	MinTextChars int    `yaml:"min_text_chars"`
}

type Config struct {
	Log struct {
		Level string `yaml:"level" env:"RARA_LOG_LEVEL"`
	} `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Lark     LarkConfig     `yaml:"lark"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (c *LarkConfig) GetRequestTimeout() time.Duration {
	return parseDurationOr(c.RequestTimeout, DefaultLarkRequestTimeout)
}

func (c *LarkConfig) GetDownloadTimeout() time.Duration {
	return parseDurationOr(c.DownloadTimeout, DefaultLarkDownloadTimeout)
}

// GetTokenRefreshMargin returns how long before the declared expiry a cached
// tenant token stops being handed out.
func (c *LarkConfig) GetTokenRefreshMargin() time.Duration {
	return parseDurationOr(c.TokenRefreshMargin, DefaultTokenRefreshMargin)
}

func (c *OpenAIConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, DefaultOpenAITimeout)
}

func (c *ServerConfig) GetPipelineTimeout() time.Duration {
	return parseDurationOr(c.PipelineTimeout, DefaultPipelineTimeout)
}

// GetMinTextChars returns the shortest extracted text worth analyzing.
func (c *AnalysisConfig) GetMinTextChars() int {
	if c.MinTextChars <= 0 {
		return DefaultMinTextChars
	}
	return c.MinTextChars
}

// GetLanguage returns the locale for user-facing texts and prompts.
func (c *AnalysisConfig) GetLanguage() string {
	if c.Language == "" {
		return DefaultLanguage
	}
	return c.Language
}

// Load loads configuration from the specified file path.
// It first loads the embedded default configuration, then merges the user config on top.
// Finally, it overrides values with environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfig, &cfg); err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			slog.Warn("config file not found, using defaults", "path", path)
		} else {
			expandedData := []byte(os.ExpandEnv(string(data)))
			if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
				return nil, err
			}
			slog.Info("loaded user config", "path", path)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDefault loads the embedded default configuration.
func LoadDefault() (*Config, error) {
	return Load("")
}

// DefaultConfigBytes returns the raw embedded default configuration.
func DefaultConfigBytes() []byte {
	return defaultConfig
}

// Validate checks configuration for required fields and valid ranges.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []error

	if c.Lark.AppID == "" {
		errs = append(errs, errors.New("lark.app_id is required"))
	}
	if c.Lark.AppSecret == "" {
		errs = append(errs, errors.New("lark.app_secret is required"))
	}
	if c.Lark.BaseURL == "" {
		errs = append(errs, errors.New("lark.base_url is required"))
	}
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("openai.api_key is required"))
	}
	if c.OpenAI.Model == "" {
		errs = append(errs, errors.New("openai.model is required"))
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		errs = append(errs, fmt.Errorf("openai.temperature must be between 0 and 2, got %f", c.OpenAI.Temperature))
	}
	if c.Server.ListenPort == "" {
		errs = append(errs, errors.New("server.listen_port is required"))
	}
	if c.Server.WebhookPath != "" && !strings.HasPrefix(c.Server.WebhookPath, "/") {
		errs = append(errs, fmt.Errorf("server.webhook_path must start with '/', got %q", c.Server.WebhookPath))
	}
	if c.Server.WebhookPath == "/analyze" || c.Server.WebhookPath == "/" {
		errs = append(errs, fmt.Errorf("server.webhook_path %q collides with a built-in route", c.Server.WebhookPath))
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must not be negative, got %d", c.Server.MaxBodyBytes))
	}
	if c.Lark.MaxDownloadBytes < 0 {
		errs = append(errs, fmt.Errorf("lark.max_download_bytes must not be negative, got %d", c.Lark.MaxDownloadBytes))
	}

	durations := []struct {
		name  string
		value string
	}{
		{"server.pipeline_timeout", c.Server.PipelineTimeout},
		{"lark.request_timeout", c.Lark.RequestTimeout},
		{"lark.download_timeout", c.Lark.DownloadTimeout},
		{"lark.token_refresh_margin", c.Lark.TokenRefreshMargin},
		{"openai.timeout", c.OpenAI.Timeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid duration format %q: %w", d.name, d.value, err))
		}
	}

	switch c.Analysis.Language {
	case "", "id", "en":
	default:
		errs = append(errs, fmt.Errorf("analysis.language: must be one of 'id', 'en', got %q", c.Analysis.Language))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
