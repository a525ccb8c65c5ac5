package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/runixer/rara/internal/config"
	"github.com/runixer/rara/internal/i18n"
)

// TestLogger returns a discarding logger for tests.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestConfig returns a valid config pointing Lark and OpenAI at the given
// base URLs (usually httptest servers).
func TestConfig(larkURL, openaiURL string) *config.Config {
	cfg := &config.Config{}
	cfg.Log.Level = "debug"
	cfg.Server = config.ServerConfig{
		ListenPort:      "0",
		WebhookPath:     "/webhook/lark",
		MaxBodyBytes:    10 << 20,
		PipelineTimeout: "30s",
	}
	cfg.Lark = config.LarkConfig{
		AppID:              "cli_test",
		AppSecret:          "test_secret",
		BaseURL:            larkURL,
		RequestTimeout:     "5s",
		DownloadTimeout:    "5s",
		TokenRefreshMargin: "10s",
		MaxDownloadBytes:   10 << 20,
	}
	cfg.OpenAI = config.OpenAIConfig{
		APIKey:      "test_api_key",
		BaseURL:     openaiURL,
		Model:       "gpt-4.1-mini",
		Temperature: 0.2,
		Timeout:     "5s",
	}
	cfg.Analysis = config.AnalysisConfig{
		Language:     "id",
		MinTextChars: config.DefaultMinTextChars,
	}
	return cfg
}

// TestTranslator returns the translator over the embedded locales.
func TestTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.NewTranslator("id")
	if err != nil {
		t.Fatalf("failed to create test translator: %v", err)
	}
	return tr
}
