package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	require.NoError(t, err)
	_, err = tmpfile.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())
	return tmpfile.Name()
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen_port: "9001"
lark:
  app_id: "cli_test"
  app_secret: "secret"
  verification_token: "vt"
openai:
  api_key: "test_api_key"
  model: "gpt-test"
  temperature: 0.1
analysis:
  language: "en"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9001", cfg.Server.ListenPort)
	assert.Equal(t, "cli_test", cfg.Lark.AppID)
	assert.Equal(t, "secret", cfg.Lark.AppSecret)
	assert.Equal(t, "vt", cfg.Lark.VerificationToken)
	assert.Equal(t, "test_api_key", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-test", cfg.OpenAI.Model)
	assert.InDelta(t, 0.1, cfg.OpenAI.Temperature, 1e-9)
	assert.Equal(t, "en", cfg.Analysis.Language)

	// Untouched sections come from default.yaml
	assert.Equal(t, "https://open.larksuite.com", cfg.Lark.BaseURL)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "/webhook/lark", cfg.Server.WebhookPath)
}

func TestLoad_FileNotExists_FallsBackToDefault(t *testing.T) {
	cfg, err := Load("non_existent_file.yaml")
	assert.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "gpt-4.1-mini", cfg.OpenAI.Model)
}

func TestLoadDefault(t *testing.T) {
	cfg, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "id", cfg.Analysis.Language)
	assert.Equal(t, 20, cfg.Analysis.GetMinTextChars())
	assert.InDelta(t, 0.2, cfg.OpenAI.Temperature, 1e-9)
	assert.Equal(t, int64(10*1024*1024), cfg.Server.MaxBodyBytes)
	assert.Equal(t, 10*time.Second, cfg.Lark.GetTokenRefreshMargin())
	assert.NotEmpty(t, DefaultConfigBytes())
}

func TestLoad_WithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_LARK_SECRET", "secret-from-env")
	t.Setenv("TEST_API_KEY", "api-key-from-env")

	path := writeTempConfig(t, `
lark:
  app_id: "cli_test"
  app_secret: "$TEST_LARK_SECRET"
openai:
  api_key: "${TEST_API_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-from-env", cfg.Lark.AppSecret)
	assert.Equal(t, "api-key-from-env", cfg.OpenAI.APIKey)
	assert.Equal(t, "cli_test", cfg.Lark.AppID)
}

func TestLoad_EnvOverridesWithLegacyNames(t *testing.T) {
	t.Setenv("LARK_APP_ID", "cli_from_env")
	t.Setenv("LARK_APP_SECRET", "secret_from_env")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("RARA_OPENAI_MODEL", "gpt-from-env")

	cfg, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, "cli_from_env", cfg.Lark.AppID)
	assert.Equal(t, "secret_from_env", cfg.Lark.AppSecret)
	assert.Equal(t, "sk-from-env", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-from-env", cfg.OpenAI.Model)
}

func TestDurationGetters_FallBack(t *testing.T) {
	lark := LarkConfig{RequestTimeout: "bogus", DownloadTimeout: "", TokenRefreshMargin: "-5s"}
	assert.Equal(t, DefaultLarkRequestTimeout, lark.GetRequestTimeout())
	assert.Equal(t, DefaultLarkDownloadTimeout, lark.GetDownloadTimeout())
	assert.Equal(t, DefaultTokenRefreshMargin, lark.GetTokenRefreshMargin())

	openai := OpenAIConfig{Timeout: "45s"}
	assert.Equal(t, 45*time.Second, openai.GetTimeout())

	server := ServerConfig{}
	assert.Equal(t, DefaultPipelineTimeout, server.GetPipelineTimeout())

	analysis := AnalysisConfig{}
	assert.Equal(t, "id", analysis.GetLanguage())
	assert.Equal(t, DefaultMinTextChars, analysis.GetMinTextChars())
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.Server.ListenPort = "3000"
	cfg.Server.WebhookPath = "/webhook/lark"
	cfg.Lark.AppID = "cli"
	cfg.Lark.AppSecret = "secret"
	cfg.Lark.BaseURL = "https://open.larksuite.com"
	cfg.OpenAI.APIKey = "sk"
	cfg.OpenAI.Model = "gpt-4.1-mini"
	cfg.OpenAI.Temperature = 0.2
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing app id", mutate: func(c *Config) { c.Lark.AppID = "" }, wantErr: "lark.app_id is required"},
		{name: "missing app secret", mutate: func(c *Config) { c.Lark.AppSecret = "" }, wantErr: "lark.app_secret is required"},
		{name: "missing api key", mutate: func(c *Config) { c.OpenAI.APIKey = "" }, wantErr: "openai.api_key is required"},
		{name: "temperature out of range", mutate: func(c *Config) { c.OpenAI.Temperature = 3 }, wantErr: "openai.temperature"},
		{name: "relative webhook path", mutate: func(c *Config) { c.Server.WebhookPath = "hook" }, wantErr: "must start with '/'"},
		{name: "webhook path collides", mutate: func(c *Config) { c.Server.WebhookPath = "/analyze" }, wantErr: "collides"},
		{name: "bad duration", mutate: func(c *Config) { c.Lark.RequestTimeout = "ten seconds" }, wantErr: "lark.request_timeout"},
		{name: "unknown language", mutate: func(c *Config) { c.Analysis.Language = "fr" }, wantErr: "analysis.language"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lark.app_id is required")
	assert.Contains(t, err.Error(), "openai.api_key is required")
	assert.Contains(t, err.Error(), "server.listen_port is required")
}
