package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/runixer/rara/internal/analysis"
	"github.com/runixer/rara/internal/config"
	"github.com/runixer/rara/internal/files"
	"github.com/runixer/rara/internal/i18n"
	"github.com/runixer/rara/internal/lark"
	"github.com/runixer/rara/internal/openai"
	"github.com/runixer/rara/internal/pipeline"
	"github.com/runixer/rara/internal/web"
)

// redisPingTimeout bounds the startup probe of the shared token cache.
const redisPingTimeout = 3 * time.Second

// Services holds all initialized components.
// This struct is returned by SetupServices so that main and the end-to-end
// tests wire the service the same way.
type Services struct {
	Translator *i18n.Translator
	TokenStore lark.TokenStore
	Tokens     *lark.TokenProvider
	Drive      *lark.DriveClient
	Extractor  *files.Extractor
	LLM        openai.Client
	Analyzer   *analysis.Analyzer
	Pipeline   *pipeline.Pipeline
	Server     *web.Server

	redis *lark.RedisTokenStore
}

// SetupServices initializes every component from cfg.
//
// The caller is responsible for:
// - Starting the web server (services.Server.Start(ctx))
// - Releasing resources when done (services.Close())
func SetupServices(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*Services, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	services := &Services{}

	translator, err := i18n.NewTranslator(cfg.Analysis.GetLanguage())
	if err != nil {
		return nil, fmt.Errorf("failed to create translator: %w", err)
	}
	services.Translator = translator

	services.TokenStore = services.setupTokenStore(ctx, logger, cfg)

	services.Tokens, err = lark.NewTokenProvider(logger, cfg.Lark, services.TokenStore)
	if err != nil {
		return nil, fmt.Errorf("failed to create token provider: %w", err)
	}

	services.Drive, err = lark.NewDriveClient(logger, cfg.Lark, services.Tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}

	services.Extractor = files.NewExtractor(logger)

	services.LLM, err = openai.NewClient(logger, cfg.OpenAI.APIKey, cfg.OpenAI.ProxyURL, cfg.OpenAI.BaseURL, cfg.OpenAI.GetTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	services.Analyzer = analysis.NewAnalyzer(logger, services.LLM, translator, cfg.OpenAI, cfg.Analysis.GetLanguage())

	services.Pipeline = pipeline.New(
		logger,
		services.Drive,
		services.Extractor,
		services.Analyzer,
		cfg.Analysis.GetMinTextChars(),
		cfg.Server.GetPipelineTimeout(),
	)

	services.Server = web.NewServer(logger, cfg, services.Pipeline, translator)

	return services, nil
}

// setupTokenStore picks the shared Redis cache when configured. An
// unreachable Redis is not fatal: the store degrades to fresh requests.
func (s *Services) setupTokenStore(ctx context.Context, logger *slog.Logger, cfg *config.Config) lark.TokenStore {
	if cfg.Lark.TokenCache.RedisAddr == "" {
		return lark.NewMemoryTokenStore()
	}

	store := lark.NewRedisTokenStore(cfg.Lark.TokenCache, cfg.Lark.AppID)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn("Token cache redis is unreachable, tokens will be requested upstream until it recovers",
			"addr", cfg.Lark.TokenCache.RedisAddr,
			"error", err,
		)
	} else {
		logger.Info("Using redis token cache", "addr", cfg.Lark.TokenCache.RedisAddr, "db", cfg.Lark.TokenCache.RedisDB)
	}
	s.redis = store
	return store
}

// Close releases connections held by the services.
func (s *Services) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
