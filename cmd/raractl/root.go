package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/runixer/rara/internal/app"
	"github.com/runixer/rara/internal/config"
)

const defaultConfigSubPath = "configs/config.yaml"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey int

const (
	cliKey contextKey = iota
)

// cli holds what every subcommand needs, passed via the command context.
type cli struct {
	logger   *slog.Logger
	cfg      *config.Config
	services *app.Services
}

var rootCmd = &cobra.Command{
	Use:   "raractl",
	Short: "CLI tool for running the Rara document analysis pipeline",
	Long: `Raractl runs the Rara pipeline without the HTTP server: extract text from
local files, download files from Lark Drive, analyze documents with the
configured model, or post payloads to a running instance.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgFile := mustGetString(cmd, "config")
		verbose := mustGetBool(cmd, "verbose")

		// Load .env from CWD - fail only if config was explicitly provided
		if err := app.LoadEnv(); err != nil {
			if cfgFile != "" {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
		}

		resolvedCfgPath, err := findConfigPath(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to find config: %w", err)
		}

		cfg, err := config.Load(resolvedCfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		c, err := newCLI(cmd.Context(), cfg, newLogger(cmd.ErrOrStderr(), verbose))
		if err != nil {
			return err
		}
		cmd.SetContext(context.WithValue(cmd.Context(), cliKey, c))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if c := getCLI(cmd); c != nil {
			if err := c.services.Close(); err != nil {
				return fmt.Errorf("failed to close services: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: auto-detect)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose debug output (shows all logs)")
}

// newLogger is quiet by default; verbose shows all logs on stderr.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	if !verbose {
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newCLI(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cli, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	services, err := app.SetupServices(ctx, logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup services: %w", err)
	}
	return &cli{logger: logger, cfg: cfg, services: services}, nil
}

// getCLI retrieves the cli instance from context.
func getCLI(cmd *cobra.Command) *cli {
	if cmd.Context() == nil {
		return nil
	}
	if c, ok := cmd.Context().Value(cliKey).(*cli); ok {
		return c
	}
	return nil
}

// findConfigPath resolves the config file path.
// Searches in order: provided path, CWD/configs/config.yaml, then defaults.
func findConfigPath(providedPath string) (string, error) {
	if providedPath != "" {
		if _, err := os.Stat(providedPath); err == nil {
			return providedPath, nil
		}
		// User explicitly provided a path that doesn't exist
		return "", fmt.Errorf("config file not found: %s", providedPath)
	}

	if _, err := os.Stat(defaultConfigSubPath); err == nil {
		return defaultConfigSubPath, nil
	}

	// Config not found - return empty string (will use defaults)
	return "", nil
}

// outputJSON writes v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// Flag retrieval helpers that panic on error (error indicates bug in flag name).

// mustGetString retrieves a string flag value. Panics on error (indicates bug in flag name).
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("bug: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetBool retrieves a bool flag value. Panics on error (indicates bug in flag name).
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("bug: failed to get flag %q: %v", name, err))
	}
	return val
}
