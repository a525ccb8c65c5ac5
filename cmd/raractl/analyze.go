package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/runixer/rara/internal/lark"
	"github.com/runixer/rara/internal/pipeline"
	"github.com/runixer/rara/internal/trigger"
)

type analyzeResult struct {
	Status       string   `json:"status"`
	Failures     []string `json:"failures,omitempty"`
	File         string   `json:"file"`
	Kind         string   `json:"kind"`
	Chars        int      `json:"chars"`
	Model        string   `json:"model,omitempty"`
	Insufficient bool     `json:"insufficient_text"`
	Analysis     string   `json:"analysis"`
	DurationMS   int64    `json:"duration_ms"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <path>",
	Short: "Analyze a local document with the configured model",
	Long: `Run extraction and analysis on a local file, bypassing Lark. This is useful
for testing prompts and extraction quality.

Example:
  raractl analyze kontrak.docx --title "Perjanjian Sewa" --note "cek pasal 3"
  raractl analyze memo.pdf --check-response "Ringkasan" --output json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := getCLI(cmd)
		if c == nil {
			return fmt.Errorf("raractl not initialized")
		}
		if c.cfg.OpenAI.APIKey == "" {
			return fmt.Errorf("RARA_OPENAI_API_KEY not set in config/env")
		}

		checkResponse := mustGetString(cmd, "check-response")
		outputFormat := mustGetString(cmd, "output")

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		ctx = trigger.With(ctx, trigger.Direct)

		runner := pipeline.New(
			c.logger,
			localFetcher{},
			c.services.Extractor,
			c.services.Analyzer,
			c.cfg.Analysis.GetMinTextChars(),
			c.cfg.Server.GetPipelineTimeout(),
		)
		in := pipeline.Input{
			File:    lark.FileReference{Token: args[0], Name: filepath.Base(args[0])},
			Title:   mustGetString(cmd, "title"),
			DocType: mustGetString(cmd, "type"),
			Note:    mustGetString(cmd, "note"),
		}

		result, err := runAnalysis(ctx, runner, in, checkResponse)
		if err != nil {
			return fmt.Errorf("failed to analyze %s: %w", args[0], err)
		}

		if outputFormat == "json" {
			return outputJSON(cmd.OutOrStdout(), result)
		}
		return outputAnalyzeText(cmd.OutOrStdout(), result)
	},
}

func runAnalysis(ctx context.Context, runner *pipeline.Pipeline, in pipeline.Input, checkResponse string) (analyzeResult, error) {
	start := time.Now()
	outcome, err := runner.Run(ctx, in)
	if err != nil {
		return analyzeResult{}, err
	}

	result := analyzeResult{
		Status:       "PASS",
		File:         in.File.Name,
		Kind:         string(outcome.Kind),
		Chars:        outcome.TextChars,
		Model:        outcome.Model,
		Insufficient: outcome.Insufficient,
		Analysis:     outcome.Analysis,
		DurationMS:   time.Since(start).Milliseconds(),
	}

	if outcome.Insufficient {
		result.Failures = append(result.Failures, fmt.Sprintf("extracted text too short (%d characters)", outcome.TextChars))
	}
	if checkResponse != "" && !strings.Contains(strings.ToLower(outcome.Analysis), strings.ToLower(checkResponse)) {
		result.Failures = append(result.Failures, fmt.Sprintf("analysis does not contain %q (case-insensitive)", checkResponse))
	}
	if len(result.Failures) > 0 {
		result.Status = "FAIL"
	}
	return result, nil
}

func outputAnalyzeText(w io.Writer, r analyzeResult) error {
	fmt.Fprintf(w, "Status: %s\n", r.Status)
	fmt.Fprintf(w, "File: %s (%s, %d characters)\n", r.File, r.Kind, r.Chars)
	if r.Model != "" {
		fmt.Fprintf(w, "Model: %s\n", r.Model)
	}
	fmt.Fprintf(w, "Duration: %v\n", time.Duration(r.DurationMS)*time.Millisecond)
	if r.Analysis != "" {
		fmt.Fprintf(w, "\n%s\n", r.Analysis)
	}

	if len(r.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
	return nil
}

func init() {
	analyzeCmd.Flags().String("title", "", "Document title (judul)")
	analyzeCmd.Flags().String("type", "", "Document type (jenis)")
	analyzeCmd.Flags().String("note", "", "User note (pesan)")
	analyzeCmd.Flags().String("check-response", "", "Check analysis contains substring")
	analyzeCmd.Flags().String("output", "text", "Output format: text, json")

	rootCmd.AddCommand(analyzeCmd)
}
