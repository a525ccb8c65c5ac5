package main

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

type extractResult struct {
	File  string `json:"file"`
	Kind  string `json:"kind"`
	Bytes int    `json:"bytes"`
	Chars int    `json:"chars"`
	Text  string `json:"text"`
}

var extractCmd = &cobra.Command{
	Use:   "extract <path>",
	Short: "Extract plain text from a local document",
	Long: `Run the text extractor on a local file and print the result. The decoder is
chosen by the file suffix (.pdf, .docx, anything else as UTF-8 text).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := getCLI(cmd)
		if c == nil {
			return fmt.Errorf("raractl not initialized")
		}

		doc, err := readLocal(args[0])
		if err != nil {
			return err
		}
		text, err := c.services.Extractor.Extract(cmd.Context(), doc)
		if err != nil {
			return fmt.Errorf("failed to extract text: %w", err)
		}

		result := extractResult{
			File:  doc.Name,
			Kind:  string(doc.Kind),
			Bytes: doc.Size(),
			Chars: utf8.RuneCountInString(text),
			Text:  text,
		}
		if mustGetString(cmd, "output") == "json" {
			return outputJSON(cmd.OutOrStdout(), result)
		}
		return outputExtractText(cmd.OutOrStdout(), result)
	},
}

func outputExtractText(w io.Writer, r extractResult) error {
	fmt.Fprintf(w, "File: %s (%s, %d bytes)\n", r.File, r.Kind, r.Bytes)
	fmt.Fprintf(w, "Characters: %d\n\n", r.Chars)
	_, err := fmt.Fprintln(w, r.Text)
	return err
}

func init() {
	extractCmd.Flags().String("output", "text", "Output format: text, json")

	rootCmd.AddCommand(extractCmd)
}
