package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <payload>",
	Short: "Post a payload to a running Rara server",
	Long: `Send a JSON payload to /analyze (or the webhook path with --webhook) of a
running instance and print the response. Prefix the argument with @ to read
the payload from a file.

Example:
  raractl send '{"file_token":"boxcnXXXX","file_name":"kontrak.pdf"}'
  raractl send @event.json --webhook --url http://localhost:3000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := getCLI(cmd)
		if c == nil {
			return fmt.Errorf("raractl not initialized")
		}

		payload, err := loadPayload(args[0])
		if err != nil {
			return err
		}

		baseURL := mustGetString(cmd, "url")
		if baseURL == "" {
			baseURL = "http://localhost:" + c.cfg.Server.ListenPort
		}
		path := "/analyze"
		if mustGetBool(cmd, "webhook") {
			path = c.cfg.Server.WebhookPath
		}

		client := &http.Client{Timeout: c.cfg.Server.GetPipelineTimeout() + 10*time.Second}
		status, body, err := postPayload(client, strings.TrimRight(baseURL, "/")+path, payload)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Status: %d %s\n", status, http.StatusText(status))
		var pretty bytes.Buffer
		if json.Indent(&pretty, body, "", "  ") == nil {
			body = pretty.Bytes()
		}
		fmt.Fprintf(w, "%s\n", body)

		if status >= http.StatusBadRequest {
			return fmt.Errorf("server answered %d", status)
		}
		return nil
	},
}

// loadPayload returns arg itself, or the contents of the file for "@path".
// The payload must be valid JSON.
func loadPayload(arg string) ([]byte, error) {
	payload := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
		payload = data
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return payload, nil
}

func postPayload(client *http.Client, url string, payload []byte) (int, []byte, error) {
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send payload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func init() {
	sendCmd.Flags().String("url", "", "Server base URL (default: http://localhost:<server.listen_port>)")
	sendCmd.Flags().Bool("webhook", false, "Post to the webhook path instead of /analyze")

	rootCmd.AddCommand(sendCmd)
}
