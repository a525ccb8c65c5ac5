package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/runixer/rara/internal/apperr"
	"github.com/runixer/rara/internal/config"
	"github.com/runixer/rara/internal/files"
)

// errTooLarge is returned when a file exceeds the configured download cap.
var errTooLarge = errors.New("file exceeds download size limit")

// DriveClient downloads files from Lark Drive.
type DriveClient struct {
	tokens     TokenSource
	httpClient *http.Client
	baseURL    string
	maxBytes   int64
	logger     *slog.Logger
}

// NewDriveClient creates a Drive client that authenticates with tokens.
func NewDriveClient(logger *slog.Logger, cfg config.LarkConfig, tokens TokenSource) (*DriveClient, error) {
	// Keep-alives off: downloads are rare and large, a fresh connection each
	// time avoids reusing a connection the server already dropped.
	httpClient, err := newHTTPClient(cfg.ProxyURL, cfg.GetDownloadTimeout(), false)
	if err != nil {
		return nil, err
	}
	return &DriveClient{
		tokens:     tokens,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxBytes:   cfg.MaxDownloadBytes,
		logger:     logger.With("component", "lark_client"),
	}, nil
}

// Fetch downloads the file ref points at. It acquires one token and issues
// one GET; there are no retries. Any non-2xx response or transport failure is
// a download error. When ref carries no name, the Content-Disposition file
// name is used so the extractor can still pick a decoder.
func (d *DriveClient) Fetch(ctx context.Context, ref FileReference) (files.RawDocument, error) {
	const op = "download file"

	if strings.TrimSpace(ref.Token) == "" {
		return files.RawDocument{}, apperr.Validation(op, errors.New("file_token is empty"))
	}

	token, err := d.tokens.Token(ctx)
	if err != nil {
		return files.RawDocument{}, apperr.Auth("request tenant token", err)
	}

	start := time.Now()
	fileURL := d.baseURL + driveFilePath + url.PathEscape(ref.Token) + "/download"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return files.RawDocument{}, apperr.Download(op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("User-Agent", "rara/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		recordDownload(statusFor(err), time.Since(start).Seconds(), 0)
		// Sanitize so the bearer token never reaches logs or callers.
		sanitized := strings.ReplaceAll(err.Error(), token.Value, "[REDACTED]")
		d.logger.Error("file download failed", "file_token", ref.Token, "error", sanitized)
		return files.RawDocument{}, apperr.Download(op, errors.New(sanitized))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		recordDownload(statusError, time.Since(start).Seconds(), 0)
		cause := describeErrorResponse(resp)
		d.logger.Error("Lark returned non-2xx for file download",
			"file_token", ref.Token,
			"status", resp.Status,
			"detail", cause,
		)
		return files.RawDocument{}, apperr.Download(op, cause)
	}

	data, err := d.readBody(resp.Body)
	if err != nil {
		recordDownload(statusFor(err), time.Since(start).Seconds(), 0)
		d.logger.Error("failed to read file body", "file_token", ref.Token, "error", err)
		return files.RawDocument{}, apperr.Download(op, err)
	}

	name := ref.Name
	if strings.TrimSpace(name) == "" {
		name = fileNameFromDisposition(resp.Header.Get("Content-Disposition"))
	}

	duration := time.Since(start)
	recordDownload(statusSuccess, duration.Seconds(), len(data))
	d.logger.Info("file downloaded",
		"file_token", ref.Token,
		"file_name", name,
		"size", len(data),
		"duration_ms", duration.Milliseconds(),
	)

	return files.NewRawDocument(ref.Token, name, resp.Header.Get("Content-Type"), data), nil
}

func (d *DriveClient) readBody(body io.Reader) ([]byte, error) {
	if d.maxBytes <= 0 {
		return io.ReadAll(body)
	}
	data, err := io.ReadAll(io.LimitReader(body, d.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", errTooLarge, d.maxBytes)
	}
	return data, nil
}

// describeErrorResponse turns a failed response into an error, preferring the
// Lark {code, msg} envelope when the body carries one.
func describeErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e apiError
	if err := json.Unmarshal(raw, &e); err == nil && (e.Code != 0 || e.Msg != "") {
		return fmt.Errorf("status %d: code %d: %s", resp.StatusCode, e.Code, e.Msg)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}

// fileNameFromDisposition extracts the file name from a Content-Disposition
// header. The RFC 5987 filename* form is decoded by mime.ParseMediaType.
func fileNameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
