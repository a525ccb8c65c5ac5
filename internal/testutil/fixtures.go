package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/runixer/rara/internal/openai"
)

const (
	// FakeTenantToken is the tenant_access_token FakeLark hands out.
	FakeTenantToken = "t-fake-tenant-token"

	larkTokenPath    = "/open-apis/auth/v3/tenant_access_token/internal"
	larkDrivePrefix  = "/open-apis/drive/v1/files/"
	larkDriveSuffix  = "/download"
	openAIPathPrefix = "/v1"
)

// BuildDOCX assembles a minimal .docx package with one paragraph per argument.
func BuildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, html.EscapeString(p))
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create docx part: %v", err)
	}
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("write docx part: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close docx: %v", err)
	}
	return buf.Bytes()
}

// FakeFile is a file served by FakeLark.
type FakeFile struct {
	// Name is sent as the Content-Disposition file name when set.
	Name string
	Data []byte
}

// FakeLark imitates the Lark tenant token and Drive download endpoints.
type FakeLark struct {
	Server *httptest.Server

	mu            sync.Mutex
	files         map[string]FakeFile
	tokenCode     int
	tokenCalls    int
	downloadCalls int
}

// NewFakeLark starts a fake Lark server, closed with t.Cleanup.
func NewFakeLark(t *testing.T) *FakeLark {
	t.Helper()
	f := &FakeLark{files: make(map[string]FakeFile)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// AddFile makes token downloadable.
func (f *FakeLark) AddFile(token string, file FakeFile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[token] = file
}

// RejectCredentials makes the token endpoint answer with a non-zero code.
func (f *FakeLark) RejectCredentials(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCode = code
}

func (f *FakeLark) TokenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls
}

func (f *FakeLark) DownloadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloadCalls
}

func (f *FakeLark) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == larkTokenPath:
		f.tokenCalls++
		w.Header().Set("Content-Type", "application/json")
		if f.tokenCode != 0 {
			_ = json.NewEncoder(w).Encode(map[string]any{"code": f.tokenCode, "msg": "app secret invalid"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":                0,
			"msg":                 "ok",
			"tenant_access_token": FakeTenantToken,
			"expire":              7200,
		})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, larkDrivePrefix) && strings.HasSuffix(r.URL.Path, larkDriveSuffix):
		f.downloadCalls++
		if r.Header.Get("Authorization") != "Bearer "+FakeTenantToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":99991663,"msg":"invalid access token"}`))
			return
		}
		token := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, larkDrivePrefix), larkDriveSuffix)
		file, ok := f.files[token]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":1061007,"msg":"file has been delete"}`))
			return
		}
		if file.Name != "" {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(file.Data)

	default:
		http.NotFound(w, r)
	}
}

// FakeOpenAI imitates the chat completions endpoint.
type FakeOpenAI struct {
	Server *httptest.Server

	mu       sync.Mutex
	content  string
	status   int
	requests []openai.ChatCompletionRequest
}

// NewFakeOpenAI starts a fake completion server answering with content,
// closed with t.Cleanup.
func NewFakeOpenAI(t *testing.T, content string) *FakeOpenAI {
	t.Helper()
	f := &FakeOpenAI{content: content, status: http.StatusOK}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL is the value for openai.base_url.
func (f *FakeOpenAI) BaseURL() string {
	return f.Server.URL + openAIPathPrefix
}

// Fail makes every following request answer with status.
func (f *FakeOpenAI) Fail(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// Requests returns the decoded requests received so far.
func (f *FakeOpenAI) Requests() []openai.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]openai.ChatCompletionRequest(nil), f.requests...)
}

func (f *FakeOpenAI) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != openAIPathPrefix+"/chat/completions" {
		http.NotFound(w, r)
		return
	}

	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status, content := f.status, f.content
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream unavailable"}}`))
		return
	}
	_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		Model:   req.Model,
		Choices: []openai.Choice{{Message: openai.ResponseMessage{Role: openai.RoleAssistant, Content: content}}},
		Usage:   openai.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	})
}
