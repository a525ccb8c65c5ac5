package lark

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/runixer/rara/internal/apperr"
	"github.com/runixer/rara/internal/files"
)

type mockTokenSource struct {
	mock.Mock
}

func (m *mockTokenSource) Token(ctx context.Context) (AccessToken, error) {
	args := m.Called(ctx)
	return args.Get(0).(AccessToken), args.Error(1)
}

func newDriveClient(t *testing.T, baseURL string, tokens TokenSource, maxBytes int64) *DriveClient {
	t.Helper()
	cfg := testLarkConfig(baseURL)
	cfg.MaxDownloadBytes = maxBytes
	c, err := NewDriveClient(testLogger(), cfg, tokens)
	require.NoError(t, err)
	return c
}

func TestFetch_Success(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/open-apis/drive/v1/files/boxcnABC/download", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 body"))
	}))
	defer server.Close()

	tokens := new(mockTokenSource)
	tokens.On("Token", mock.Anything).Return(AccessToken{Value: "tok-1"}, nil).Once()

	doc, err := newDriveClient(t, server.URL, tokens, 0).Fetch(context.Background(), FileReference{Token: "boxcnABC", Name: "kontrak.PDF"})
	require.NoError(t, err)

	assert.Equal(t, "boxcnABC", doc.Token)
	assert.Equal(t, "kontrak.PDF", doc.Name)
	assert.Equal(t, files.KindPDF, doc.Kind)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, []byte("%PDF-1.4 body"), doc.Data)
	assert.Equal(t, int32(1), hits.Load())
	tokens.AssertExpectations(t)
}

func TestFetch_NameFromContentDisposition(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		kind   files.Kind
	}{
		{"plain filename", `attachment; filename="memo.docx"`, "memo.docx", files.KindDOCX},
		{"rfc5987 filename", `attachment; filename*=UTF-8''Perjanjian%20Sewa.pdf`, "Perjanjian Sewa.pdf", files.KindPDF},
		{"missing header", "", "", files.KindUnknown},
		{"garbage header", `;;;`, "", files.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Content-Disposition", tt.header)
				}
				_, _ = w.Write([]byte("data"))
			}))
			defer server.Close()

			tokens := new(mockTokenSource)
			tokens.On("Token", mock.Anything).Return(AccessToken{Value: "tok"}, nil)

			doc, err := newDriveClient(t, server.URL, tokens, 0).Fetch(context.Background(), FileReference{Token: "f"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc.Name)
			assert.Equal(t, tt.kind, doc.Kind)
		})
	}
}

func TestFetch_DeclaredNameWins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="other.pdf"`)
		_, _ = w.Write([]byte("data"))
	}))
	defer server.Close()

	tokens := new(mockTokenSource)
	tokens.On("Token", mock.Anything).Return(AccessToken{Value: "tok"}, nil)

	doc, err := newDriveClient(t, server.URL, tokens, 0).Fetch(context.Background(), FileReference{Token: "f", Name: "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Name)
	assert.Equal(t, files.KindPlain, doc.Kind)
}

func TestFetch_Non2xxIsDownloadError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":1061004,"msg":"forbidden"}`))
	}))
	defer server.Close()

	tokens := new(mockTokenSource)
	tokens.On("Token", mock.Anything).Return(AccessToken{Value: "tok"}, nil).Once()

	_, err := newDriveClient(t, server.URL, tokens, 0).Fetch(context.Background(), FileReference{Token: "f", Name: "a.pdf"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrDownload)
	assert.Contains(t, err.Error(), "status 404: code 1061004: forbidden")
	assert.Equal(t, int32(1), hits.Load(), "no retries")
	tokens.AssertExpectations(t)
}

func TestFetch_TokenFailureSkipsDownload(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	tokens := new(mockTokenSource)
	tokens.On("Token", mock.Anything).Return(AccessToken{}, apperr.Auth("request tenant token", errors.New("code 10014: app secret invalid")))

	_, err := newDriveClient(t, server.URL, tokens, 0).Fetch(context.Background(), FileReference{Token: "f"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrAuth)
	assert.NotErrorIs(t, err, apperr.ErrDownload)
	assert.Equal(t, int32(0), hits.Load())
}

func TestFetch_TransportFailureIsDownloadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	tokens := new(mockTokenSource)
	tokens.On("Token", mock.Anything).Return(AccessToken{Value: "secret-bearer"}, nil)

	_, err := newDriveClient(t, url, tokens, 0).Fetch(context.Background(), FileReference{Token: "f"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrDownload)
	assert.NotContains(t, err.Error(), "secret-bearer")
}

func TestFetch_SizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	tokens := new(mockTokenSource)
	tokens.On("Token", mock.Anything).Return(AccessToken{Value: "tok"}, nil)

	_, err := newDriveClient(t, server.URL, tokens, 1024).Fetch(context.Background(), FileReference{Token: "f"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrDownload)
	assert.ErrorIs(t, err, errTooLarge)

	doc, err := newDriveClient(t, server.URL, tokens, 2048).Fetch(context.Background(), FileReference{Token: "f"})
	require.NoError(t, err)
	assert.Len(t, doc.Data, 2048)
}

func TestFetch_EmptyTokenIsValidationError(t *testing.T) {
	tokens := new(mockTokenSource)
	_, err := newDriveClient(t, "http://127.0.0.1:1", tokens, 0).Fetch(context.Background(), FileReference{Token: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	tokens.AssertNotCalled(t, "Token", mock.Anything)
}
