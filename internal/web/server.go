package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/runixer/rara/internal/apperr"
	"github.com/runixer/rara/internal/config"
	"github.com/runixer/rara/internal/i18n"
	"github.com/runixer/rara/internal/pipeline"
	"github.com/runixer/rara/internal/trigger"
	"github.com/runixer/rara/internal/webhook"
)

const (
	analyzePath = "/analyze"

	// maxLoggedPayload caps the inbound body echoed into debug logs.
	maxLoggedPayload = 4096
)

// Runner runs one analysis request end to end.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (pipeline.Outcome, error)
}

type challengeResponse struct {
	Challenge json.RawMessage `json:"challenge"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type failureResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type noticeResponse struct {
	Analysis string `json:"analysis"`
}

type analysisResponse struct {
	OK       bool   `json:"ok"`
	Analysis string `json:"analysis"`
}

type ctxKeyRequestID struct{}

// getClientIP extracts the real client IP from the request.
// It checks X-Forwarded-For and X-Real-IP headers (set by reverse proxies like traefik),
// falling back to RemoteAddr if no proxy headers are present.
func getClientIP(r *http.Request) string {
	// X-Forwarded-For may contain multiple IPs: "client, proxy1, proxy2"
	// The first one is the original client IP
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}

	// Fallback to RemoteAddr (strips port if present)
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

type Server struct {
	cfg        *config.Config
	runner     Runner
	translator *i18n.Translator
	lang       string
	logger     *slog.Logger
}

func NewServer(logger *slog.Logger, cfg *config.Config, runner Runner, translator *i18n.Translator) *Server {
	return &Server{
		cfg:        cfg,
		runner:     runner,
		translator: translator,
		lang:       cfg.Analysis.GetLanguage(),
		logger:     logger.With("component", "web_server"),
	}
}

// Handler builds the routing tree with all middlewares applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", instrumentHandler("root", s.rootHandler))
	mux.HandleFunc("/healthz", instrumentHandler("healthz", s.healthzHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc(analyzePath, instrumentHandler("analyze", s.analyzeHandler(trigger.Direct)))
	if s.cfg.Server.WebhookPath != "" && s.cfg.Server.WebhookPath != analyzePath {
		mux.HandleFunc(s.cfg.Server.WebhookPath, instrumentHandler("webhook", s.analyzeHandler(trigger.Webhook)))
	}

	// Chain: RequestID -> Logging -> Mux
	handler := s.loggingMiddleware(mux)
	handler = requestIDMiddleware(handler)
	return handler
}

func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.cfg.Server.ListenPort,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("web server shutdown failed", "error", err)
		}
	}()

	s.logger.Info("Starting web server",
		"port", s.cfg.Server.ListenPort,
		"webhook_path", s.cfg.Server.WebhookPath,
	)
	err := server.ListenAndServe()
	if err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, s.translator.Get(s.lang, "server.running"))
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// analyzeHandler serves both the direct API and the provider webhook.
// The handshake echo is always answered first, before any other check.
func (s *Server) analyzeHandler(trig trigger.Trigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := s.requestLogger(r).With("trigger", trig.String())

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: s.translator.Get(s.lang, "webhook.method_not_allowed")})
			return
		}

		if limit := s.cfg.Server.MaxBodyBytes; limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				logger.Warn("Request body too large", "limit", tooLarge.Limit)
				s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: s.translator.Get(s.lang, "webhook.payload_too_large")})
				return
			}
			logger.Error("failed to read request body", "error", err)
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: s.translator.Get(s.lang, "webhook.invalid_payload")})
			return
		}
		logger.Debug("Received payload", "body", truncateBody(body))

		ev, err := webhook.Parse(body)
		if err != nil {
			logger.Warn("Rejected payload", "error", err)
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: s.translator.Get(s.lang, "webhook.invalid_payload")})
			return
		}

		if ev.Kind == webhook.KindVerification {
			logger.Info("Answered url_verification handshake")
			s.writeJSON(w, http.StatusOK, challengeResponse{Challenge: ev.Challenge})
			return
		}

		if trig == trigger.Webhook && !s.tokenAccepted(ev.Token) {
			logger.Warn("Webhook event with invalid verification token", "user_agent", r.UserAgent())
			s.writeJSON(w, http.StatusForbidden, errorResponse{Error: s.translator.Get(s.lang, "webhook.invalid_verification_token")})
			return
		}

		if ev.Kind != webhook.KindDocument {
			logger.Warn("Payload without file_token")
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: s.translator.Get(s.lang, "webhook.missing_file_token")})
			return
		}

		logger = logger.With("file_token", ev.Input.File.Token, "file_name", ev.Input.File.Name)
		if ev.EventType != "" {
			logger = logger.With("event_type", ev.EventType)
		}

		// A disconnecting caller must not abort calls already in flight.
		ctx := trigger.With(context.WithoutCancel(r.Context()), trig)
		outcome, err := s.runner.Run(ctx, ev.Input)
		if err != nil {
			s.writeError(w, logger, err)
			return
		}

		if outcome.Insufficient {
			logger.Info("Document has too little text", "chars", outcome.TextChars)
			s.writeJSON(w, http.StatusOK, noticeResponse{Analysis: s.translator.Get(s.lang, "analysis.insufficient_text")})
			return
		}

		logger.Info("Analysis completed",
			"kind", string(outcome.Kind),
			"chars", outcome.TextChars,
			"model", outcome.Model,
		)
		s.writeJSON(w, http.StatusOK, analysisResponse{OK: true, Analysis: outcome.Analysis})
	}
}

// tokenAccepted reports whether an event token passes the configured
// verification token. An empty configuration accepts everything.
func (s *Server) tokenAccepted(token string) bool {
	expected := s.cfg.Lark.VerificationToken
	return expected == "" || token == expected
}

func (s *Server) writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := apperr.HTTPStatusCode(err)
	if status == http.StatusBadRequest {
		logger.Warn("Analysis request rejected", "error", err)
		s.writeJSON(w, status, errorResponse{Error: s.translator.Get(s.lang, "webhook.missing_file_token")})
		return
	}

	logger.Error("Analysis failed", "error", err, "kind", apperr.Label(err))
	s.writeJSON(w, status, failureResponse{
		OK:    false,
		Error: s.translator.Get(s.lang, "server.error", apperr.Public(err)),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	// Challenges and analyses go back byte for byte.
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) requestLogger(r *http.Request) *slog.Logger {
	logger := s.logger.With("client_ip", getClientIP(r))
	if id, ok := r.Context().Value(ctxKeyRequestID{}).(string); ok {
		logger = logger.With("request_id", id)
	}
	return logger
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Log healthz and metrics at debug level, other requests at info level
		if path == "/healthz" || path == "/metrics" {
			s.logger.Debug("Received HTTP request",
				"method", r.Method,
				"path", path,
				"client_ip", getClientIP(r),
			)
		} else {
			s.requestLogger(r).Info("Received HTTP request",
				"method", r.Method,
				"path", path,
				"user_agent", r.UserAgent(),
			)
		}
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware reuses an inbound X-Request-ID or generates one,
// and echoes it back on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func truncateBody(body []byte) string {
	if len(body) <= maxLoggedPayload {
		return string(body)
	}
	return string(body[:maxLoggedPayload]) + "...[truncated]"
}
