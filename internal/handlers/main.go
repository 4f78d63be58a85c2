package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/MegaGrindStone/site-assistant/internal/models"
	"github.com/rs/cors"
)

// Sessions is the thread lifecycle the HTTP surface is served from. It is implemented by
// session.Manager.
type Sessions interface {
	CreateOrUpdateThread(ctx context.Context, websiteURL string) (string, error)
	Chat(ctx context.Context, threadID, message string) (string, error)
	ChatStream(ctx context.Context, threadID, message string, sink func(string)) (string, error)
	Thread(ctx context.Context, threadID string) (models.Thread, error)
	ActiveThreadID() string
}

// Main handles the HTTP surface of the assistant: thread creation, blocking chat and streamed chat.
type Main struct {
	sessions Sessions

	allowedOrigins []string

	// streams tracks running stream producers so Shutdown can wait for them.
	streams *sync.WaitGroup

	logger *slog.Logger
}

const errLoggerKey = "err"

// MainOption configures optional Main behavior.
type MainOption func(*Main)

// WithAllowedOrigins restricts the CORS origins. By default every origin is allowed.
func WithAllowedOrigins(origins []string) MainOption {
	return func(m *Main) {
		m.allowedOrigins = origins
	}
}

// NewMain creates a new Main instance serving the given sessions.
func NewMain(sessions Sessions, logger *slog.Logger, opts ...MainOption) Main {
	m := Main{
		sessions:       sessions,
		allowedOrigins: []string{"*"},
		streams:        &sync.WaitGroup{},
		logger:         logger.With(slog.String("module", "handlers")),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Handler returns the routed HTTP handler, wrapped with panic recovery and CORS.
func (m Main) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /create_thread", m.HandleCreateThread)
	mux.HandleFunc("POST /chat", m.HandleChat)
	mux.HandleFunc("POST /chat_stream", m.HandleChatStream)
	mux.HandleFunc("GET /active_thread", m.HandleActiveThread)
	mux.HandleFunc("GET /health", m.HandleHealth)

	c := cors.New(cors.Options{
		AllowedOrigins: m.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})

	return c.Handler(m.recoverer(mux))
}

// Shutdown waits until every running stream producer has finished, or ctx is done. Producers are never
// cancelled, so a model call started by a disconnected client still completes and is recorded.
func (m Main) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.streams.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for streams: %w", ctx.Err())
	}
}

// headerTracker records whether the response status has been sent. Unwrap keeps http.ResponseController
// able to reach the underlying writer for flushing.
type headerTracker struct {
	http.ResponseWriter
	wroteHeader bool
}

func (h *headerTracker) WriteHeader(status int) {
	h.wroteHeader = true
	h.ResponseWriter.WriteHeader(status)
}

func (h *headerTracker) Write(b []byte) (int, error) {
	h.wroteHeader = true
	return h.ResponseWriter.Write(b)
}

func (h *headerTracker) Unwrap() http.ResponseWriter {
	return h.ResponseWriter
}

// recoverer turns a handler panic into a 500 JSON error. Once the status has been sent, as in a running
// stream, the panic is only logged and the body ends where it is.
func (m Main) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &headerTracker{ResponseWriter: w}
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				m.logger.Error("Handler panicked",
					slog.String("path", r.URL.Path),
					slog.Bool("headerWritten", tw.wroteHeader),
					slog.String(errLoggerKey, fmt.Sprint(p)))
				if !tw.wroteHeader {
					writeError(w, http.StatusInternalServerError, fmt.Sprint(p))
				}
			}
		}()
		next.ServeHTTP(tw, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
