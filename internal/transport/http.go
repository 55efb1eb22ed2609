package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config wires the HTTP router.
type Config struct {
	// MCP serves the streamable MCP endpoint.
	MCP http.Handler
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Token is the bearer token required on /mcp. Empty disables auth.
	Token  string
	Logger *slog.Logger
}

// NewRouter mounts the MCP handler. Health and metrics are unauthenticated.
func NewRouter(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", handleHealth)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Token))
		r.Handle("/mcp", cfg.MCP)
		r.Handle("/mcp/*", cfg.MCP)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requestLogger logs one debug line per request, tagged with the MCP session.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"session_id", r.Header.Get("Mcp-Session-Id"),
				"duration", time.Since(start),
			)
		})
	}
}
