// Package server exposes sessions over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/spektr-org/vizon/session"
)

// ============================================================================
// HTTP API
// ============================================================================
//   POST   /sessions                      → {id}
//   GET    /sessions                      → [info]
//   DELETE /sessions/{id}
//   POST   /sessions/{id}/file            multipart "file", CSV or XLSX
//   POST   /sessions/{id}/image           multipart "file", photo or screenshot
//   POST   /sessions/{id}/url             {"url": "...", "render": false}
//   GET    /sessions/{id}/dashboard
//   GET    /sessions/{id}/table
//   GET    /sessions/{id}/schema
//   GET    /sessions/{id}/export.csv
//   POST   /sessions/{id}/ask             {"question": "..."}
//   GET    /sessions/{id}/history
//   POST   /sessions/{id}/visualize       {"question": "..."}
//   GET    /healthz
// ============================================================================

const (
	DefaultMaxUpload      = 32 << 20
	DefaultRequestTimeout = 2 * time.Minute
)

// Server routes requests to sessions.
type Server struct {
	sessions  *session.Manager
	logger    *zap.Logger
	maxUpload int64
	timeout   time.Duration
	router    chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithMaxUpload sets the request body limit for uploads.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithRequestTimeout bounds each request, AI calls included.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New builds the router.
func New(m *session.Manager, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sessions:  m,
		logger:    logger,
		maxUpload: DefaultMaxUpload,
		timeout:   DefaultRequestTimeout,
	}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", s.handleHealth)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", s.handleDelete)
			r.Post("/file", s.handleUpload(session.KindTabular))
			r.Post("/image", s.handleUpload(session.KindImage))
			r.Post("/url", s.handleURL)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/table", s.handleTable)
			r.Get("/schema", s.handleSchema)
			r.Get("/export.csv", s.handleExport)
			r.Post("/ask", s.handleAsk)
			r.Get("/history", s.handleHistory)
			r.Post("/visualize", s.handleVisualize)
		})
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs one line per request with zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}
