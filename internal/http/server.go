// Package http exposes the expense service as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"tally/internal/log"
	"tally/internal/services"
	"tally/internal/session"
)

const requestIDHeader = "X-Request-ID"

type Server struct {
	http.Server

	svc         *services.ExpenseService
	auth        *session.Authenticator
	logger      *log.Logger
	rateLimiter *rateLimiter

	started       time.Time
	totalRequests int64
	shutdownOnce  sync.Once
}

type Option func(*serverOptions)

type serverOptions struct {
	logger    *log.Logger
	rateLimit int
}

// WithLogger sets the base request logger.
func WithLogger(l *log.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

// WithRateLimit sets the allowed write requests per client per minute.
func WithRateLimit(perMinute int) Option {
	return func(o *serverOptions) { o.rateLimit = perMinute }
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc *services.ExpenseService, auth *session.Authenticator, opts ...Option) *Server {
	o := serverOptions{rateLimit: DefaultRateLimit}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Wrap(nil, log.ComponentHTTP)
	}
	if auth == nil {
		auth = session.NewAuthenticator(nil)
	}

	s := &Server{
		svc:         svc,
		auth:        auth,
		logger:      o.logger,
		rateLimiter: newRateLimiter(o.rateLimit),
		started:     time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/auth/signup", s.handleSignup)

	mux.HandleFunc("/api/expenses", s.handleExpenses)
	mux.HandleFunc("/api/budgets", s.handleBudgets)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/export", s.handleExport)
	mux.HandleFunc("/api/categories", s.handleCategories)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.withMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// withMiddleware wraps h so that, outermost first, the request gets a
// logger, a request id, access logging, security headers and the write
// rate limit.
func (s *Server) withMiddleware(h http.Handler) http.Handler {
	h = s.limitWrites(h)
	h = securityHeaders(h)
	h = s.trace(h)
	h = log.RequestIDMiddleware(ensureRequestID)(h)
	h = log.Middleware(s.logger)(h)
	return h
}

// ensureRequestID keeps a caller-supplied X-Request-ID and assigns one otherwise.
func ensureRequestID(r *http.Request) string {
	id := r.Header.Get(requestIDHeader)
	if id == "" || len(id) > 64 {
		id = generateRequestID()
		r.Header.Set(requestIDHeader, id)
	}
	return id
}

func (s *Server) trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		atomic.AddInt64(&s.totalRequests, 1)

		w.Header().Set(requestIDHeader, r.Header.Get(requestIDHeader))
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogHTTPEnd(r.Context(), r, rw.statusCode, time.Since(start).Milliseconds(), extractClientIP(r))
	})
}

func (s *Server) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			clientIP := extractClientIP(r)
			if !s.rateLimiter.allow(clientIP) {
				log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
					"Rate limit exceeded",
					log.FieldClientIP, clientIP,
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path)
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded, try again later"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
