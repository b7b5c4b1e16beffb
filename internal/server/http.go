package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/auth"
)

// HTTPServer serves the JSON API. Routes are registered on a grpc-gateway mux
// so errors render as google.rpc.Status bodies with matching HTTP codes.
type HTTPServer struct {
	server   *http.Server
	router   *chi.Mux
	gwMux    *runtime.ServeMux
	logger   *slog.Logger
	api      API
	checks   []ReadinessCheck
	validate *validator.Validate
}

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HTTPServerConfig holds configuration for the HTTP server
type HTTPServerConfig struct {
	Port           int
	Logger         *slog.Logger
	AllowedOrigins []string // CORS allowed origins
	// JWT enables bearer authentication on the API routes when set.
	JWT *auth.JWTManager
	// Metrics serves /metrics when set.
	Metrics         http.Handler
	ReadinessChecks []ReadinessCheck
}

// NewHTTPServer creates the HTTP server and registers every route.
func NewHTTPServer(cfg HTTPServerConfig, api API) (*HTTPServer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	gwMux := runtime.NewServeMux(
		runtime.WithMarshalerOption(runtime.MIMEWildcard, &runtime.JSONPb{
			MarshalOptions: protojson.MarshalOptions{
				EmitUnpopulated: true,
			},
			UnmarshalOptions: protojson.UnmarshalOptions{
				DiscardUnknown: true,
			},
		}),
	)

	s := &HTTPServer{
		router:   router,
		gwMux:    gwMux,
		logger:   logger,
		api:      api,
		checks:   cfg.ReadinessChecks,
		validate: validator.New(),
	}

	router.Get("/healthz", healthCheckHandler())
	router.Get("/readyz", s.readinessCheckHandler())
	if cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	router.Group(func(r chi.Router) {
		if cfg.JWT != nil {
			r.Use(cfg.JWT.Middleware(s.authError))
		}
		r.Mount("/", gwMux)
	})

	if err := s.registerRoutes(); err != nil {
		return nil, err
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", "address", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *HTTPServer) authError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, status.Error(codes.Unauthenticated, err.Error()))
}

// writeError renders err through the gateway's error handler.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	_, outbound := runtime.MarshalerForRequest(s.gwMux, r)
	runtime.HTTPError(r.Context(), s.gwMux, outbound, w, r, err)
}

// writeJSON renders v with the gateway's outbound marshaler.
func (s *HTTPServer) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	_, outbound := runtime.MarshalerForRequest(s.gwMux, r)
	body, err := outbound.Marshal(v)
	if err != nil {
		s.writeError(w, r, status.Errorf(codes.Internal, "failed to encode response: %v", err))
		return
	}
	w.Header().Set("Content-Type", outbound.ContentType(v))
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		s.logger.Warn("failed to write response", "path", r.URL.Path, "error", err)
	}
}

// decode reads and validates the request body into v.
func (s *HTTPServer) decode(r *http.Request, v any) error {
	inbound, _ := runtime.MarshalerForRequest(s.gwMux, r)
	if err := inbound.NewDecoder(r.Body).Decode(v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request body: %v", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// requestLoggingMiddleware logs HTTP requests
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 {
				// No configured origins: allow all (development)
				allowed = true
				origin = "*"
			} else {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// healthCheckHandler returns a handler for the /healthz endpoint
func healthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// readinessCheckHandler probes every dependency; any failure makes the service unready.
func (s *HTTPServer) readinessCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := readinessResponse{Status: "ready", Checks: make(map[string]string, len(s.checks))}
		code := http.StatusOK
		for _, c := range s.checks {
			if err := c.Check(ctx); err != nil {
				resp.Checks[c.Name] = err.Error()
				resp.Status = "not_ready"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}
		s.writeJSON(w, r, code, resp)
	}
}
