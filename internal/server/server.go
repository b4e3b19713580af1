// Package server exposes the usage-gated generation endpoints.
//
// Every feature request passes the same gates in order: provider
// configured, session verified, body validated, usage metered. Only a
// request that clears all four reaches the generation provider, so a
// malformed or unauthenticated call is never charged.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"leviosa/internal/auth"
	"leviosa/internal/generation"
	"leviosa/internal/logging"
	"leviosa/internal/usage"
)

// MaxBodyBytes caps feature request bodies.
const MaxBodyBytes = 1 << 20

// Meter is the usage backend the gates consult.
type Meter interface {
	CheckAndIncrement(ctx context.Context, userID string, feature usage.Feature) (usage.Result, error)
	Counters(ctx context.Context, userID string) ([]usage.Counter, error)
}

// Generator produces names and covers.
type Generator interface {
	Configured() bool
	OptimizeName(ctx context.Context, name, category string) (string, error)
	OptimizeCover(ctx context.Context, imageURL, name string) (*generation.CoverImage, error)
}

// Server holds the gated routes.
type Server struct {
	router   chi.Router
	verifier auth.Verifier
	meter    Meter
	gen      Generator
}

// New builds the router.
func New(verifier auth.Verifier, meter Meter, gen Generator) *Server {
	s := &Server{verifier: verifier, meter: meter, gen: gen}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(auth.Middleware(verifier)) // soft: handlers decide on 401

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/optimize-name", s.handleOptimizeName)
		r.Post("/optimize-cover", s.handleOptimizeCover)
		r.Get("/usage", s.handleUsage)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Server("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Server("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

type optimizeNameRequest struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

type optimizeCoverRequest struct {
	ImageURL string `json:"imageUrl"`
	Name     string `json:"name,omitempty"`
}

func (s *Server) handleOptimizeName(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.admit(w, r)
	if !ok {
		return
	}
	var req optimizeNameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Product name is required")
		return
	}
	if !s.charge(w, r, userID, usage.FeatureNameOptimization) {
		return
	}

	name, err := s.gen.OptimizeName(r.Context(), req.Name, req.Category)
	if err != nil {
		writeGenerationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"optimizedName": name})
}

func (s *Server) handleOptimizeCover(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.admit(w, r)
	if !ok {
		return
	}
	var req optimizeCoverRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		writeError(w, http.StatusBadRequest, "Image URL is required")
		return
	}
	if !s.charge(w, r, userID, usage.FeatureCoverGeneration) {
		return
	}

	cover, err := s.gen.OptimizeCover(r.Context(), req.ImageURL, req.Name)
	if err != nil {
		writeGenerationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"image":    base64.StdEncoding.EncodeToString(cover.Data),
		"mimeType": cover.MIMEType,
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	counters, err := s.meter.Counters(r.Context(), claims.UserID())
	if err != nil {
		logging.ServerError("usage lookup for %s failed: %v", claims.UserID(), err)
		writeError(w, http.StatusInternalServerError, "Failed to load usage")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"usage": counters})
}

// admit runs the configuration and session gates.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.gen == nil || !s.gen.Configured() {
		writeError(w, http.StatusInternalServerError, generation.ErrNotConfigured.Error())
		return "", false
	}
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return "", false
	}
	return claims.UserID(), true
}

// charge consumes one unit of feature or writes the refusal.
func (s *Server) charge(w http.ResponseWriter, r *http.Request, userID string, feature usage.Feature) bool {
	res, err := s.meter.CheckAndIncrement(r.Context(), userID, feature)
	if err != nil {
		var lim *usage.LimitError
		if errors.As(err, &lim) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": "Usage limit reached",
				"used":  lim.Used,
				"limit": lim.Limit,
			})
			return false
		}
		logging.ServerError("usage check for %s/%s failed: %v", userID, feature, err)
		writeError(w, http.StatusInternalServerError, "Failed to check usage")
		return false
	}
	logging.WithRequestID(logging.CategoryUsage, middleware.GetReqID(r.Context())).
		WithField("user", userID).
		Debug("%s %d/%d", feature, res.Used, res.Limit)
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		upstream *generation.UpstreamError
		noImage  *generation.NoImageError
		fetch    *generation.ImageFetchError
	)
	switch {
	case errors.Is(err, generation.ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, generation.ErrEmptyResult), errors.Is(err, generation.ErrNoResponse):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.As(err, &fetch):
		writeError(w, http.StatusBadRequest, fetch.Error())
	case errors.As(err, &noImage):
		writeError(w, http.StatusUnprocessableEntity, noImage.Error())
	case errors.As(err, &upstream):
		writeError(w, http.StatusBadGateway, upstream.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logging.ServerWarn("%s %s aborted: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		logging.ServerError("%s %s failed: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "Gemini API error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.WithRequestID(logging.CategoryServer, middleware.GetReqID(r.Context())).
			WithField("status", ww.Status()).
			Info("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
