package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/perm-crawler/internal/config"
	"github.com/JakeFAU/perm-crawler/internal/hash/sha256"
	"github.com/JakeFAU/perm-crawler/internal/metrics"
	"github.com/JakeFAU/perm-crawler/internal/perm"
	"github.com/JakeFAU/perm-crawler/internal/report"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
	maxBodyBytes     = 64 << 10
)

// CookieSaver persists a harvested cookie string.
type CookieSaver interface {
	Save(ctx context.Context, content string) (perm.Cookie, error)
}

// CaseLister pages through stored cases.
type CaseLister interface {
	CountCases(ctx context.Context, filter perm.CaseFilter) (int, error)
	ListCases(ctx context.Context, filter perm.CaseFilter, limit, offset int) ([]perm.Case, error)
}

// Observer summarizes the latest posting day.
type Observer interface {
	Observe(ctx context.Context) (report.Observation, error)
}

// Server wires HTTP handlers to the cookie store, case repository and reporter.
type Server struct {
	router   chi.Router
	cookies  CookieSaver
	cases    CaseLister
	observer Observer
	auth     config.AuthConfig
	passport *sha256.Hasher
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	cookies CookieSaver,
	cases CaseLister,
	observer Observer,
	auth config.AuthConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cookies:  cookies,
		cases:    cases,
		observer: observer,
		auth:     auth,
		passport: sha256.New(auth.APIKey, nil),
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/cookies", s.saveCookie)
		r.Group(func(r chi.Router) {
			r.Use(s.apiKeyMiddleware)
			r.Get("/cases", s.listCases)
			r.Get("/observation", s.observation)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type cookieRequest struct {
	Content string `json:"content"`
	// InternalKey is how the browser extension authenticates.
	InternalKey string `json:"internalKey"`
}

func (s *Server) saveCookie(w http.ResponseWriter, r *http.Request) {
	var req cookieRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = req.InternalKey
	}
	if !s.authorized(key) {
		s.logger.Warn("cookie drop rejected", zap.String("remote", r.RemoteAddr))
		s.writeError(w, http.StatusForbidden, "unauthorized")
		return
	}
	if req.Content == "" {
		s.writeError(w, http.StatusBadRequest, "content required")
		return
	}
	c, err := s.cookies.Save(r.Context(), req.Content)
	if err != nil {
		s.logger.Error("save cookie failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to save cookie")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"id": c.ID, "created_at": c.CreatedAt})
}

func (s *Server) authorized(key string) bool {
	if !s.auth.Enabled {
		return true
	}
	return key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.auth.APIKey)) == 1
}

// apiKeyMiddleware accepts the API key itself or a rolling Passport derived from it.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authorized(r.Header.Get("X-API-Key")) || s.passport.Valid(r.Header.Get("Passport")) {
			next.ServeHTTP(w, r)
			return
		}
		s.writeError(w, http.StatusForbidden, "unauthorized")
	})
}

type caseListResponse struct {
	Count int         `json:"count"`
	Rows  []perm.Case `json:"rows"`
}

func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 || limit > maxListLimit {
		s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.writeError(w, http.StatusBadRequest, "offset must be >= 0")
		return
	}
	count, err := s.cases.CountCases(r.Context(), perm.CaseFilter{})
	if err != nil {
		s.logger.Error("count cases failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to count cases")
		return
	}
	rows, err := s.cases.ListCases(r.Context(), perm.CaseFilter{}, limit, offset)
	if err != nil {
		s.logger.Error("list cases failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list cases")
		return
	}
	if rows == nil {
		rows = []perm.Case{}
	}
	s.writeJSON(w, http.StatusOK, caseListResponse{Count: count, Rows: rows})
}

func (s *Server) observation(w http.ResponseWriter, r *http.Request) {
	obs, err := s.observer.Observe(r.Context())
	if err != nil {
		s.logger.Error("observe failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to compute observation")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"observation": obs, "message": obs.Message()})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return v, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
