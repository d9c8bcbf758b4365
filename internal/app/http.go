package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"mapchat/api/internal/artifact"
	"mapchat/api/internal/comments"
	"mapchat/api/internal/export"
	"mapchat/api/internal/metrics"
	"mapchat/api/internal/search"
	"mapchat/api/internal/session"
	"mapchat/api/internal/tier"
)

// CommentService is the comment collaborator behind the comment routes.
type CommentService interface {
	List(ctx context.Context, featureID string) ([]comments.Comment, error)
	Create(ctx context.Context, userID string, in comments.CreateInput) (comments.Comment, tier.Tier, error)
	ListAllComments(ctx context.Context) ([]export.CommentRecord, error)
}

type CommentSearcher interface {
	Search(ctx context.Context, q search.Query) search.Response
}

// ArtifactStore archives rendered exports and hands out download links.
type ArtifactStore interface {
	Put(ctx context.Context, res *export.Result) (artifact.Stored, error)
}

// Deps wires the HTTP server to its collaborators. Artifacts, Metrics and
// Checks are optional.
type Deps struct {
	Sessions   *session.Manager
	Tiers      tier.Resolver
	Exports    *export.Service
	Comments   CommentService
	Search     CommentSearcher
	Artifacts  ArtifactStore
	Metrics    *metrics.Metrics
	Checks     map[string]func(context.Context) error
	JWTSecret  []byte
	CORSOrigin string
}

type HTTPServer struct {
	deps Deps
}

func NewHTTPServer(deps Deps) *HTTPServer {
	if deps.Tiers == nil {
		deps.Tiers = tier.Static(tier.Free)
	}
	if deps.CORSOrigin == "" {
		deps.CORSOrigin = "*"
	}
	return &HTTPServer{deps: deps}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{s.deps.CORSOrigin},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/api/sessions", s.handleCreateSession)
		r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteSession)
			r.Get("/features", s.handleFeatures)
			r.Post("/uploads", s.handleUpload)
			r.Post("/layers", s.handleCreateLayer)
			r.Put("/layers/{layerID}", s.handleEditLayer)
			r.Delete("/layers/{layerID}", s.handleDeleteLayer)
			r.Post("/layers/{layerID}/click", s.handleClickLayer)
			r.Get("/selection", s.handleSelection)
			r.Post("/exports/{format}", s.handleExport)
		})

		r.Get("/api/features/{featureID}/comments", s.handleListComments)
		r.Post("/api/features/{featureID}/comments", s.handleCreateComment)
		r.Get("/api/comments/export", s.handleExportComments)
		r.Get("/api/comments/search", s.handleSearchComments)
	})

	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// requestLogger logs one line per request and records request metrics
// against the matched route pattern.
func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		requestID := middleware.GetReqID(r.Context())
		ww.Header().Set("X-Request-ID", requestID)
		ww.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(started)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveRequest(r.Method, route, status, elapsed)
		}

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Str("ip", r.RemoteAddr).
			Dur("duration", elapsed).
			Msg("Request processed")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeDomainError maps err and writes it. Unmapped errors are logged.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func writeFile(w http.ResponseWriter, res *export.Result) {
	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}
