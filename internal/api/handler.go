// Package api exposes the Neyasbook backend over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/neyasbook/neyasbook/internal/blob"
	"github.com/neyasbook/neyasbook/internal/chat"
	"github.com/neyasbook/neyasbook/internal/manuscript"
	"github.com/neyasbook/neyasbook/internal/sweep"
)

// maxRequestBodySize caps request bodies. Chapter documents are the
// largest payloads.
const maxRequestBodySize = 8 << 20

const healthTimeout = 2 * time.Second

// Sweeper runs an entity sweep over a project.
type Sweeper interface {
	Sweep(ctx context.Context, projectID string) (sweep.Result, error)
}

// Deps holds the collaborators the HTTP handlers need.
type Deps struct {
	Repo    *manuscript.Repository
	Sweeper Sweeper
	Chat    *chat.Service

	// CORSOrigin is sent as Access-Control-Allow-Origin. Empty means "*".
	CORSOrigin string
	// Token, when set, is required as a bearer token on every route
	// except /health.
	Token string
}

// NewHandler returns the application router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(CORS(deps.CORSOrigin))

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Get("/projects", handleListProjects(deps))
		r.Post("/projects", handleCreateProject(deps))
		r.Delete("/projects/{id}", handleDeleteProject(deps))

		r.Group(func(r chi.Router) {
			r.Use(requireProject)

			r.Get("/manifest", handleGetManifest(deps))
			r.Post("/manifest", handleSaveManifest(deps))

			r.Get("/content/{id}", handleGetContent(deps))
			r.Post("/content/{id}", handleSaveContent(deps))
			r.Delete("/content/{id}", handleDeleteContent(deps))
			r.Post("/content/{id}/suggestions", handleApplySuggestion(deps))

			r.Get("/entities", handleListEntities(deps))
			r.Get("/entities/{id}", handleGetEntity(deps))
			r.Post("/entities/{id}", handleSaveEntity(deps))

			r.Post("/sweep", handleSweep(deps))

			r.Post("/chat", handleChat(deps))
			r.Post("/chat/stream", handleChatStream(deps))
			r.Get("/chat-history", handleGetHistory(deps))
			r.Post("/chat-history", handleSaveHistory(deps))
			r.Post("/chat-history/reset", handleResetHistory(deps))
		})
	})

	return r
}

// handleHealth reports 503 when a remote storage backend stops answering.
func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Repo != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := blob.Ping(ctx, deps.Repo.Store()); err != nil {
				slog.Warn("storage health check failed", "error", err)
				httpError(w, http.StatusServiceUnavailable, "api_error", "storage unavailable: %v", err)
				return
			}
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// decodeBody reads a JSON request body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON: %v", err)
		return false
	}
	return true
}
