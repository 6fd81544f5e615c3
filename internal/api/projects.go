package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/neyasbook/neyasbook/internal/manuscript"
)

func handleListProjects(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := deps.Repo.ListProjects(r.Context())
		if err != nil {
			storeError(w, "projects", err)
			return
		}
		if projects == nil {
			projects = []manuscript.Project{}
		}
		writeJSON(w, projects)
	}
}

func handleCreateProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p manuscript.Project
		if !decodeBody(w, r, &p) {
			return
		}
		created, err := deps.Repo.CreateProject(r.Context(), p)
		if errors.Is(err, manuscript.ErrExists) {
			httpError(w, http.StatusConflict, "invalid_request_error", "project %q already exists", p.ID)
			return
		}
		if err != nil {
			storeError(w, "project", err)
			return
		}
		slog.Info("project created", "project", created.ID)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, created)
	}
}

func handleDeleteProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Repo.DeleteProject(r.Context(), id); err != nil {
			storeError(w, "project", err)
			return
		}
		slog.Info("project deleted", "project", id)
		writeSuccess(w)
	}
}
