package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/neyasbook/neyasbook/internal/manuscript"
	"github.com/neyasbook/neyasbook/internal/prose"
)

func handleGetManifest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.Repo.LoadManifest(r.Context(), projectID(r))
		if err != nil {
			storeError(w, "manifest", err)
			return
		}
		writeJSON(w, m)
	}
}

func handleSaveManifest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m manuscript.Manifest
		if !decodeBody(w, r, &m) {
			return
		}
		if err := deps.Repo.SaveManifest(r.Context(), projectID(r), &m); err != nil {
			storeError(w, "manifest", err)
			return
		}
		writeSuccess(w)
	}
}

// handleGetContent returns the stored chapter bytes untouched so clients
// get back exactly what they saved.
func handleGetContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := deps.Repo.LoadChapterRaw(r.Context(), projectID(r), chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, "chapter", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func handleSaveContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var doc manuscript.Doc
		if !decodeBody(w, r, &doc) {
			return
		}
		if err := deps.Repo.SaveChapter(r.Context(), projectID(r), chi.URLParam(r, "id"), &doc); err != nil {
			storeError(w, "chapter", err)
			return
		}
		writeSuccess(w)
	}
}

func handleDeleteContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Repo.DeleteChapter(r.Context(), projectID(r), chi.URLParam(r, "id")); err != nil {
			storeError(w, "chapter", err)
			return
		}
		writeSuccess(w)
	}
}

type suggestionResponse struct {
	Success bool            `json:"success"`
	Kind    string          `json:"kind"`
	Content *manuscript.Doc `json:"content"`
	Diff    []prose.Line    `json:"diff"`
	// Changed is false when the suggestion left the chapter text as it was.
	Changed bool `json:"changed"`
}

// handleApplySuggestion applies a suggested edit to a stored chapter. With
// ?preview=true the result is returned without saving.
func handleApplySuggestion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sug manuscript.Suggestion
		if !decodeBody(w, r, &sug) {
			return
		}
		preview, _ := strconv.ParseBool(r.URL.Query().Get("preview"))

		pid, chapterID := projectID(r), chi.URLParam(r, "id")
		doc, err := deps.Repo.LoadChapter(r.Context(), pid, chapterID)
		if err != nil {
			storeError(w, "chapter", err)
			return
		}

		updated, err := prose.ApplySuggestion(doc, sug)
		if errors.Is(err, prose.ErrPatchNotFound) || errors.Is(err, prose.ErrEmptySuggestion) {
			httpError(w, http.StatusUnprocessableEntity, "patch_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "applying suggestion: %v", err)
			return
		}

		if !preview {
			if err := deps.Repo.SaveChapter(r.Context(), pid, chapterID, updated); err != nil {
				storeError(w, "chapter", err)
				return
			}
		}

		diff := prose.Diff(prose.ToText(doc), prose.ToText(updated))
		writeJSON(w, suggestionResponse{
			Success: true,
			Kind:    sug.Kind().String(),
			Content: updated,
			Diff:    diff,
			Changed: prose.Changed(diff),
		})
	}
}

func handleListEntities(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, err := deps.Repo.LoadIndex(r.Context(), projectID(r))
		if err != nil {
			storeError(w, "entity index", err)
			return
		}
		if idx == nil {
			idx = manuscript.EntityIndex{}
		}
		writeJSON(w, idx)
	}
}

func handleGetEntity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Repo.LoadProfile(r.Context(), projectID(r), chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, "entity", err)
			return
		}
		writeJSON(w, p)
	}
}

// handleSaveEntity stores a hand-edited profile. The path id wins over any
// id in the body, and the index entry is refreshed to the new name/type.
func handleSaveEntity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p manuscript.EntityProfile
		if !decodeBody(w, r, &p) {
			return
		}
		p.ID = chi.URLParam(r, "id")
		if err := deps.Repo.SaveProfileAndIndex(r.Context(), projectID(r), &p); err != nil {
			storeError(w, "entity", err)
			return
		}
		writeSuccess(w)
	}
}
