package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/neyasbook/neyasbook/internal/chat"
	"github.com/neyasbook/neyasbook/internal/manuscript"
	"github.com/neyasbook/neyasbook/internal/sweep"
)

type sweepResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Result  sweep.Result `json:"result"`
}

func handleSweep(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid := projectID(r)
		res, err := deps.Sweeper.Sweep(r.Context(), pid)
		switch {
		case errors.Is(err, manuscript.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found_error", "project %q has no manifest", pid)
			return
		case errors.Is(err, manuscript.ErrInvalidID):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case err != nil:
			slog.Error("sweep failed", "request_id", RequestIDFrom(r.Context()), "project", pid, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "sweep failed: %v", err)
			return
		}
		writeJSON(w, sweepResponse{Success: true, Message: res.Message(), Result: res})
	}
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chat.TurnRequest
		if !decodeBody(w, r, &req) {
			return
		}
		resp, err := deps.Chat.Turn(r.Context(), projectID(r), req)
		if err != nil {
			upstreamError(w, err)
			return
		}
		writeJSON(w, resp)
	}
}

// handleChatStream runs a turn and relays its events as server-sent events.
// Once the stream has started, failures are reported in an error event
// since the status line has already been written.
func handleChatStream(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chat.TurnRequest
		if !decodeBody(w, r, &req) {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		err := deps.Chat.StreamTurn(r.Context(), projectID(r), req, func(ev chat.Event) error {
			return writeEvent(w, flusher, ev)
		})
		if err != nil {
			slog.Warn("chat stream ended with error", "request_id", RequestIDFrom(r.Context()), "project", projectID(r), "error", err)
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev chat.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Name, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func handleGetHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := deps.Chat.History(r.Context(), projectID(r))
		if err != nil {
			storeError(w, "chat history", err)
			return
		}
		writeJSON(w, t)
	}
}

func handleSaveHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t manuscript.ChatTranscript
		if !decodeBody(w, r, &t) {
			return
		}
		if err := deps.Chat.SaveHistory(r.Context(), projectID(r), &t); err != nil {
			storeError(w, "chat history", err)
			return
		}
		writeSuccess(w)
	}
}

func handleResetHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := deps.Chat.ResetContext(r.Context(), projectID(r))
		if err != nil {
			storeError(w, "chat history", err)
			return
		}
		writeJSON(w, t)
	}
}
