package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sjawhar/ghost-wispr-live/internal/api"
	"github.com/sjawhar/ghost-wispr-live/internal/history"
	"github.com/sjawhar/ghost-wispr-live/internal/session"
)

const maxHistoryLimit = 200

type connectionState struct {
	State     string `json:"state"`
	Attempt   int    `json:"attempt"`
	LastError string `json:"lastError,omitempty"`
}

func (s *Server) connection() connectionState {
	if s.deps.Conn == nil {
		return connectionState{State: "closed"}
	}
	out := connectionState{
		State:   s.deps.Conn.State().String(),
		Attempt: s.deps.Conn.Attempt(),
	}
	if err := s.deps.Conn.LastError(); err != nil {
		out.LastError = err.Error()
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"connection": s.connection(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	if s.deps.View == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "session view not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":    s.deps.View.Snapshot(),
		"connection": s.connection(),
	})
}

func (s *Server) handleLevels(w http.ResponseWriter, _ *http.Request) {
	if s.deps.View == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "session view not available")
		return
	}
	snap := s.deps.View.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"level":  snap.AudioLevel,
		"levels": snap.Levels,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	if s.deps.View == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "session view not available")
		return
	}
	id, err := s.deps.View.ActiveSession()
	if errors.Is(err, session.ErrNoActiveSession) {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": id})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Controls == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "session controls not available")
		return
	}
	res, err := s.deps.Controls.StartSession(r.Context())
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// handleStop forwards the stop request; the outcome arrives on the live feed.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.deps.Controls == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "session controls not available")
		return
	}
	if err := s.deps.Controls.StopSession(r.Context()); err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "history not available")
		return
	}

	q := r.URL.Query()
	query := history.Query{
		Search: strings.TrimSpace(q.Get("q")),
		Sort:   q.Get("sort"),
	}
	switch query.Sort {
	case "", history.SortNewest, history.SortOldest:
	default:
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid sort %q", query.Sort))
		return
	}

	var err error
	if query.Limit, err = intParam(q.Get("limit"), history.DefaultLimit); err != nil || query.Limit > maxHistoryLimit {
		writeJSONError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if query.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	entries, err := s.deps.History.Query(r.Context(), query)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("query history: %v", err))
		return
	}
	total, err := s.deps.History.Count(r.Context(), query.Search)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("count history: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"total": total,
	})
}

func intParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return n, nil
}

func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		writeJSONError(w, apiErr.Status, apiErr.Message)
		return
	}
	s.log.Warn().Err(err).Msg("upstream request failed")
	writeJSONError(w, http.StatusBadGateway, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
