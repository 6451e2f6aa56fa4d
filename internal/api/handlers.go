package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"vector-void/internal/archive"
	"vector-void/internal/game"
)

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *routerHandlers) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.rooms.ListRooms())
}

func (h *routerHandlers) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	code := h.rooms.CreateRoom()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"code": code})
}

func (h *routerHandlers) handleGetStages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, game.Stages())
}

func (h *routerHandlers) handleGetCharacters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, game.AllCharacters())
}

func (h *routerHandlers) handleListMatches(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, "archive disabled", http.StatusServiceUnavailable)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, 500)
	}
	matches, err := h.archive.ListMatches(r.Context(), limit)
	if err != nil {
		log.WithError(err).Error("list matches")
		writeError(w, "could not list matches", http.StatusInternalServerError)
		return
	}
	writeJSON(w, matches)
}

func (h *routerHandlers) loadMatch(w http.ResponseWriter, r *http.Request) (archive.Match, bool) {
	if h.archive == nil {
		writeError(w, "archive disabled", http.StatusServiceUnavailable)
		return archive.Match{}, false
	}
	id := chi.URLParam(r, "id")
	m, err := h.archive.GetMatch(r.Context(), id)
	if errors.Is(err, archive.ErrNotFound) {
		writeError(w, "match not found", http.StatusNotFound)
		return archive.Match{}, false
	}
	if err != nil {
		log.WithError(err).WithField("match", id).Error("get match")
		writeError(w, "could not load match", http.StatusInternalServerError)
		return archive.Match{}, false
	}
	return m, true
}

func (h *routerHandlers) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	if m, ok := h.loadMatch(w, r); ok {
		writeJSON(w, m)
	}
}

// replayResponse is the outcome of re-running an archived journal.
type replayResponse struct {
	MatchID  string        `json:"matchId"`
	Winner   string        `json:"winner"`
	Reason   string        `json:"reason"`
	Matches  bool          `json:"matchesRecord"` // replayed winner equals the archived one
	Snapshot game.Snapshot `json:"snapshot"`
}

func (h *routerHandlers) handleReplayMatch(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMatch(w, r)
	if !ok {
		return
	}
	cfg, err := m.Config()
	if err != nil {
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	e, err := game.Replay(cfg, m.Actions)
	if err != nil {
		log.WithError(err).WithField("match", m.ID).Warn("archived match no longer replays")
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, replayResponse{
		MatchID:  m.ID,
		Winner:   e.Winner().String(),
		Reason:   e.EndReason(),
		Matches:  e.Winner().String() == m.Winner && e.EndReason() == m.Reason,
		Snapshot: e.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
