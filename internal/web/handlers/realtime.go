package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RealtimeHandler reports run status and triggers refreshes.
type RealtimeHandler struct {
	Store  *RunStore
	Config *Config
}

// MatchingStatus reports the current run and whether a refresh is running.
func (h *RealtimeHandler) MatchingStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.Status())
}

// TriggerRefresh reloads the inputs and reruns the linkage synchronously.
func (h *RealtimeHandler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if !h.Config.Features.RefreshEnabled || !h.Store.CanRefresh() {
		http.Error(w, "Refresh disabled", http.StatusForbidden)
		return
	}

	result, err := h.Store.Refresh(r.Context())
	if err != nil {
		if errors.Is(err, ErrRefreshInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		zap.L().Error("refresh failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"run_id":    result.RunID,
		"timestamp": time.Now(),
	})
}
