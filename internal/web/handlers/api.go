package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/schoolmap/internal/engine"
	"github.com/schoolmap/internal/match"
)

// Config represents the web server configuration (simplified)
type Config struct {
	Features struct {
		ExportEnabled  bool `json:"export_enabled"`
		RefreshEnabled bool `json:"refresh_enabled"`
	} `json:"features"`
}

// APIHandler handles general API endpoints
type APIHandler struct {
	Store  *RunStore
	Config *Config
}

// StatsResponse represents overall statistics
type StatsResponse struct {
	RunID             string                 `json:"run_id"`
	TotalProfiles     int                    `json:"total_profiles"`
	CountByStrategy   map[match.Strategy]int `json:"count_by_strategy"`
	ConfirmedByName   int                    `json:"confirmed_by_name"`
	BoundariesTotal   int                    `json:"boundaries_total"`
	BoundariesMatched int                    `json:"boundaries_matched"`
	MatchRate         float64                `json:"match_rate"`
	NeedsReview       bool                   `json:"needs_review"`
}

// Health reports liveness and whether a run is loaded.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	_, err := h.Store.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"run_loaded": err == nil,
	})
}

// GetStats returns headline counts of the current run.
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	result, ok := h.current(w)
	if !ok {
		return
	}
	rep := result.Report
	writeJSON(w, http.StatusOK, StatsResponse{
		RunID:             result.RunID,
		TotalProfiles:     rep.TotalProfiles,
		CountByStrategy:   rep.CountByStrategy,
		ConfirmedByName:   rep.ConfirmedByName,
		BoundariesTotal:   rep.BoundariesTotal,
		BoundariesMatched: rep.BoundariesMatched,
		MatchRate:         rep.MatchRate() * 100,
		NeedsReview:       rep.NeedsReview(),
	})
}

// GetReport returns the full diagnostics report.
func (h *APIHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	result, ok := h.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result.Report)
}

// GetConflicts returns profiles whose code and name disagreed.
func (h *APIHandler) GetConflicts(w http.ResponseWriter, r *http.Request) {
	result, ok := h.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result.Report.Conflicts)
}

// GetUnmatched returns profiles that matched nothing, with reasons.
func (h *APIHandler) GetUnmatched(w http.ResponseWriter, r *http.Request) {
	result, ok := h.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result.Report.Unmatched)
}

// GetDuplicates returns duplicate boundary codes and rejected claims.
func (h *APIHandler) GetDuplicates(w http.ResponseWriter, r *http.Request) {
	result, ok := h.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"duplicate_codes":         result.Report.DuplicateCodes,
		"duplicate_claims":        result.Report.DuplicateClaims,
		"duplicate_display_names": result.Report.DuplicateDisplayNames,
	})
}

func (h *APIHandler) current(w http.ResponseWriter) (*engine.RunResult, bool) {
	return currentRun(h.Store, w)
}

func currentRun(store *RunStore, w http.ResponseWriter) (*engine.RunResult, bool) {
	result, err := store.Current()
	if err != nil {
		if errors.Is(err, ErrNoRun) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load run")
		}
		return nil, false
	}
	return result, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseIntParam parses a string parameter as int with default value
func parseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return defaultVal
}
