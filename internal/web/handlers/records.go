package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/schoolmap/internal/match"
)

// EntitiesHandler serves merged school entities.
type EntitiesHandler struct {
	Store  *RunStore
	Config *Config
}

// EntityListResponse is a page of merged entities in boundary order.
type EntityListResponse struct {
	Total    int                         `json:"total"`
	Offset   int                         `json:"offset"`
	Limit    int                         `json:"limit"`
	Entities []*match.MergedSchoolEntity `json:"entities"`
}

// ListEntities returns merged entities, optionally filtered by strategy or
// minimum confidence.
func (h *EntitiesHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	result, ok := currentRun(h.Store, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	strategy, err := strategyParam(query.Get("strategy"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minRank := 0
	if c := query.Get("min_confidence"); c != "" {
		minRank = match.Confidence(c).Rank()
	}
	offset := parseIntParam(query.Get("offset"), 0)
	limit := parseIntParam(query.Get("limit"), 500)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 5000 {
		limit = 500
	}

	var filtered []*match.MergedSchoolEntity
	for _, key := range result.Merged.Order {
		e := result.Merged.Entities[key]
		if strategy != "" && e.MatchStrategy != strategy {
			continue
		}
		if e.Confidence().Rank() < minRank {
			continue
		}
		filtered = append(filtered, e)
	}

	resp := EntityListResponse{Total: len(filtered), Offset: offset, Limit: limit, Entities: []*match.MergedSchoolEntity{}}
	if offset < len(filtered) {
		end := offset + limit
		if end > len(filtered) {
			end = len(filtered)
		}
		resp.Entities = filtered[offset:end]
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetEntity returns one merged entity by boundary display name.
func (h *EntitiesHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	result, ok := currentRun(h.Store, w)
	if !ok {
		return
	}

	key := mux.Vars(r)["key"]
	e, found := result.Merged.Get(key)
	if !found {
		writeError(w, http.StatusNotFound, "boundary not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GetOutcome returns the classified outcome for one profile.
func (h *EntitiesHandler) GetOutcome(w http.ResponseWriter, r *http.Request) {
	result, ok := currentRun(h.Store, w)
	if !ok {
		return
	}

	id := strings.TrimSpace(mux.Vars(r)["id"])
	for _, o := range result.Outcomes {
		if o.Profile.ExternalID == id {
			writeJSON(w, http.StatusOK, o)
			return
		}
	}
	writeError(w, http.StatusNotFound, "profile not found")
}

func strategyParam(s string) (match.Strategy, error) {
	if s == "" {
		return "", nil
	}
	return match.ParseStrategy(s)
}
