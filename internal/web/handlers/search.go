package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/schoolmap/internal/match"
	"github.com/schoolmap/internal/normalize"
)

// SearchHandler handles name search over merged entities.
type SearchHandler struct {
	Store      *RunStore
	Config     *Config
	Normalizer *normalize.Normalizer
}

// SearchResult is one search hit.
type SearchResult struct {
	BoundaryKey   string           `json:"boundary_key"`
	Canonical     string           `json:"canonical"`
	MatchStrategy match.Strategy   `json:"match_strategy"`
	Confidence    match.Confidence `json:"match_confidence"`
	ExternalID    string           `json:"external_id,omitempty"`
	ProfileName   string           `json:"profile_name,omitempty"`
}

// SearchNames finds boundaries whose canonical name, or linked profile's
// canonical name, contains the canonical form of ?q=. Exact canonical hits
// sort first.
func (h *SearchHandler) SearchNames(w http.ResponseWriter, r *http.Request) {
	result, ok := currentRun(h.Store, w)
	if !ok {
		return
	}

	n := h.Normalizer
	if n == nil {
		n = normalize.Default()
	}
	q := n.Canonicalize(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "search query required")
		return
	}
	limit := parseIntParam(r.URL.Query().Get("limit"), 50)

	type hit struct {
		SearchResult
		exact bool
	}
	var hits []hit
	for _, key := range result.Merged.Order {
		e := result.Merged.Entities[key]
		canonical := n.Canonicalize(key)

		matched := strings.Contains(canonical, q)
		res := SearchResult{
			BoundaryKey:   key,
			Canonical:     canonical,
			MatchStrategy: e.MatchStrategy,
			Confidence:    e.Confidence(),
		}
		if e.ProfileRef != nil {
			res.ExternalID = e.ProfileRef.ExternalID
			res.ProfileName = e.ProfileRef.RawDisplayName
			if !matched {
				matched = strings.Contains(n.Canonicalize(normalize.CandidateName(e.ProfileRef.RawDisplayName)), q)
			}
		}
		if matched {
			hits = append(hits, hit{SearchResult: res, exact: canonical == q})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].exact && !hits[j].exact
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]SearchResult, 0, len(hits))
	for _, x := range hits {
		out = append(out, x.SearchResult)
	}
	writeJSON(w, http.StatusOK, out)
}
