package handlers

import (
	"net/http"

	"github.com/schoolmap/internal/engine"
)

// MapsHandler handles map-related endpoints
type MapsHandler struct {
	Store  *RunStore
	Config *Config
}

// GetGeoJSON returns the merged boundaries as a FeatureCollection for the map.
// ?strategy= limits the layer to one match strategy.
func (h *MapsHandler) GetGeoJSON(w http.ResponseWriter, r *http.Request) {
	result, ok := currentRun(h.Store, w)
	if !ok {
		return
	}

	strategy, err := strategyParam(r.URL.Query().Get("strategy"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fc := engine.BuildFeatureCollection(result.Merged, strategy)
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, fc)
}
