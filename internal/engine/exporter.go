package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/schoolmap/internal/audit"
	"github.com/schoolmap/internal/match"
)

// Output file names written by Exporter.
const (
	MergedJSONFile    = "merged.json"
	MergedGeoJSON     = "merged.geojson"
	ReportJSONFile    = "report.json"
	ReviewWorkbook    = "review.xlsx"
	featureCollection = "FeatureCollection"
)

// FeatureCollection is a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one GeoJSON feature of the merged map layer.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// BuildFeatureCollection renders the merged set in boundary input order. A
// non-empty strategy filter keeps only entities with that strategy.
func BuildFeatureCollection(set *match.MergedSet, strategy match.Strategy) FeatureCollection {
	fc := FeatureCollection{Type: featureCollection, Features: []Feature{}}
	for _, key := range set.Order {
		e := set.Entities[key]
		if e == nil || (strategy != "" && e.MatchStrategy != strategy) {
			continue
		}

		props := map[string]interface{}{
			"name":             e.BoundaryKey,
			"match_strategy":   e.MatchStrategy,
			"match_confidence": e.Confidence(),
		}
		if e.ProfileRef != nil {
			props["external_id"] = e.ProfileRef.ExternalID
			props["profile_name"] = e.ProfileRef.RawDisplayName
			if len(e.ProfileRef.Metrics) > 0 {
				props["metrics"] = e.ProfileRef.Metrics
			}
		}
		if e.RegistryRef != nil {
			props["local_id"] = e.RegistryRef.LocalID
			props["state_code"] = e.RegistryRef.StateCode
			props["canonical_name"] = e.RegistryRef.CanonicalName
		}

		geometry := e.Geometry
		if len(geometry) == 0 {
			geometry = json.RawMessage("null")
		}
		fc.Features = append(fc.Features, Feature{Type: "Feature", Geometry: geometry, Properties: props})
	}
	return fc
}

// Exporter writes run artefacts to an output directory.
type Exporter struct {
	dir           string
	writeWorkbook bool
}

// NewExporter creates an exporter that writes into dir.
func NewExporter(dir string, writeWorkbook bool) *Exporter {
	return &Exporter{dir: dir, writeWorkbook: writeWorkbook}
}

// Export writes the merged mapping, the map layer, the report and optionally
// the review workbook. It returns the paths written.
func (e *Exporter) Export(result *RunResult) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written []string
	files := []struct {
		name  string
		value interface{}
	}{
		{MergedJSONFile, result.Merged},
		{MergedGeoJSON, BuildFeatureCollection(result.Merged, "")},
		{ReportJSONFile, result.Report},
	}
	for _, f := range files {
		path := filepath.Join(e.dir, f.name)
		if err := writeJSON(path, f.value); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if e.writeWorkbook {
		path := filepath.Join(e.dir, ReviewWorkbook)
		if err := audit.WriteWorkbook(path, result.Report); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	zap.L().Info("run exported", zap.String("dir", e.dir), zap.Strings("files", written))
	return written, nil
}

// MarshalMerged encodes the merged mapping. Map keys are sorted by
// encoding/json, so identical runs encode byte for byte the same.
func MarshalMerged(set *match.MergedSet) ([]byte, error) {
	return json.MarshalIndent(set, "", "  ")
}

func writeJSON(path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
