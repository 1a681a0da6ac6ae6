package import_pkg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/schoolmap/internal/match"
)

// rawProfile accepts external ids scraped as either strings or numbers.
type rawProfile struct {
	ExternalID     json.RawMessage `json:"external_id"`
	RawDisplayName string          `json:"name"`
	Metrics        json.RawMessage `json:"metrics"`
}

// DecodeProfiles reads a JSON array of scraped profiles.
func DecodeProfiles(r io.Reader) ([]match.ScrapedProfile, error) {
	var raw []rawProfile
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}

	profiles := make([]match.ScrapedProfile, 0, len(raw))
	for i, p := range raw {
		id, err := scalarString(p.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("profile %d: external_id: %w", i, err)
		}
		metrics := p.Metrics
		if bytes.Equal(bytes.TrimSpace(metrics), []byte("null")) {
			metrics = nil
		}
		profiles = append(profiles, match.ScrapedProfile{
			ExternalID:     id,
			RawDisplayName: p.RawDisplayName,
			Metrics:        metrics,
		})
	}
	return profiles, nil
}

// LoadProfiles reads the scraped profiles file.
func LoadProfiles(path string) ([]match.ScrapedProfile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	profiles, err := DecodeProfiles(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	zap.L().Info("profiles loaded", zap.String("path", path), zap.Int("profiles", len(profiles)))
	return profiles, nil
}

type geoJSONFile struct {
	Type     string `json:"type"`
	Features []struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Geometry   json.RawMessage            `json:"geometry"`
	} `json:"features"`
}

// DecodeBoundaries reads a GeoJSON FeatureCollection converted from KML.
// Each feature contributes properties.name, properties.description and its
// geometry. A description may be a plain string or a {"value": ...} object.
func DecodeBoundaries(r io.Reader) ([]match.BoundaryFeature, error) {
	var fc geoJSONFile
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode boundaries: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected a FeatureCollection, got %q", fc.Type)
	}

	boundaries := make([]match.BoundaryFeature, 0, len(fc.Features))
	for i, f := range fc.Features {
		name, err := scalarString(f.Properties["name"])
		if err != nil {
			return nil, fmt.Errorf("feature %d: name: %w", i, err)
		}
		description, err := descriptionText(f.Properties["description"])
		if err != nil {
			return nil, fmt.Errorf("feature %d: description: %w", i, err)
		}
		geometry := f.Geometry
		if bytes.Equal(bytes.TrimSpace(geometry), []byte("null")) {
			geometry = nil
		}
		boundaries = append(boundaries, match.BoundaryFeature{
			DisplayName:     strings.TrimSpace(name),
			DescriptionBlob: description,
			Geometry:        geometry,
		})
	}
	return boundaries, nil
}

// LoadBoundaries reads the boundary GeoJSON file.
func LoadBoundaries(path string) ([]match.BoundaryFeature, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	boundaries, err := DecodeBoundaries(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	zap.L().Info("boundaries loaded", zap.String("path", path), zap.Int("boundaries", len(boundaries)))
	return boundaries, nil
}

// scalarString renders a JSON string or number as text. Missing and null
// values are empty.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", fmt.Errorf("expected a string or number, got %s", raw)
	}
}

func descriptionText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var wrapped struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return "", err
		}
		return wrapped.Value, nil
	}
	var s string
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}
