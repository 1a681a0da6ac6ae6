package match

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ScrapedProfile is one school performance profile as scraped.
// ExternalID is the only reliable cross-reference into the registry.
type ScrapedProfile struct {
	ExternalID     string          `json:"external_id"`
	RawDisplayName string          `json:"name"`
	Metrics        json.RawMessage `json:"metrics,omitempty"`
}

// Identity is the source identity a profile claims boundaries under.
func (p ScrapedProfile) Identity() string {
	if id := strings.TrimSpace(p.ExternalID); id != "" {
		return id
	}
	return "name:" + p.RawDisplayName
}

// RegistryRecord is a row of the authoritative school registry.
// StateCode is textually zero-padded, e.g. "000002155".
type RegistryRecord struct {
	LocalID       string `json:"local_id"`
	StateCode     string `json:"state_code"`
	ExternalID    string `json:"external_id"`
	CanonicalName string `json:"canonical_name"`
}

// BoundaryFeature is a catchment polygon converted from KML.
type BoundaryFeature struct {
	DisplayName     string          `json:"name"`
	DescriptionBlob string          `json:"description"`
	Geometry        json.RawMessage `json:"geometry"`
}

// Strategy classifies how a profile was linked to a boundary.
type Strategy string

const (
	CodeMatch Strategy = "code_match"
	NameMatch Strategy = "name_match"
	Conflict  Strategy = "conflict"
	Unmatched Strategy = "unmatched"
)

// Strategies lists every strategy in precedence order.
var Strategies = []Strategy{CodeMatch, NameMatch, Conflict, Unmatched}

// ParseStrategy converts a string such as "code_match" into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown match strategy %q", s)
}

// Confidence is derived from the strategy and name confirmation; it is never
// stored on its own.
type Confidence string

const (
	ConfidenceCodeAndName Confidence = "code_confirmed_by_name"
	ConfidenceCode        Confidence = "code"
	ConfidenceName        Confidence = "name"
	ConfidenceNone        Confidence = "none"
)

// Rank orders confidences; higher is stronger.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceCodeAndName:
		return 3
	case ConfidenceCode:
		return 2
	case ConfidenceName:
		return 1
	default:
		return 0
	}
}

// MissReason explains why a lookup step found nothing.
type MissReason string

const (
	MissNoRegistryEntry     MissReason = "no_registry_entry"
	MissInvalidStateCode    MissReason = "invalid_state_code"
	MissCodeNotInBoundaries MissReason = "code_not_in_boundaries"
	MissEmptyName           MissReason = "empty_name"
	MissNoNameVariant       MissReason = "no_name_variant"
	MissAmbiguousName       MissReason = "ambiguous_name"
)

// NameVariant records which name form of the name path hit.
type NameVariant string

const (
	VariantExact           NameVariant = "exact"
	VariantCaseInsensitive NameVariant = "case_insensitive"
	VariantCanonical       NameVariant = "canonical"
	VariantExpanded        NameVariant = "expanded"
)

// Outcome is the classified result of matching one profile. Exactly one
// outcome is produced per input profile.
type Outcome struct {
	Profile       ScrapedProfile  `json:"profile"`
	Strategy      Strategy        `json:"strategy"`
	BoundaryKey   string          `json:"boundary_key,omitempty"`
	Code          string          `json:"code,omitempty"`
	CodeCandidate string          `json:"code_candidate,omitempty"`
	NameCandidate string          `json:"name_candidate,omitempty"`
	NameVariant   NameVariant     `json:"name_variant,omitempty"`
	Confirmed     bool            `json:"confirmed_by_name,omitempty"`
	Registry      *RegistryRecord `json:"registry,omitempty"`
	Misses        []MissReason    `json:"misses,omitempty"`
}

// Confidence derives the confidence of the outcome.
func (o Outcome) Confidence() Confidence {
	return confidenceFor(o.Strategy, o.Confirmed)
}

// MergedSchoolEntity is the per-boundary record drawn on the map. Once built
// it belongs to the merged set and is not modified.
type MergedSchoolEntity struct {
	BoundaryKey     string          `json:"boundary_key"`
	Geometry        json.RawMessage `json:"geometry"`
	RegistryRef     *RegistryRecord `json:"registry"`
	ProfileRef      *ScrapedProfile `json:"profile"`
	MatchStrategy   Strategy        `json:"match_strategy"`
	ConfirmedByName bool            `json:"confirmed_by_name"`
}

// Confidence derives the entity's match confidence.
func (e MergedSchoolEntity) Confidence() Confidence {
	return confidenceFor(e.MatchStrategy, e.ConfirmedByName)
}

// MarshalJSON adds the derived confidence to the encoded entity.
func (e MergedSchoolEntity) MarshalJSON() ([]byte, error) {
	type plain MergedSchoolEntity
	return json.Marshal(struct {
		plain
		MatchConfidence Confidence `json:"match_confidence"`
	}{plain: plain(e), MatchConfidence: e.Confidence()})
}

func confidenceFor(s Strategy, confirmed bool) Confidence {
	switch s {
	case CodeMatch:
		if confirmed {
			return ConfidenceCodeAndName
		}
		return ConfidenceCode
	case NameMatch:
		return ConfidenceName
	default:
		return ConfidenceNone
	}
}

// MergedSet maps every boundary key to exactly one entity. Order keeps the
// boundary input order.
type MergedSet struct {
	Order    []string                       `json:"-"`
	Entities map[string]*MergedSchoolEntity `json:"entities"`
}

// Get returns the entity for a boundary key.
func (m *MergedSet) Get(key string) (*MergedSchoolEntity, bool) {
	e, ok := m.Entities[key]
	return e, ok
}

// Len returns the number of boundaries represented.
func (m *MergedSet) Len() int {
	return len(m.Order)
}
