package engine

import (
	"encoding/json"

	"github.com/schoolmap/internal/match"
)

// MergeProjector builds merged entities from boundaries and accepted
// outcomes.
type MergeProjector struct{}

// Project builds the entity for one boundary. A nil outcome, or one that is
// not a code or name match, yields an Unmatched entity with no references so
// the boundary still renders on the map.
func (MergeProjector) Project(boundary match.BoundaryFeature, outcome *match.Outcome) *match.MergedSchoolEntity {
	entity := &match.MergedSchoolEntity{
		BoundaryKey:   boundary.DisplayName,
		Geometry:      cloneRaw(boundary.Geometry),
		MatchStrategy: match.Unmatched,
	}
	if outcome == nil {
		return entity
	}
	if outcome.Strategy != match.CodeMatch && outcome.Strategy != match.NameMatch {
		return entity
	}

	profile := outcome.Profile
	profile.Metrics = cloneRaw(profile.Metrics)
	entity.ProfileRef = &profile
	if outcome.Registry != nil {
		rec := *outcome.Registry
		entity.RegistryRef = &rec
	}
	entity.MatchStrategy = outcome.Strategy
	entity.ConfirmedByName = outcome.Confirmed
	return entity
}

// cloneRaw copies raw JSON so the entity owns it. Empty payloads become nil,
// which encodes as null.
func cloneRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
