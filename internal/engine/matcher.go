package engine

import (
	"strings"

	"go.uber.org/zap"

	"github.com/schoolmap/internal/debug"
	"github.com/schoolmap/internal/identifier"
	"github.com/schoolmap/internal/match"
	"github.com/schoolmap/internal/normalize"
)

// MatchEngine links scraped profiles to boundaries. The code path and the
// name path are always both attempted so that disagreements surface.
type MatchEngine struct {
	index *identifier.Index
	names *NameIndex
	debug bool
}

// NewMatchEngine creates a match engine over prebuilt indices.
func NewMatchEngine(index *identifier.Index, names *NameIndex) *MatchEngine {
	return &MatchEngine{index: index, names: names}
}

// WithDebug enables per-profile debug output.
func (me *MatchEngine) WithDebug(enabled bool) *MatchEngine {
	me.debug = enabled
	return me
}

// Match classifies one profile. It never fails: every profile yields exactly
// one outcome.
func (me *MatchEngine) Match(profile match.ScrapedProfile) match.Outcome {
	debug.DebugHeader(me.debug)
	defer debug.DebugFooter(me.debug)

	out := match.Outcome{Profile: profile}

	codeKey, codeMiss := me.codePath(profile, &out)
	debug.DebugOutput(me.debug, "Code path for %q: boundary=%q miss=%s", profile.ExternalID, codeKey, codeMiss)

	nameKey, variant, nameMiss := me.names.Lookup(normalize.CandidateName(profile.RawDisplayName))
	debug.DebugOutput(me.debug, "Name path for %q: boundary=%q variant=%s miss=%s", profile.RawDisplayName, nameKey, variant, nameMiss)

	out.CodeCandidate = codeKey
	out.NameCandidate = nameKey
	if nameKey != "" {
		out.NameVariant = variant
	}
	if codeMiss != "" {
		out.Misses = append(out.Misses, codeMiss)
	}
	if nameMiss != "" {
		out.Misses = append(out.Misses, nameMiss)
	}

	switch {
	case codeKey != "" && nameKey != "" && codeKey != nameKey:
		out.Strategy = match.Conflict
		zap.L().Warn("code and name disagree",
			zap.String("external_id", profile.ExternalID),
			zap.String("name", profile.RawDisplayName),
			zap.String("code_candidate", codeKey),
			zap.String("name_candidate", nameKey))
	case codeKey != "":
		out.Strategy = match.CodeMatch
		out.BoundaryKey = codeKey
		out.Confirmed = nameKey == codeKey
	case nameKey != "":
		out.Strategy = match.NameMatch
		out.BoundaryKey = nameKey
	default:
		out.Strategy = match.Unmatched
	}

	return out
}

// codePath follows externalId -> registry state code -> boundary.
func (me *MatchEngine) codePath(profile match.ScrapedProfile, out *match.Outcome) (string, match.MissReason) {
	id := strings.TrimSpace(profile.ExternalID)
	if id == "" {
		return "", match.MissNoRegistryEntry
	}

	rec, ok := me.index.Registry(id)
	if !ok {
		return "", match.MissNoRegistryEntry
	}
	out.Registry = &rec

	code, ok := me.index.CodeForExternalID(id)
	if !ok {
		return "", match.MissInvalidStateCode
	}
	out.Code = string(code)

	boundary, ok := me.index.BoundaryForCode(code)
	if !ok {
		return "", match.MissCodeNotInBoundaries
	}
	return boundary.DisplayName, ""
}
