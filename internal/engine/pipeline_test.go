package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolmap/internal/identifier"
	"github.com/schoolmap/internal/match"
	"github.com/schoolmap/internal/normalize"
)

func blob(code string) string {
	if code == "" {
		return `<table><tr><td>Sector</td><td>State</td></tr></table>`
	}
	return `<table><tr><td>Centre_code</td><td>` + code + `</td></tr><tr><td>Sector</td><td>State</td></tr></table>`
}

func polygon(n int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"type":"Polygon","coordinates":[[[153.0%d,-27.2],[153.1,-27.2],[153.1,-27.3],[153.0%d,-27.2]]]}`, n, n))
}

func fixture() Inputs {
	return Inputs{
		Boundaries: []match.BoundaryFeature{
			{DisplayName: "North Lakes SHS", DescriptionBlob: blob("2324"), Geometry: polygon(1)},
			{DisplayName: "Ashgrove SS", DescriptionBlob: blob("0155"), Geometry: polygon(2)},
			{DisplayName: "Kelvin Grove SC", DescriptionBlob: blob(""), Geometry: polygon(3)},
			{DisplayName: "Empty Park SS", DescriptionBlob: blob(""), Geometry: polygon(4)},
		},
		Registry: []match.RegistryRecord{
			{LocalID: "1", StateCode: "000002324", ExternalID: "47574", CanonicalName: "North Lakes State College"},
			{LocalID: "2", StateCode: "155", ExternalID: "46001", CanonicalName: "Ashgrove State School"},
			{LocalID: "3", StateCode: "00002324", ExternalID: "50000", CanonicalName: "Mislabelled Row"},
			{LocalID: "4", StateCode: "abc", ExternalID: "33333", CanonicalName: "Broken Code School"},
		},
		Profiles: []match.ScrapedProfile{
			{ExternalID: "47574", RawDisplayName: "North Lakes State College, Australia", Metrics: json.RawMessage(`{"naplan":512}`)},
			{ExternalID: "99999", RawDisplayName: "North Lakes SHS"},
			{ExternalID: "50000", RawDisplayName: "Ashgrove SS, Brisbane"},
			{ExternalID: "46001", RawDisplayName: "Ashgrove State School, Ashgrove"},
			{ExternalID: "11111", RawDisplayName: "kelvin grove state college"},
			{ExternalID: "22222", RawDisplayName: "Nowhere High"},
			{ExternalID: "33333", RawDisplayName: "Broken Code School"},
		},
	}
}

func outcomeFor(t *testing.T, res *RunResult, externalID string) match.Outcome {
	t.Helper()
	for _, o := range res.Outcomes {
		if o.Profile.ExternalID == externalID {
			return o
		}
	}
	t.Fatalf("no outcome for %s", externalID)
	return match.Outcome{}
}

func TestRunScenarios(t *testing.T) {
	res, err := Run(fixture(), Options{Workers: 4})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 7, "exactly one outcome per profile")

	// Code path only: name form "north lakes sc" does not match "north lakes shs".
	o := outcomeFor(t, res, "47574")
	assert.Equal(t, match.CodeMatch, o.Strategy)
	assert.Equal(t, "North Lakes SHS", o.BoundaryKey)
	assert.False(t, o.Confirmed)
	assert.Equal(t, "2324", o.Code)

	northLakes, ok := res.Merged.Get("North Lakes SHS")
	require.True(t, ok)
	assert.Equal(t, match.CodeMatch, northLakes.MatchStrategy)
	assert.Equal(t, "47574", northLakes.ProfileRef.ExternalID)
	assert.Equal(t, "North Lakes State College", northLakes.RegistryRef.CanonicalName)
	assert.JSONEq(t, `{"naplan":512}`, string(northLakes.ProfileRef.Metrics))

	// No registry entry, exact display name match; the boundary is already held.
	o = outcomeFor(t, res, "99999")
	assert.Equal(t, match.NameMatch, o.Strategy)
	assert.Equal(t, match.VariantExact, o.NameVariant)
	assert.Contains(t, o.Misses, match.MissNoRegistryEntry)
	require.Len(t, res.Report.DuplicateClaims, 1)
	assert.Equal(t, match.RejectedClaim{
		BoundaryKey: "North Lakes SHS",
		Holder:      "47574",
		Rejected:    "99999",
		RejectedAs:  "North Lakes SHS",
		Strategy:    "name_match",
	}, res.Report.DuplicateClaims[0])

	// Code says North Lakes, name says Ashgrove.
	o = outcomeFor(t, res, "50000")
	assert.Equal(t, match.Conflict, o.Strategy)
	assert.Empty(t, o.BoundaryKey)
	assert.Equal(t, "North Lakes SHS", o.CodeCandidate)
	assert.Equal(t, "Ashgrove SS", o.NameCandidate)
	require.Len(t, res.Report.Conflicts, 1)
	assert.Equal(t, "North Lakes SHS", res.Report.Conflicts[0].CodeCandidate)
	assert.Equal(t, "Ashgrove SS", res.Report.Conflicts[0].NameCandidate)

	// Code and name agree: CodeMatch confirmed by name, never NameMatch.
	o = outcomeFor(t, res, "46001")
	assert.Equal(t, match.CodeMatch, o.Strategy)
	assert.True(t, o.Confirmed)
	assert.Equal(t, match.VariantCanonical, o.NameVariant)
	ashgrove, _ := res.Merged.Get("Ashgrove SS")
	assert.Equal(t, "46001", ashgrove.ProfileRef.ExternalID)
	assert.Equal(t, match.ConfidenceCodeAndName, ashgrove.Confidence())

	// Canonical name lookup.
	o = outcomeFor(t, res, "11111")
	assert.Equal(t, match.NameMatch, o.Strategy)
	assert.Equal(t, "Kelvin Grove SC", o.BoundaryKey)
	assert.Equal(t, match.VariantCanonical, o.NameVariant)
	kelvin, _ := res.Merged.Get("Kelvin Grove SC")
	assert.Equal(t, match.NameMatch, kelvin.MatchStrategy)
	assert.Nil(t, kelvin.RegistryRef)

	o = outcomeFor(t, res, "22222")
	assert.Equal(t, match.Unmatched, o.Strategy)
	assert.Equal(t, []match.MissReason{match.MissNoRegistryEntry, match.MissNoNameVariant}, o.Misses)

	o = outcomeFor(t, res, "33333")
	assert.Equal(t, match.Unmatched, o.Strategy)
	assert.Contains(t, o.Misses, match.MissInvalidStateCode)
	require.NotNil(t, o.Registry)

	// No code and no name match: present, unmatched, no references.
	empty, ok := res.Merged.Get("Empty Park SS")
	require.True(t, ok)
	assert.Equal(t, match.Unmatched, empty.MatchStrategy)
	assert.Nil(t, empty.RegistryRef)
	assert.Nil(t, empty.ProfileRef)
	assert.JSONEq(t, string(polygon(4)), string(empty.Geometry))

	assert.Equal(t, map[match.Strategy]int{
		match.CodeMatch: 2,
		match.NameMatch: 2,
		match.Conflict:  1,
		match.Unmatched: 2,
	}, res.Report.CountByStrategy)
	assert.Equal(t, 1, res.Report.ConfirmedByName)
	assert.Equal(t, 4, res.Report.BoundariesTotal)
	assert.Equal(t, 3, res.Report.BoundariesMatched)
	assert.Len(t, res.Report.ParseFailures, 2)
	assert.Len(t, res.Report.InvalidStateCodes, 1)
	assert.Equal(t, res.RunID, res.Report.RunID)
}

func TestRunConflictLeavesBothBoundariesUnclaimed(t *testing.T) {
	in := fixture()
	in.Profiles = []match.ScrapedProfile{{ExternalID: "50000", RawDisplayName: "Ashgrove SS, Brisbane"}}

	res, err := Run(in, Options{})
	require.NoError(t, err)

	for _, key := range []string{"North Lakes SHS", "Ashgrove SS"} {
		e, ok := res.Merged.Get(key)
		require.True(t, ok)
		assert.Equal(t, match.Unmatched, e.MatchStrategy, key)
		assert.Nil(t, e.ProfileRef, key)
		assert.Nil(t, e.RegistryRef, key)
	}
	assert.Equal(t, 1, res.Report.CountByStrategy[match.Conflict])
	assert.Zero(t, res.Report.BoundariesMatched)
}

func TestRunCompleteness(t *testing.T) {
	in := fixture()
	in.Profiles = nil

	res, err := Run(in, Options{})
	require.NoError(t, err)
	require.Equal(t, len(in.Boundaries), res.Merged.Len())
	require.Len(t, res.Merged.Entities, len(in.Boundaries))
	for i, b := range in.Boundaries {
		assert.Equal(t, b.DisplayName, res.Merged.Order[i])
		e, ok := res.Merged.Get(b.DisplayName)
		require.True(t, ok)
		assert.Equal(t, match.Unmatched, e.MatchStrategy)
	}
}

func TestRunCodeMatchImpliesEqualCodes(t *testing.T) {
	in := fixture()
	res, err := Run(in, Options{})
	require.NoError(t, err)

	registry := make(map[string]match.RegistryRecord)
	for _, r := range in.Registry {
		registry[r.ExternalID] = r
	}
	boundaries := make(map[string]match.BoundaryFeature)
	for _, b := range in.Boundaries {
		boundaries[b.DisplayName] = b
	}

	for _, o := range res.Outcomes {
		if o.Strategy != match.CodeMatch {
			continue
		}
		want, err := identifier.CanonicalizeStateCode(registry[o.Profile.ExternalID].StateCode)
		require.NoError(t, err)
		got, err := identifier.ExtractCode(boundaries[o.BoundaryKey].DescriptionBlob)
		require.NoError(t, err)
		assert.Equal(t, want, got, o.Profile.ExternalID)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	first, err := Run(fixture(), Options{Workers: 1})
	require.NoError(t, err)
	second, err := Run(fixture(), Options{Workers: 8})
	require.NoError(t, err)

	a, err := MarshalMerged(first.Merged)
	require.NoError(t, err)
	b, err := MarshalMerged(second.Merged)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	assert.Equal(t, first.Report.CountByStrategy, second.Report.CountByStrategy)
	assert.Equal(t, first.Report.Unmatched, second.Report.Unmatched)
	assert.Equal(t, first.Report.Conflicts, second.Report.Conflicts)
	assert.Equal(t, first.Outcomes, second.Outcomes)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunDuplicateDisplayNames(t *testing.T) {
	in := fixture()
	in.Boundaries = append(in.Boundaries, match.BoundaryFeature{DisplayName: "Ashgrove SS", DescriptionBlob: blob("9999")})

	res, err := Run(in, Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Merged.Len())
	assert.Equal(t, []string{"Ashgrove SS"}, res.Report.DuplicateDisplayNames)
	assert.Empty(t, res.Report.DuplicateCodes, "dropped duplicates never enter the code index")
}

func TestRunFatalInputErrors(t *testing.T) {
	in := fixture()
	in.Registry = append(in.Registry, match.RegistryRecord{ExternalID: "47574", StateCode: "1"})
	_, err := Run(in, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, identifier.ErrDuplicateExternalID))

	in = fixture()
	in.Boundaries = append(in.Boundaries, match.BoundaryFeature{DisplayName: "  "})
	_, err = Run(in, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestRunWithCustomRules(t *testing.T) {
	n, err := normalize.NewNormalizer([]normalize.Rule{{Long: "state school", Short: "ss"}})
	require.NoError(t, err)

	in := fixture()
	in.Profiles = []match.ScrapedProfile{{ExternalID: "11111", RawDisplayName: "Kelvin Grove State College"}}

	res, err := Run(in, Options{Normalizer: n})
	require.NoError(t, err)
	assert.Equal(t, match.Unmatched, res.Outcomes[0].Strategy, "without the state college rule the names differ")
}

func TestMergeProjector(t *testing.T) {
	var p MergeProjector
	b := match.BoundaryFeature{DisplayName: "North Lakes SHS", Geometry: polygon(1)}

	e := p.Project(b, nil)
	assert.Equal(t, match.Unmatched, e.MatchStrategy)
	assert.Nil(t, e.ProfileRef)

	conflict := &match.Outcome{Strategy: match.Conflict, Profile: match.ScrapedProfile{ExternalID: "1"}}
	e = p.Project(b, conflict)
	assert.Equal(t, match.Unmatched, e.MatchStrategy)
	assert.Nil(t, e.ProfileRef)

	rec := match.RegistryRecord{ExternalID: "1", StateCode: "2324"}
	linked := &match.Outcome{Strategy: match.CodeMatch, Confirmed: true, Registry: &rec, Profile: match.ScrapedProfile{ExternalID: "1"}}
	e = p.Project(b, linked)
	assert.Equal(t, match.CodeMatch, e.MatchStrategy)
	assert.True(t, e.ConfirmedByName)
	require.NotNil(t, e.RegistryRef)

	// The entity owns its references.
	rec.StateCode = "changed"
	assert.Equal(t, "2324", e.RegistryRef.StateCode)
	b.Geometry[0] = ' '
	assert.Equal(t, byte('{'), e.Geometry[0])

	e = p.Project(match.BoundaryFeature{DisplayName: "No Geometry"}, nil)
	assert.Nil(t, e.Geometry)
}

func TestExporter(t *testing.T) {
	res, err := Run(fixture(), Options{})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	written, err := NewExporter(dir, true).Export(res)
	require.NoError(t, err)
	require.Len(t, written, 4)
	for _, path := range written {
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, MergedGeoJSON))
	require.NoError(t, err)
	var fc FeatureCollection
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 4)
	assert.Equal(t, "North Lakes SHS", fc.Features[0].Properties["name"])
	assert.Equal(t, "code_match", fc.Features[0].Properties["match_strategy"])
	assert.Equal(t, "47574", fc.Features[0].Properties["external_id"])

	data, err = os.ReadFile(filepath.Join(dir, MergedJSONFile))
	require.NoError(t, err)
	expected, err := MarshalMerged(res.Merged)
	require.NoError(t, err)
	assert.Equal(t, string(expected)+"\n", string(data))
}

func TestBuildFeatureCollectionFilter(t *testing.T) {
	res, err := Run(fixture(), Options{})
	require.NoError(t, err)

	fc := BuildFeatureCollection(res.Merged, match.Unmatched)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "Empty Park SS", fc.Features[0].Properties["name"])

	fc = BuildFeatureCollection(res.Merged, match.Conflict)
	assert.Empty(t, fc.Features)
}

func TestNameIndexLookup(t *testing.T) {
	boundaries := []match.BoundaryFeature{
		{DisplayName: "Ashgrove SS"},
		{DisplayName: "Ashgrove State School"},
		{DisplayName: "Ipswich SDE"},
		{DisplayName: "Toowong State SDE"},
	}
	ni := BuildNameIndex(boundaries, normalize.Default())

	tests := []struct {
		candidate string
		wantKey   string
		variant   match.NameVariant
		miss      match.MissReason
	}{
		{"Ashgrove SS", "Ashgrove SS", match.VariantExact, ""},
		{"ASHGROVE SS", "Ashgrove SS", match.VariantCaseInsensitive, ""},
		{"Ashgrove  State  School", "", match.VariantCanonical, match.MissAmbiguousName},
		{"Ipswich School of Distance Education", "Ipswich SDE", match.VariantCanonical, ""},
		{"Toowong SS of Distance Education", "Toowong State SDE", match.VariantExpanded, ""},
		{"Elsewhere SS", "", "", match.MissNoNameVariant},
		{"   ", "", "", match.MissEmptyName},
	}

	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			key, variant, miss := ni.Lookup(tt.candidate)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.variant, variant)
			assert.Equal(t, tt.miss, miss)
		})
	}
}
