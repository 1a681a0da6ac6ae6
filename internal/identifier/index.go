package identifier

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/schoolmap/internal/match"
)

// ErrDuplicateExternalID means two registry rows share an external id. The
// registry is the join key into the profiles, so this aborts the run.
var ErrDuplicateExternalID = errors.New("duplicate registry external id")

// Options configures index construction.
type Options struct {
	CodeLabel string
	Workers   int // parallel code extraction; <= 0 means 1
}

// DuplicateCode records a boundary whose code was already taken by an
// earlier boundary. The earlier one is kept.
type DuplicateCode struct {
	Code      Code   `json:"code"`
	Kept      string `json:"kept"`
	Duplicate string `json:"duplicate"`
}

// ParseFailure records a boundary that is reachable only by name.
type ParseFailure struct {
	DisplayName string `json:"display_name"`
	Reason      string `json:"reason"`
}

// InvalidStateCode records a registry row whose state code is not numeric.
type InvalidStateCode struct {
	ExternalID string `json:"external_id"`
	LocalID    string `json:"local_id"`
	StateCode  string `json:"state_code"`
}

// Index holds the per-run lookup tables. It is built once and read-only
// afterwards.
type Index struct {
	CodeToBoundary       map[Code]match.BoundaryFeature
	BoundaryCodes        map[string]Code
	ExternalIDToCode     map[string]Code
	RegistryByExternalID map[string]match.RegistryRecord

	DuplicateCodes    []DuplicateCode
	ParseFailures     []ParseFailure
	InvalidStateCodes []InvalidStateCode
	UnkeyedRegistry   int
}

// ValidateRegistry checks that every non-empty external id is unique.
func ValidateRegistry(records []match.RegistryRecord) error {
	seen := make(map[string]int, len(records))
	var dups []string
	for _, r := range records {
		id := strings.TrimSpace(r.ExternalID)
		if id == "" {
			continue
		}
		seen[id]++
		if seen[id] == 2 {
			dups = append(dups, id)
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return fmt.Errorf("%w: %s", ErrDuplicateExternalID, strings.Join(dups, ", "))
	}
	return nil
}

type extraction struct {
	code Code
	err  error
}

// BuildIndex extracts boundary codes and joins the registry to them.
// Extraction is pure and runs in parallel; results are folded in input order
// so the first boundary with a code always wins.
func BuildIndex(boundaries []match.BoundaryFeature, registry []match.RegistryRecord, opts Options) (*Index, error) {
	if err := ValidateRegistry(registry); err != nil {
		return nil, err
	}

	extractor := NewExtractor(opts.CodeLabel)
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	results := make([]extraction, len(boundaries))
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range boundaries {
		i := i
		g.Go(func() error {
			code, err := extractor.Extract(boundaries[i].DescriptionBlob)
			results[i] = extraction{code: code, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := &Index{
		CodeToBoundary:       make(map[Code]match.BoundaryFeature, len(boundaries)),
		BoundaryCodes:        make(map[string]Code, len(boundaries)),
		ExternalIDToCode:     make(map[string]Code, len(registry)),
		RegistryByExternalID: make(map[string]match.RegistryRecord, len(registry)),
	}

	for i, b := range boundaries {
		res := results[i]
		if res.err != nil {
			idx.ParseFailures = append(idx.ParseFailures, ParseFailure{DisplayName: b.DisplayName, Reason: res.err.Error()})
			continue
		}
		if kept, ok := idx.CodeToBoundary[res.code]; ok {
			idx.DuplicateCodes = append(idx.DuplicateCodes, DuplicateCode{Code: res.code, Kept: kept.DisplayName, Duplicate: b.DisplayName})
			zap.L().Warn("duplicate boundary code",
				zap.String("code", string(res.code)),
				zap.String("kept", kept.DisplayName),
				zap.String("duplicate", b.DisplayName))
			continue
		}
		idx.CodeToBoundary[res.code] = b
		idx.BoundaryCodes[b.DisplayName] = res.code
	}

	for _, r := range registry {
		id := strings.TrimSpace(r.ExternalID)
		if id == "" {
			idx.UnkeyedRegistry++
			continue
		}
		idx.RegistryByExternalID[id] = r

		code, err := CanonicalizeStateCode(r.StateCode)
		if err != nil {
			idx.InvalidStateCodes = append(idx.InvalidStateCodes, InvalidStateCode{
				ExternalID: id,
				LocalID:    r.LocalID,
				StateCode:  r.StateCode,
			})
			continue
		}
		idx.ExternalIDToCode[id] = code
	}

	zap.L().Info("identifier index built",
		zap.Int("boundaries", len(boundaries)),
		zap.Int("coded_boundaries", len(idx.CodeToBoundary)),
		zap.Int("parse_failures", len(idx.ParseFailures)),
		zap.Int("duplicate_codes", len(idx.DuplicateCodes)),
		zap.Int("registry", len(registry)),
		zap.Int("invalid_state_codes", len(idx.InvalidStateCodes)))

	return idx, nil
}

// CodeForExternalID returns the canonical state code registered for id.
func (idx *Index) CodeForExternalID(id string) (Code, bool) {
	c, ok := idx.ExternalIDToCode[strings.TrimSpace(id)]
	return c, ok
}

// BoundaryForCode returns the boundary that owns code.
func (idx *Index) BoundaryForCode(code Code) (match.BoundaryFeature, bool) {
	b, ok := idx.CodeToBoundary[code]
	return b, ok
}

// Registry returns the registry record for id.
func (idx *Index) Registry(id string) (match.RegistryRecord, bool) {
	r, ok := idx.RegistryByExternalID[strings.TrimSpace(id)]
	return r, ok
}

// IsInvalidStateCode reports whether id has a registry row whose state code
// could not be parsed.
func (idx *Index) IsInvalidStateCode(id string) bool {
	id = strings.TrimSpace(id)
	_, registered := idx.RegistryByExternalID[id]
	_, coded := idx.ExternalIDToCode[id]
	return registered && !coded
}
