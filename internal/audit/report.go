package audit

import (
	"github.com/schoolmap/internal/identifier"
	"github.com/schoolmap/internal/match"
)

// UnmatchedEntry is a profile that reached no boundary.
type UnmatchedEntry struct {
	ExternalID string             `json:"external_id"`
	Name       string             `json:"name"`
	Code       string             `json:"code,omitempty"`
	Reasons    []match.MissReason `json:"reasons"`
}

// ConflictEntry is a profile whose code and name resolved to different
// boundaries. Neither boundary is merged; both are listed for review.
type ConflictEntry struct {
	ExternalID    string            `json:"external_id"`
	Name          string            `json:"name"`
	Code          string            `json:"code"`
	CodeCandidate string            `json:"code_candidate"`
	NameCandidate string            `json:"name_candidate"`
	NameVariant   match.NameVariant `json:"name_variant"`
}

// Report is the diagnostics summary of one run.
type Report struct {
	RunID                 string                        `json:"run_id,omitempty"`
	TotalProfiles         int                           `json:"total_profiles"`
	CountByStrategy       map[match.Strategy]int        `json:"count_by_strategy"`
	ConfirmedByName       int                           `json:"confirmed_by_name"`
	BoundariesTotal       int                           `json:"boundaries_total"`
	BoundariesMatched     int                           `json:"boundaries_matched"`
	Unmatched             []UnmatchedEntry              `json:"unmatched"`
	Conflicts             []ConflictEntry               `json:"conflicts"`
	DuplicateCodes        []identifier.DuplicateCode    `json:"duplicate_codes"`
	DuplicateClaims       []match.RejectedClaim         `json:"duplicate_claims"`
	ParseFailures         []identifier.ParseFailure     `json:"parse_failures"`
	InvalidStateCodes     []identifier.InvalidStateCode `json:"invalid_state_codes"`
	DuplicateDisplayNames []string                      `json:"duplicate_display_names"`
}

// SummaryInput is everything a run hands to Summarize.
type SummaryInput struct {
	Outcomes              []match.Outcome
	Index                 *identifier.Index
	Rejected              []match.RejectedClaim
	DuplicateDisplayNames []string
	Merged                *match.MergedSet
}

// Summarize aggregates a run. It is pure: the caller decides whether to
// print or persist the report.
func Summarize(in SummaryInput) Report {
	r := Report{
		TotalProfiles:         len(in.Outcomes),
		CountByStrategy:       make(map[match.Strategy]int, len(match.Strategies)),
		Unmatched:             []UnmatchedEntry{},
		Conflicts:             []ConflictEntry{},
		DuplicateCodes:        []identifier.DuplicateCode{},
		DuplicateClaims:       []match.RejectedClaim{},
		ParseFailures:         []identifier.ParseFailure{},
		InvalidStateCodes:     []identifier.InvalidStateCode{},
		DuplicateDisplayNames: []string{},
	}
	for _, s := range match.Strategies {
		r.CountByStrategy[s] = 0
	}

	for _, o := range in.Outcomes {
		r.CountByStrategy[o.Strategy]++
		switch o.Strategy {
		case match.CodeMatch:
			if o.Confirmed {
				r.ConfirmedByName++
			}
		case match.Conflict:
			r.Conflicts = append(r.Conflicts, ConflictEntry{
				ExternalID:    o.Profile.ExternalID,
				Name:          o.Profile.RawDisplayName,
				Code:          o.Code,
				CodeCandidate: o.CodeCandidate,
				NameCandidate: o.NameCandidate,
				NameVariant:   o.NameVariant,
			})
		case match.Unmatched:
			reasons := append([]match.MissReason{}, o.Misses...)
			r.Unmatched = append(r.Unmatched, UnmatchedEntry{
				ExternalID: o.Profile.ExternalID,
				Name:       o.Profile.RawDisplayName,
				Code:       o.Code,
				Reasons:    reasons,
			})
		}
	}

	if in.Index != nil {
		r.DuplicateCodes = append(r.DuplicateCodes, in.Index.DuplicateCodes...)
		r.ParseFailures = append(r.ParseFailures, in.Index.ParseFailures...)
		r.InvalidStateCodes = append(r.InvalidStateCodes, in.Index.InvalidStateCodes...)
	}
	r.DuplicateClaims = append(r.DuplicateClaims, in.Rejected...)
	r.DuplicateDisplayNames = append(r.DuplicateDisplayNames, in.DuplicateDisplayNames...)

	if in.Merged != nil {
		r.BoundariesTotal = in.Merged.Len()
		for _, key := range in.Merged.Order {
			if e := in.Merged.Entities[key]; e != nil && e.MatchStrategy != match.Unmatched {
				r.BoundariesMatched++
			}
		}
	}

	return r
}

// MatchRate is the share of profiles linked by code or name.
func (r Report) MatchRate() float64 {
	if r.TotalProfiles == 0 {
		return 0
	}
	linked := r.CountByStrategy[match.CodeMatch] + r.CountByStrategy[match.NameMatch]
	return float64(linked) / float64(r.TotalProfiles)
}

// NeedsReview reports whether the run produced anything a person should look
// at before the map is published.
func (r Report) NeedsReview() bool {
	return len(r.Conflicts) > 0 || len(r.DuplicateClaims) > 0 || len(r.DuplicateCodes) > 0 || len(r.DuplicateDisplayNames) > 0
}
