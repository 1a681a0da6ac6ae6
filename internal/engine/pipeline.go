package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/schoolmap/internal/audit"
	"github.com/schoolmap/internal/debug"
	"github.com/schoolmap/internal/identifier"
	"github.com/schoolmap/internal/match"
	"github.com/schoolmap/internal/normalize"
)

// ErrInvalidInput marks an input collection that cannot be matched at all.
// It is returned before any profile is processed.
var ErrInvalidInput = errors.New("invalid input")

// Inputs are the three read-only collections supplied by the collaborators.
type Inputs struct {
	Profiles   []match.ScrapedProfile
	Registry   []match.RegistryRecord
	Boundaries []match.BoundaryFeature
}

// Options configures a run.
type Options struct {
	Normalizer *normalize.Normalizer // nil means normalize.Default()
	CodeLabel  string
	Workers    int
	RunLabel   string
	Debug      bool
}

// RunResult is everything a run produces. Each run owns its indices and
// claim set; nothing is shared between runs.
type RunResult struct {
	RunID       string
	RunLabel    string
	StartedAt   time.Time
	CompletedAt time.Time
	Merged      *match.MergedSet
	Outcomes    []match.Outcome
	Report      audit.Report
}

// Run links profiles to boundaries and projects the merged set. Profiles are
// processed in input order so diagnostics are reproducible.
func Run(in Inputs, opts Options) (*RunResult, error) {
	done := debug.DebugTiming(opts.Debug, "linkage run")
	defer done()

	started := time.Now()
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = normalize.Default()
	}

	boundaries, duplicateNames, err := uniqueBoundaries(in.Boundaries)
	if err != nil {
		return nil, err
	}

	index, err := identifier.BuildIndex(boundaries, in.Registry, identifier.Options{
		CodeLabel: opts.CodeLabel,
		Workers:   opts.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build identifier index: %w", err)
	}

	names := BuildNameIndex(boundaries, normalizer)
	matcher := NewMatchEngine(index, names).WithDebug(opts.Debug)
	dedup := match.NewDeduplicator()

	outcomes := make([]match.Outcome, 0, len(in.Profiles))
	accepted := make(map[string]int, len(boundaries))

	for _, profile := range in.Profiles {
		outcome := matcher.Match(profile)
		outcomes = append(outcomes, outcome)

		if outcome.Strategy != match.CodeMatch && outcome.Strategy != match.NameMatch {
			continue
		}

		claim := dedup.Claim(outcome.BoundaryKey, profile, outcome.Strategy)
		if !claim.Accepted {
			zap.L().Warn("boundary already claimed",
				zap.String("boundary", outcome.BoundaryKey),
				zap.String("holder", claim.Holder),
				zap.String("rejected", profile.Identity()))
			continue
		}
		if _, ok := accepted[outcome.BoundaryKey]; !ok {
			accepted[outcome.BoundaryKey] = len(outcomes) - 1
		}
	}

	var projector MergeProjector
	merged := &match.MergedSet{
		Order:    make([]string, 0, len(boundaries)),
		Entities: make(map[string]*match.MergedSchoolEntity, len(boundaries)),
	}
	for _, b := range boundaries {
		var outcome *match.Outcome
		if i, ok := accepted[b.DisplayName]; ok {
			outcome = &outcomes[i]
		}
		merged.Order = append(merged.Order, b.DisplayName)
		merged.Entities[b.DisplayName] = projector.Project(b, outcome)
	}

	report := audit.Summarize(audit.SummaryInput{
		Outcomes:              outcomes,
		Index:                 index,
		Rejected:              dedup.Rejected(),
		DuplicateDisplayNames: duplicateNames,
		Merged:                merged,
	})

	result := &RunResult{
		RunID:       uuid.NewString(),
		RunLabel:    opts.RunLabel,
		StartedAt:   started,
		CompletedAt: time.Now(),
		Merged:      merged,
		Outcomes:    outcomes,
		Report:      report,
	}
	result.Report.RunID = result.RunID

	zap.L().Info("linkage run complete",
		zap.String("run_id", result.RunID),
		zap.Int("profiles", report.TotalProfiles),
		zap.Int("code_match", report.CountByStrategy[match.CodeMatch]),
		zap.Int("name_match", report.CountByStrategy[match.NameMatch]),
		zap.Int("conflict", report.CountByStrategy[match.Conflict]),
		zap.Int("unmatched", report.CountByStrategy[match.Unmatched]),
		zap.Int("boundaries", report.BoundariesTotal),
		zap.Duration("took", result.CompletedAt.Sub(started)))

	return result, nil
}

// uniqueBoundaries keeps the first boundary per display name. Later ones are
// reported, not merged.
func uniqueBoundaries(boundaries []match.BoundaryFeature) ([]match.BoundaryFeature, []string, error) {
	seen := make(map[string]bool, len(boundaries))
	unique := make([]match.BoundaryFeature, 0, len(boundaries))
	var duplicates []string

	for i, b := range boundaries {
		if strings.TrimSpace(b.DisplayName) == "" {
			return nil, nil, fmt.Errorf("%w: boundary %d has no display name", ErrInvalidInput, i)
		}
		if seen[b.DisplayName] {
			duplicates = append(duplicates, b.DisplayName)
			zap.L().Warn("duplicate boundary display name", zap.String("name", b.DisplayName))
			continue
		}
		seen[b.DisplayName] = true
		unique = append(unique, b)
	}
	return unique, duplicates, nil
}
