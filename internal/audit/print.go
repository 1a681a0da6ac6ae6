package audit

import (
	"fmt"
	"io"
	"strings"

	"github.com/schoolmap/internal/match"
)

// PrintSummary writes a human readable run summary.
func PrintSummary(w io.Writer, r Report) {
	fmt.Fprintln(w, "=== School Boundary Linkage Summary ===")
	if r.RunID != "" {
		fmt.Fprintf(w, "Run:               %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Profiles:          %d\n", r.TotalProfiles)
	for _, s := range match.Strategies {
		fmt.Fprintf(w, "  %-16s %d\n", s+":", r.CountByStrategy[s])
	}
	fmt.Fprintf(w, "  confirmed by name: %d\n", r.ConfirmedByName)
	fmt.Fprintf(w, "Match rate:        %.1f%%\n", r.MatchRate()*100)
	fmt.Fprintf(w, "Boundaries:        %d (%d linked)\n", r.BoundariesTotal, r.BoundariesMatched)
	fmt.Fprintf(w, "Parse failures:    %d\n", len(r.ParseFailures))
	fmt.Fprintf(w, "Duplicate codes:   %d\n", len(r.DuplicateCodes))
	fmt.Fprintf(w, "Duplicate claims:  %d\n", len(r.DuplicateClaims))
	fmt.Fprintf(w, "Invalid codes:     %d\n", len(r.InvalidStateCodes))
	if len(r.DuplicateDisplayNames) > 0 {
		fmt.Fprintf(w, "Duplicate names:   %s\n", strings.Join(r.DuplicateDisplayNames, ", "))
	}

	if len(r.Conflicts) > 0 {
		fmt.Fprintln(w, "\nConflicts (manual review):")
		for _, c := range r.Conflicts {
			fmt.Fprintf(w, "  %s %q: code -> %q, name -> %q (%s)\n",
				c.ExternalID, c.Name, c.CodeCandidate, c.NameCandidate, c.NameVariant)
		}
	}

	if len(r.Unmatched) > 0 {
		fmt.Fprintln(w, "\nUnmatched profiles:")
		for _, u := range r.Unmatched {
			reasons := make([]string, 0, len(u.Reasons))
			for _, reason := range u.Reasons {
				reasons = append(reasons, string(reason))
			}
			fmt.Fprintf(w, "  %s %q: %s\n", u.ExternalID, u.Name, strings.Join(reasons, ", "))
		}
	}
}
