package audit

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/schoolmap/internal/match"
)

// Sheet names of the review workbook.
const (
	SheetSummary         = "Summary"
	SheetUnmatched       = "Unmatched"
	SheetConflicts       = "Conflicts"
	SheetDuplicateCodes  = "DuplicateCodes"
	SheetDuplicateClaims = "DuplicateClaims"
	SheetParseFailures   = "ParseFailures"
	SheetInvalidCodes    = "InvalidStateCodes"
)

// BuildWorkbook lays the report out as an Excel workbook for manual review.
// The caller owns the returned file and must Close it.
func BuildWorkbook(r Report) (*excelize.File, error) {
	f := excelize.NewFile()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	summary := [][]interface{}{
		{"Run", r.RunID},
		{"Total profiles", r.TotalProfiles},
	}
	for _, s := range match.Strategies {
		summary = append(summary, []interface{}{string(s), r.CountByStrategy[s]})
	}
	summary = append(summary,
		[]interface{}{"Confirmed by name", r.ConfirmedByName},
		[]interface{}{"Match rate", r.MatchRate()},
		[]interface{}{"Boundaries", r.BoundariesTotal},
		[]interface{}{"Boundaries linked", r.BoundariesMatched},
		[]interface{}{"Parse failures", len(r.ParseFailures)},
		[]interface{}{"Invalid state codes", len(r.InvalidStateCodes)},
	)

	unmatched := make([][]interface{}, 0, len(r.Unmatched))
	for _, u := range r.Unmatched {
		reasons := make([]string, 0, len(u.Reasons))
		for _, reason := range u.Reasons {
			reasons = append(reasons, string(reason))
		}
		unmatched = append(unmatched, []interface{}{u.ExternalID, u.Name, u.Code, strings.Join(reasons, ", ")})
	}

	conflicts := make([][]interface{}, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		conflicts = append(conflicts, []interface{}{c.ExternalID, c.Name, c.Code, c.CodeCandidate, c.NameCandidate, string(c.NameVariant)})
	}

	dupCodes := make([][]interface{}, 0, len(r.DuplicateCodes))
	for _, d := range r.DuplicateCodes {
		dupCodes = append(dupCodes, []interface{}{string(d.Code), d.Kept, d.Duplicate})
	}

	dupClaims := make([][]interface{}, 0, len(r.DuplicateClaims))
	for _, d := range r.DuplicateClaims {
		dupClaims = append(dupClaims, []interface{}{d.BoundaryKey, d.Holder, d.Rejected, d.RejectedAs, d.Strategy})
	}

	parseFailures := make([][]interface{}, 0, len(r.ParseFailures))
	for _, p := range r.ParseFailures {
		parseFailures = append(parseFailures, []interface{}{p.DisplayName, p.Reason})
	}

	invalidCodes := make([][]interface{}, 0, len(r.InvalidStateCodes))
	for _, c := range r.InvalidStateCodes {
		invalidCodes = append(invalidCodes, []interface{}{c.ExternalID, c.LocalID, c.StateCode})
	}

	sheets := []struct {
		name    string
		headers []string
		rows    [][]interface{}
	}{
		{SheetSummary, []string{"Metric", "Value"}, summary},
		{SheetUnmatched, []string{"External ID", "Name", "Code", "Reasons"}, unmatched},
		{SheetConflicts, []string{"External ID", "Name", "Code", "Code Candidate", "Name Candidate", "Name Variant"}, conflicts},
		{SheetDuplicateCodes, []string{"Code", "Kept", "Duplicate"}, dupCodes},
		{SheetDuplicateClaims, []string{"Boundary", "Holder", "Rejected", "Rejected Name", "Strategy"}, dupClaims},
		{SheetParseFailures, []string{"Boundary", "Reason"}, parseFailures},
		{SheetInvalidCodes, []string{"External ID", "Local ID", "State Code"}, invalidCodes},
	}

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", sh.name, err)
		}

		if err := writeSheet(f, sh.name, sh.headers, sh.rows, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	f.SetActiveSheet(0)
	return f, nil
}

// WriteWorkbook saves the review workbook to path.
func WriteWorkbook(path string, r Report) error {
	f, err := BuildWorkbook(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}, headerStyle int) error {
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to write header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to style header %s: %w", cell, err)
		}
	}

	for rowIdx, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", rowIdx+2, sheet, err)
		}
	}

	for i := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, 24); err != nil {
			return fmt.Errorf("failed to size column %s: %w", col, err)
		}
	}
	return nil
}
