package import_pkg

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/schoolmap/internal/match"
)

// Registry CSV columns, matched by header name.
const (
	ColLocalID       = "local_id"
	ColStateCode     = "state_code"
	ColExternalID    = "external_id"
	ColCanonicalName = "canonical_name"
)

// csvRow gives header-addressed access to one CSV record.
type csvRow struct {
	line   int
	header map[string]int
	record []string
}

func (r csvRow) get(col string) string {
	i, ok := r.header[col]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

// readCSV reads a headed CSV file and maps each record. A record that fails
// to read or map aborts the read; a partial collection is never returned.
func readCSV[T any](r io.Reader, required []string, mapFunc func(csvRow) (T, error)) ([]T, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	head, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	header := make(map[string]int, len(head))
	for i, h := range head {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := header[h]; !dup {
			header[h] = i
		}
	}
	for _, col := range required {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	var out []T
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.ParseError carries the line number.
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		line, _ := reader.FieldPos(0)

		item, err := mapFunc(csvRow{line: line, header: header, record: record})
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// ReadRegistryCSV reads registry rows from CSV. A state code or external id
// is required on every row; everything else may be blank.
func ReadRegistryCSV(r io.Reader) ([]match.RegistryRecord, error) {
	return readCSV(r, []string{ColStateCode, ColExternalID}, func(row csvRow) (match.RegistryRecord, error) {
		rec := match.RegistryRecord{
			LocalID:       row.get(ColLocalID),
			StateCode:     row.get(ColStateCode),
			ExternalID:    row.get(ColExternalID),
			CanonicalName: row.get(ColCanonicalName),
		}
		if rec.StateCode == "" && rec.ExternalID == "" {
			return rec, fmt.Errorf("empty registry row")
		}
		return rec, nil
	})
}

// LoadRegistry reads the registry from a .json array or a CSV file.
func LoadRegistry(path string) ([]match.RegistryRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	var records []match.RegistryRecord
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.NewDecoder(file).Decode(&records); err != nil {
			return nil, fmt.Errorf("failed to decode registry %s: %w", path, err)
		}
	} else {
		records, err = ReadRegistryCSV(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read registry %s: %w", path, err)
		}
	}

	zap.L().Info("registry loaded", zap.String("path", path), zap.Int("records", len(records)))
	return records, nil
}
