package import_pkg

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/schoolmap/internal/match"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type registryRow struct {
	LocalID       string `db:"local_id"`
	StateCode     string `db:"state_code"`
	ExternalID    string `db:"external_id"`
	CanonicalName string `db:"canonical_name"`
}

// RegistryStore reads and seeds the school registry table.
type RegistryStore struct {
	db    *sqlx.DB
	table string
}

// NewRegistryStore creates a store over table. The name is interpolated into
// SQL so it must be a plain (optionally schema-qualified) identifier.
func NewRegistryStore(db *sqlx.DB, table string) (*RegistryStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid registry table name %q", table)
	}
	return &RegistryStore{db: db, table: table}, nil
}

// EnsureSchema creates the registry table if it does not exist.
func (s *RegistryStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			local_id       TEXT,
			state_code     TEXT NOT NULL,
			external_id    TEXT,
			canonical_name TEXT
		)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Load reads every registry row ordered by external id.
func (s *RegistryStore) Load(ctx context.Context) ([]match.RegistryRecord, error) {
	var rows []registryRow
	err := s.db.SelectContext(ctx, &rows, fmt.Sprintf(`
		SELECT COALESCE(local_id, '')       AS local_id,
		       state_code,
		       COALESCE(external_id, '')    AS external_id,
		       COALESCE(canonical_name, '') AS canonical_name
		FROM %s
		ORDER BY external_id, local_id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}

	records := make([]match.RegistryRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, match.RegistryRecord(r))
	}
	zap.L().Info("registry loaded from database", zap.String("table", s.table), zap.Int("records", len(records)))
	return records, nil
}

// Import inserts records in one transaction and returns how many were
// written.
func (s *RegistryStore) Import(ctx context.Context, records []match.RegistryRecord) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(fmt.Sprintf(`
		INSERT INTO %s (local_id, state_code, external_id, canonical_name)
		VALUES (?, ?, ?, ?)`, s.table)))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	imported := 0
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.LocalID, r.StateCode, r.ExternalID, r.CanonicalName); err != nil {
			return 0, fmt.Errorf("failed to insert registry row %q: %w", r.ExternalID, err)
		}
		imported++
		if imported%1000 == 0 {
			zap.L().Debug("registry import progress", zap.Int("imported", imported))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	zap.L().Info("registry import complete", zap.String("table", s.table), zap.Int("imported", imported))
	return imported, nil
}
