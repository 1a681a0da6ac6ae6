package import_pkg

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/schoolmap/internal/config"
	"github.com/schoolmap/internal/db"
	"github.com/schoolmap/internal/engine"
	"github.com/schoolmap/internal/match"
)

// LoadInputs loads profiles, registry and boundaries concurrently. The
// registry comes from the database when a DSN is configured, otherwise from
// the registry file.
func LoadInputs(ctx context.Context, s config.Settings) (engine.Inputs, error) {
	var in engine.Inputs
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		profiles, err := LoadProfiles(s.ProfilesPath)
		in.Profiles = profiles
		return err
	})
	g.Go(func() error {
		boundaries, err := LoadBoundaries(s.BoundariesPath)
		in.Boundaries = boundaries
		return err
	})
	g.Go(func() error {
		registry, err := loadRegistry(ctx, s)
		in.Registry = registry
		return err
	})

	if err := g.Wait(); err != nil {
		return engine.Inputs{}, err
	}
	return in, nil
}

func loadRegistry(ctx context.Context, s config.Settings) ([]match.RegistryRecord, error) {
	if s.RegistryDSN == "" {
		return LoadRegistry(s.RegistryPath)
	}

	conn, err := db.NewConnection(ctx, s.RegistryDriver, s.RegistryDSN)
	if err != nil {
		return nil, fmt.Errorf("registry database: %w", err)
	}
	defer conn.Close()

	store, err := NewRegistryStore(conn.DB, s.RegistryTable)
	if err != nil {
		return nil, err
	}
	return store.Load(ctx)
}
