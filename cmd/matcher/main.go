package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/schoolmap/internal/audit"
	"github.com/schoolmap/internal/config"
	"github.com/schoolmap/internal/db"
	"github.com/schoolmap/internal/debug"
	"github.com/schoolmap/internal/engine"
	import_pkg "github.com/schoolmap/internal/import"
	"github.com/schoolmap/internal/normalize"
	"github.com/schoolmap/internal/web"
	"github.com/schoolmap/internal/web/handlers"
)

var (
	// Settings from the environment, overridden by flags
	settings config.Settings
	runLabel string
)

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	settings = config.LoadSettings()

	rootCmd := &cobra.Command{
		Use:   "matcher",
		Short: "School boundary linkage",
		Long:  `Links scraped school profiles to catchment boundaries through the state registry and writes a merged map layer with diagnostics`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := debug.Setup(settings.LogLevel, settings.Debug)
			return err
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&settings.ProfilesPath, "profiles", settings.ProfilesPath, "scraped profiles JSON")
	flags.StringVar(&settings.RegistryPath, "registry", settings.RegistryPath, "registry CSV or JSON file")
	flags.StringVar(&settings.RegistryDriver, "registry-driver", settings.RegistryDriver, "registry database driver (postgres or sqlite)")
	flags.StringVar(&settings.RegistryDSN, "registry-dsn", settings.RegistryDSN, "registry database DSN; overrides --registry")
	flags.StringVar(&settings.RegistryTable, "registry-table", settings.RegistryTable, "registry table name")
	flags.StringVar(&settings.BoundariesPath, "boundaries", settings.BoundariesPath, "boundary GeoJSON FeatureCollection")
	flags.StringVar(&settings.RulesPath, "rules", settings.RulesPath, "YAML abbreviation rule table (default built-in)")
	flags.StringVar(&settings.CodeLabel, "code-label", settings.CodeLabel, "label of the state code in boundary descriptions")
	flags.IntVar(&settings.Workers, "workers", settings.Workers, "parallel code extraction workers")
	flags.StringVar(&settings.LogLevel, "log-level", settings.LogLevel, "log level")
	flags.BoolVar(&settings.Debug, "debug", settings.Debug, "verbose per-profile debug output")
	flags.StringVar(&runLabel, "label", "", "free-form label recorded with the run")

	rootCmd.AddCommand(createMergeCmd())
	rootCmd.AddCommand(createCheckCmd())
	rootCmd.AddCommand(createNormalizeCmd())
	rootCmd.AddCommand(createRegistryCmd())
	rootCmd.AddCommand(createServeCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// runLinkage loads every input and performs one linkage run.
func runLinkage(ctx context.Context) (*engine.RunResult, error) {
	normalizer, err := normalize.FromFile(settings.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	inputs, err := import_pkg.LoadInputs(ctx, settings)
	if err != nil {
		return nil, err
	}

	return engine.Run(inputs, engine.Options{
		Normalizer: normalizer,
		CodeLabel:  settings.CodeLabel,
		Workers:    settings.Workers,
		RunLabel:   runLabel,
		Debug:      settings.Debug,
	})
}

// createMergeCmd creates the merge command
func createMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Link profiles to boundaries and write the merged outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runLinkage(cmd.Context())
			if err != nil {
				return err
			}

			written, err := engine.NewExporter(settings.OutputDir, settings.WriteWorkbook).Export(result)
			if err != nil {
				return err
			}

			audit.PrintSummary(cmd.OutOrStdout(), result.Report)
			fmt.Fprintln(cmd.OutOrStdout(), "\nWrote:")
			for _, path := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&settings.OutputDir, "out", settings.OutputDir, "output directory")
	cmd.Flags().BoolVar(&settings.WriteWorkbook, "workbook", settings.WriteWorkbook, "also write review.xlsx")
	return cmd
}

// createCheckCmd creates a dry-run command that reports without writing
func createCheckCmd() *cobra.Command {
	var failOnReview bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the linkage and print diagnostics without writing outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runLinkage(cmd.Context())
			if err != nil {
				return err
			}

			audit.PrintSummary(cmd.OutOrStdout(), result.Report)
			if failOnReview && result.Report.NeedsReview() {
				return fmt.Errorf("run %s needs review", result.RunID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnReview, "fail-on-review", false, "exit non-zero when conflicts or duplicates need review")
	return cmd
}

// createNormalizeCmd prints canonical and expanded forms of names
func createNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [name...]",
		Short: "Show the canonical and expanded form of school names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalizer, err := normalize.FromFile(settings.RulesPath)
			if err != nil {
				return err
			}
			for _, name := range args {
				candidate := normalize.CandidateName(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n  candidate: %s\n  canonical: %s\n  expanded:  %s\n",
					name,
					candidate,
					normalizer.CanonicalizeDebug(settings.Debug, candidate),
					normalizer.Expand(candidate))
			}
			return nil
		},
	}
}

// createRegistryCmd creates the registry database subcommands
func createRegistryCmd() *cobra.Command {
	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the registry database table",
	}

	registryCmd.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Test registry database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openRegistryStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			records, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database connection successful!\nRegistry rows in %s: %d\n", settings.RegistryTable, len(records))
			return nil
		},
	})

	registryCmd.AddCommand(&cobra.Command{
		Use:   "import [filename]",
		Short: "Import a registry CSV or JSON file into the registry table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := import_pkg.LoadRegistry(args[0])
			if err != nil {
				return err
			}

			store, closeFn, err := openRegistryStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			n, err := store.Import(cmd.Context(), records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d registry rows into %s\n", n, settings.RegistryTable)
			return nil
		},
	})

	return registryCmd
}

func openRegistryStore(ctx context.Context) (*import_pkg.RegistryStore, func(), error) {
	conn, err := db.NewConnection(ctx, settings.RegistryDriver, settings.RegistryDSN)
	if err != nil {
		return nil, nil, err
	}
	store, err := import_pkg.NewRegistryStore(conn.DB, settings.RegistryTable)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return store, func() { conn.Close() }, nil
}

// createServeCmd runs the linkage once and serves it over HTTP
func createServeCmd() *cobra.Command {
	var configPath string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the merged map layer and diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			webConfig := web.DefaultConfig()
			if configPath != "" {
				loaded, err := web.LoadConfig(configPath)
				if err != nil {
					return err
				}
				webConfig = loaded
			}
			if cmd.Flags().Changed("port") {
				webConfig.Server.Port = port
			}

			normalizer, err := normalize.FromFile(settings.RulesPath)
			if err != nil {
				return err
			}

			store := handlers.NewRunStore(runLinkage)
			if _, err := store.Refresh(cmd.Context()); err != nil {
				return fmt.Errorf("initial run failed: %w", err)
			}

			zap.L().Info("web features",
				zap.Bool("export", webConfig.Features.ExportEnabled),
				zap.Bool("refresh", webConfig.Features.RefreshEnabled))
			return web.NewServer(webConfig, store, normalizer).Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "web config file (JSON or YAML)")
	cmd.Flags().IntVar(&port, "port", 8080, "listen port")
	return cmd
}
