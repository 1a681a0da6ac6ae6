package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/schoolmap/internal/config"
	"github.com/schoolmap/internal/debug"
	"github.com/schoolmap/internal/engine"
	import_pkg "github.com/schoolmap/internal/import"
	"github.com/schoolmap/internal/normalize"
	"github.com/schoolmap/internal/web"
	"github.com/schoolmap/internal/web/handlers"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "web: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := config.LoadEnv(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	settings := config.LoadSettings()

	logger, err := debug.Setup(settings.LogLevel, settings.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	webConfig := web.DefaultConfig()
	if path := config.GetEnv("WEB_CONFIG", ""); path != "" {
		if webConfig, err = web.LoadConfig(path); err != nil {
			return err
		}
	}
	webConfig.Server.Port = config.GetEnvInt("WEB_PORT", webConfig.Server.Port)
	webConfig.Server.Host = config.GetEnv("WEB_HOST", webConfig.Server.Host)
	webConfig.Auth.APIKey = config.GetEnv("WEB_API_KEY", webConfig.Auth.APIKey)
	webConfig.Features.ExportEnabled = config.GetEnvBool("ENABLE_EXPORT", webConfig.Features.ExportEnabled)
	webConfig.Features.RefreshEnabled = config.GetEnvBool("ENABLE_REFRESH", webConfig.Features.RefreshEnabled)

	normalizer, err := normalize.FromFile(settings.RulesPath)
	if err != nil {
		return err
	}

	store := handlers.NewRunStore(func(ctx context.Context) (*engine.RunResult, error) {
		inputs, err := import_pkg.LoadInputs(ctx, settings)
		if err != nil {
			return nil, err
		}
		return engine.Run(inputs, engine.Options{
			Normalizer: normalizer,
			CodeLabel:  settings.CodeLabel,
			Workers:    settings.Workers,
			RunLabel:   "web",
			Debug:      settings.Debug,
		})
	})

	if _, err := store.Refresh(ctx); err != nil {
		return fmt.Errorf("initial run failed: %w", err)
	}

	zap.L().Info("web interface ready",
		zap.String("host", webConfig.Server.Host),
		zap.Int("port", webConfig.Server.Port),
		zap.Bool("export", webConfig.Features.ExportEnabled),
		zap.Bool("refresh", webConfig.Features.RefreshEnabled))

	return web.NewServer(webConfig, store, normalizer).Start(ctx)
}
