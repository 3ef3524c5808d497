package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/marcogenualdo/session-demo/internal/auth/oidc"
	"github.com/marcogenualdo/session-demo/internal/cache"
	"github.com/marcogenualdo/session-demo/internal/config"
	"github.com/marcogenualdo/session-demo/internal/controller"
	"github.com/marcogenualdo/session-demo/internal/server"
	"github.com/marcogenualdo/session-demo/internal/services"
	"github.com/urfave/cli/v2"
)

const (
	appName = "session-demo"
	version = "1.0.0"
)

func main() {
	app := &cli.App{
		Name:    appName,
		Usage:   "OIDC relying party showing sign-in, token refresh and session status",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "/etc/session-demo/config.yaml",
				Usage:   "path to configuration file",
				EnvVars: []string{"SESSION_DEMO_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "optional dotenv file with secrets",
			},
			&cli.BoolFlag{
				Name:  "no-banner",
				Usage: "skip the startup banner",
			},
		},
		Action: func(cCtx *cli.Context) error {
			if !cCtx.Bool("no-banner") {
				printBanner()
			}
			return run(cCtx.String("config"), cCtx.String("env-file"))
		},
	}

	app.RunAndExitOnError()
}

func printBanner() {
	banner := figure.NewFigure(appName, "cybermedium", true)
	banner.Print()
	fmt.Println()
}

func run(configPath, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("starting session-demo", "version", version)

	cacheInstance, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	logger.Info("cache initialized", "type", cfg.Cache.Type)

	ctx := context.Background()
	client, err := oidc.NewClient(ctx, cfg.OIDC, cacheInstance)
	if err != nil {
		return fmt.Errorf("failed to create OIDC client: %w", err)
	}
	logger.Info("issuer discovered",
		"issuer", client.Issuer(),
		"client_id", cfg.OIDC.ClientID,
	)

	opts := controller.Options{Logger: logger}
	registry := controller.NewRegistry(
		controller.NewFactory(cfg, client, cacheInstance, electors(cfg, cacheInstance, logger), opts),
		cfg.Server.SessionTTL,
		opts,
	)

	srv, err := server.New(cfg, cacheInstance, registry, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}

// electors shares one lease per browser session between instances when
// tokens live in a shared cache.
func electors(cfg *config.Config, c cache.Cache, logger *slog.Logger) controller.ElectorFunc {
	if !cfg.OIDC.Services.SyncStorageEnabled() {
		return func(string) services.LeaderElector { return services.LocalElector{} }
	}

	instanceID := uuid.NewString()
	logger.Info("leader election enabled", "instance", instanceID)
	return func(sessionID string) services.LeaderElector {
		return services.NewCacheElector(c, sessionID, instanceID, services.DefaultLease)
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var out io.Writer = os.Stdout
	if strings.ToLower(cfg.Output) == "stderr" {
		out = os.Stderr
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}
