package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leviosa/internal/auth"
	"leviosa/internal/config"
	"leviosa/internal/generation"
	"leviosa/internal/logging"
	"leviosa/internal/server"
	"leviosa/internal/usage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the usage-gated name and cover endpoints",
	Long: `Starts the HTTP server for POST /api/optimize-name and POST /api/optimize-cover.

Requests must carry an HS256 session token (Authorization: Bearer or the
leviosa_session cookie) signed with server.session_secret. Each feature is
metered per user per calendar month in the SQLite database at usage.database_path.

Editing usage.limits in the config file takes effect without a restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (overrides server.listen)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		Categories: cfg.Logging.Categories,
	}
	if verbose {
		logCfg.Level = "debug"
	}
	if err := logging.Initialize(logCfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	meter, err := usage.Open(cfg.Usage.DatabasePath, cfg.Usage.Limits)
	if err != nil {
		return err
	}
	defer meter.Close()

	gen, err := generation.New(ctx, cfg.Generation, cfg.GetGenerationTimeout())
	if err != nil {
		return err
	}

	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		applyLimits(meter, next)
	})
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		logging.BootWarn("config hot reload disabled: %v", err)
	} else {
		defer watcher.Stop()
	}

	srv := server.New(auth.NewJWTVerifier([]byte(cfg.Server.SessionSecret)), meter, gen)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s (generation configured: %s)\n", cfg.Server.Listen, yesNo(gen.Configured()))
	return srv.Run(ctx, cfg.Server.Listen, cfg.GetReadTimeout(), cfg.GetWriteTimeout())
}

type limitSetter interface {
	SetLimits(limits map[string]int)
}

// applyLimits installs the usage limits of a reloaded config. A config that
// fails validation is logged and the running limits stay in force.
func applyLimits(meter limitSetter, next *config.Config) bool {
	if err := next.Validate(); err != nil {
		logging.BootWarn("config reload rejected, keeping previous limits: %v", err)
		return false
	}
	meter.SetLimits(next.Usage.Limits)
	if logger != nil {
		logger.Info("usage limits reloaded", zap.Any("limits", next.Usage.Limits))
	}
	return true
}
