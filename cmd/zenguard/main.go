// Package main is the CLI entry point for zenguard.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/zenguard/internal/config"
	"github.com/eliteGoblin/focusd/zenguard/internal/infra"
	"github.com/eliteGoblin/focusd/zenguard/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zenguard",
	Short: "Mindful friction before distracting apps",
	Long: `zenguard watches which app comes to the foreground and puts a pause
in front of the ones you classified as distracting. Soft apps ask for a
short hold; hard apps ask why, for how long, and for a small challenge.

Grants are time-boxed and expire on their own.`,
	Version:      Version,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $ZENGUARD_CONFIG or <data dir>/config.yaml)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file. A broken file is reported and the
// defaults are used, so a typo never disables protection.
func loadConfig() config.Config {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	return cfg
}

// openStore opens the encrypted store in the configured data dir.
func openStore(cfg config.Config) (*infra.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	store, err := infra.OpenDataStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

// openSessions opens the store and the session service on top of it.
func openSessions(cfg config.Config, logger *zap.Logger) (*infra.Store, *usecase.SessionService, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	clock, err := infra.NewMonotonicClock()
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to read boot clock: %w", err)
	}
	return store, usecase.NewSessionService(store.Sessions(), store.History(), clock, logger), nil
}

// createLogger logs to <log dir>/zenguard.log. Daemons and the interactive
// screen must not write to the terminal.
func createLogger(cfg config.Config) *zap.Logger {
	zc := zap.NewProductionConfig()
	if err := os.MkdirAll(cfg.LogDir, 0700); err == nil {
		zc.OutputPaths = []string{filepath.Join(cfg.LogDir, "zenguard.log")}
		zc.ErrorOutputPaths = []string{filepath.Join(cfg.LogDir, "zenguard.error.log")}
	}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.Int("pid", os.Getpid()))
}

// cliLogger is used by one-shot commands: warnings and errors to stderr.
func cliLogger() *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	zc.DisableStacktrace = true
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("zenguard %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
