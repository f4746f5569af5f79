// ABOUTME: Entry point for the adbrain campaign generation service
// ABOUTME: Provides serve, run and providers commands on top of the shared pipeline

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/adbrain/internal/config"
	"github.com/2389/adbrain/internal/pipeline"
	"github.com/2389/adbrain/internal/server"
	"github.com/2389/adbrain/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _ _               _
  __ _  __| | |__  _ __ __ _(_)_ __
 / _' |/ _' | '_ \| '__/ _' | | '_ \
| (_| | (_| | |_) | | | (_| | | | | |
 \__,_|\__,_|_.__/|_|  \__,_|_|_| |_|
`

var (
	configPath string
	dbPath     string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "adbrain",
		Short:         "Campaign content generation over a fallback chain of LLM providers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $ADBRAIN_CONFIG or ~/.config/adbrain/config.yaml)")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides database.path and $ADBRAIN_DB_PATH)")

	root.AddCommand(newServeCmd(), newRunCmd(), newProvidersCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// loadConfig resolves and loads the configuration, falling back to defaults
// when no file exists at the default location.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// openStore creates the SQLite store. Priority: --db > ADBRAIN_DB_PATH > database.path.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	path := cfg.Database.Path
	if envPath := os.Getenv("ADBRAIN_DB_PATH"); envPath != "" {
		path = envPath
	}
	if dbPath != "" {
		path = dbPath
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	source := config.ResolvePath()
	if configPath != "" {
		source = configPath
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", source)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:       %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Providers:  ")
	if len(cfg.Providers) == 0 {
		yellow.Print("none (placeholders only)")
	}
	for i, p := range cfg.Providers {
		if i > 0 {
			fmt.Print(" → ")
		}
		cyan.Print(p.Name)
		gray.Printf(" (%s)", p.Kind)
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("Live data:  %d sources\n\n", len(cfg.Signals.Sources))

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	p, err := pipeline.New(ctx, cfg, st, pipeline.Options{Logger: logger})
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("creating pipeline: %w", err)
	}

	logger.Info("starting adbrain", "http_addr", cfg.Server.HTTPAddr, "version", version)
	return server.New(cfg, p, logger).Run(ctx)
}

// setupLogger builds the process logger from config. Text output is colorized.
func setupLogger(cfg config.LoggingConfig, out *os.File) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = newColorHandler(out, level)
	}
	return slog.New(handler)
}
