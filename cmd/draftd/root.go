package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/draft-protocol/draftd/internal/config"
	"github.com/draft-protocol/draftd/internal/engine"
	"github.com/draft-protocol/draftd/internal/mcpserver"
	"github.com/draft-protocol/draftd/internal/oracle"
	"github.com/draft-protocol/draftd/internal/store"
	"github.com/draft-protocol/draftd/internal/tools"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "draftd",
		Short: "DRAFT intake governance server",
		Long: `draftd makes sure an AI agent understands what a human wants before it acts.

Requests are classified into risk tiers, mapped onto the five DRAFT dimensions
(Define, Rules, Artifacts, Flex, Test), and held at a confirmation gate until
every applicable field is confirmed by a human.`,
		Version:      mcpserver.Version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (overrides DRAFT_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides DRAFT_DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides DRAFT_LOG_LEVEL)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newClassifyCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))

	return cmd
}

// app holds the wired dependencies shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	repo   *store.SQLiteStore
	oracle *oracle.Client
	eng    *engine.Engine
	svc    *tools.Service
}

// bootstrap loads configuration and wires storage, oracle and engine.
// Logs go to stderr so stdout stays free for the stdio transport and command output.
func bootstrap(opts *rootOptions, logOut io.Writer) (*app, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	if opts.configPath != "" {
		if err := os.Setenv("DRAFT_CONFIG", opts.configPath); err != nil {
			return nil, fmt.Errorf("set config path: %w", err)
		}
	}
	if opts.dbPath != "" {
		if err := os.Setenv("DRAFT_DB_PATH", opts.dbPath); err != nil {
			return nil, fmt.Errorf("set db path: %w", err)
		}
	}
	if opts.logLevel != "" {
		if err := os.Setenv("DRAFT_LOG_LEVEL", opts.logLevel); err != nil {
			return nil, fmt.Errorf("set log level: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	logger.Debug("Database connected", "path", cfg.DBPath)

	orc, err := oracle.New(cfg.Oracle, logger)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("initialize oracle: %w", err)
	}

	eng := engine.New(repo, orc, engine.Options{
		ExtraConsequential: cfg.Triggers.Consequential,
		ExtraStandard:      cfg.Triggers.Standard,
		Logger:             logger,
	})

	return &app{
		cfg:    cfg,
		logger: logger,
		repo:   repo,
		oracle: orc,
		eng:    eng,
		svc:    tools.NewService(eng, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.oracle.Close(); err != nil {
		a.logger.Warn("Failed to close oracle", "error", err)
	}
	if err := a.repo.Close(); err != nil {
		a.logger.Error("Failed to close repository", "error", err)
	}
}
