package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	githubadapter "github.com/ericfisherdev/chainupdate/internal/adapter/driven/github"
	"github.com/ericfisherdev/chainupdate/internal/adapter/driven/shell"
	sqliteadapter "github.com/ericfisherdev/chainupdate/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/chainupdate/internal/adapter/driven/workspace"
	"github.com/ericfisherdev/chainupdate/internal/application"
	"github.com/ericfisherdev/chainupdate/internal/config"
	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// app holds the wired components shared by the serve and run commands.
type app struct {
	cfg      *config.Config
	def      *model.PipelineDefinition
	db       *sqliteadapter.DB
	github   *githubadapter.Client
	runs     *sqliteadapter.RunRepo
	pipeline *application.Pipeline
}

// setup loads configuration, opens and migrates the ledger and wires the pipeline.
func setup(ctx context.Context) (*app, error) {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cfg))

	if !cfg.HasGitHubToken() {
		return nil, errors.New("CHAINUPDATE_GITHUB_TOKEN or GITHUB_TOKEN must be set")
	}

	// 2. Load the pipeline definition.
	def, err := config.LoadPipeline(cfg.PipelinePath)
	if err != nil {
		return nil, err
	}
	slog.Info("config loaded",
		"pipeline", cfg.PipelinePath,
		"upstream_workflow", def.UpstreamWorkflow,
		"jobs", len(def.Jobs),
		"db_path", cfg.DBPath,
		"work_dir", cfg.WorkDir,
	)

	// 3. Open database (dual reader/writer with WAL mode) and migrate.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("ledger ready", "path", cfg.DBPath)

	// 4. Wire adapters and the pipeline.
	client := githubadapter.NewClient(cfg.GitHubToken)
	runs := sqliteadapter.NewRunRepo(db)

	pipeline := application.NewPipeline(def, application.PipelineDeps{
		Artifacts:    client,
		PullRequests: client,
		Branches:     client,
		AutoMerger:   client,
		Comments:     client,
		Checkouts:    workspace.NewProvider(client, cfg.WorkDir),
		Commands:     shell.NewRunner(cfg.CommandTimeout, nil),
		Runs:         runs,
	})

	return &app{cfg: cfg, def: def, db: db, github: client, runs: runs, pipeline: pipeline}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
