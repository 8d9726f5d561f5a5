package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	githubadapter "github.com/ericfisherdev/chainupdate/internal/adapter/driven/github"
	httphandler "github.com/ericfisherdev/chainupdate/internal/adapter/driving/http"
	"github.com/ericfisherdev/chainupdate/internal/application"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Receive workflow_run webhooks and serve the run ledger API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// Token check. Installation tokens cannot read /user, so failure only warns.
	if login, err := a.github.Authenticated(ctx); err != nil {
		slog.Warn("github token check failed", "error", err)
	} else {
		slog.Info("github client created", "login", login)
	}
	if a.cfg.WebhookSecret == "" {
		slog.Warn("CHAINUPDATE_WEBHOOK_SECRET is not set, webhook signatures are not verified")
	}

	// Start the worker pool.
	dispatcher := application.NewDispatcher(a.pipeline, a.cfg.Workers, a.cfg.QueueSize)
	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Start(runCtx)
	}()

	health := application.NewHealthService(a.db, dispatcher, a.def.UpstreamWorkflow)
	handler := httphandler.NewHandler(httphandler.Deps{
		Runs:          a.runs,
		Filter:        a.pipeline,
		Queue:         dispatcher,
		Parse:         githubadapter.ParseWorkflowRunEvent,
		Health:        health,
		WebhookSecret: a.cfg.WebhookSecret,
	}, slog.Default())

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(handler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	slog.Info("chainupdate started",
		"listen_addr", a.cfg.ListenAddr,
		"workers", a.cfg.Workers,
		"queue_size", a.cfg.QueueSize,
	)

	// Wait for shutdown signal or a server failure.
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err = <-serverErr:
		slog.Error("http server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Error("http server shutdown error", "error", shutdownErr)
	}

	// Runs in flight are cancelled and closed out as failed in the ledger.
	cancelRuns()
	<-dispatcherDone

	slog.Info("shutdown complete")
	return err
}
