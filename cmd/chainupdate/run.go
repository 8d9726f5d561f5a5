package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	githubadapter "github.com/ericfisherdev/chainupdate/internal/adapter/driven/github"
)

func newRunCmd() *cobra.Command {
	var eventPath, eventName string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once for a workflow_run event payload",
		Long: "Run reads the workflow_run payload that GitHub Actions writes to GITHUB_EVENT_PATH,\n" +
			"executes every job synchronously and, when GITHUB_OUTPUT is set, exports\n" +
			"<job>_head_sha and <job>_pr_url as step outputs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), eventPath, eventName)
		},
	}

	defaultName := os.Getenv("GITHUB_EVENT_NAME")
	if defaultName == "" {
		defaultName = githubadapter.EventWorkflowRun
	}
	cmd.Flags().StringVar(&eventPath, "event", os.Getenv("GITHUB_EVENT_PATH"), "path to the event payload (default $GITHUB_EVENT_PATH)")
	cmd.Flags().StringVar(&eventName, "event-name", defaultName, "event type of the payload")
	return cmd
}

func runOnce(ctx context.Context, eventPath, eventName string) error {
	if eventPath == "" {
		return errors.New("no event payload: pass --event or set GITHUB_EVENT_PATH")
	}
	payload, err := os.ReadFile(eventPath)
	if err != nil {
		return fmt.Errorf("reading event payload: %w", err)
	}
	ev, err := githubadapter.ParseWorkflowRunEvent(eventName, payload)
	if err != nil {
		return err
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	record, runErr := a.pipeline.Run(ctx, *ev)
	if record != nil {
		for _, job := range record.Jobs {
			slog.Info("job result", "job", job.Job, "outcome", job.Outcome, "pr_url", job.PRURL, "warnings", len(job.Warnings))
		}
		if path := os.Getenv("GITHUB_OUTPUT"); path != "" {
			if err := writeOutputs(path, record); err != nil {
				return errors.Join(runErr, err)
			}
		}
		slog.Info("run finished", "run", record.ID, "outcome", record.Outcome)
	}
	return runErr
}
