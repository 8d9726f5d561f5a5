// Command chainupdate turns a successful upstream workflow run into pull
// requests across repositories, either as a webhook server or one-shot in CI.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chainupdate",
		Short: "Propagate upstream CI results into pull requests across repositories",
		Long: "chainupdate follows a GitHub Actions workflow. When a run of it succeeds, the\n" +
			"configured jobs fetch its artifacts, edit downstream repositories and open or\n" +
			"update one pull request per job, then link back from the originating PR.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRunCmd())
	return root
}
