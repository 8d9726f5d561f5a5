// Package shell runs regeneration commands as child processes.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/cli/safeexec"

	"github.com/ericfisherdev/chainupdate/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CommandRunner = (*Runner)(nil)

// maxOutputInError bounds how much command output is quoted in an error.
const maxOutputInError = 4096

// Runner executes argv commands without a shell. Executables are resolved with
// safeexec so a binary in the working directory never shadows one on PATH.
type Runner struct {
	timeout time.Duration
	env     []string
}

// NewRunner creates a Runner that kills commands after timeout. A zero
// timeout only honours the caller's context. env, when non-nil, is appended
// to the inherited environment.
func NewRunner(timeout time.Duration, env []string) *Runner {
	return &Runner{timeout: timeout, env: env}
}

// Run executes argv in dir and returns its combined output.
func (r *Runner) Run(ctx context.Context, dir string, argv []string) ([]byte, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("empty command")
	}

	bin, err := safeexec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", argv[0], err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, argv[1:]...)
	cmd.Dir = dir
	if r.env != nil {
		cmd.Env = append(cmd.Environ(), r.env...)
	}

	start := time.Now()
	out, err := cmd.CombinedOutput()
	slog.Debug("command finished",
		"command", strings.Join(argv, " "),
		"dir", dir,
		"duration", time.Since(start).Round(time.Millisecond),
		"error", err,
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, fmt.Errorf("%s: %w", strings.Join(argv, " "), ctxErr)
		}
		return out, fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, truncate(out))
	}
	return out, nil
}

func truncate(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxOutputInError {
		s = "..." + s[len(s)-maxOutputInError:]
	}
	return s
}
