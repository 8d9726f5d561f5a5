package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
	"github.com/ericfisherdev/chainupdate/internal/domain/port/driven"
	"github.com/ericfisherdev/chainupdate/internal/envfile"
)

// RepositoryMutator applies file edits to a working tree.
type RepositoryMutator struct {
	runner driven.CommandRunner
}

// NewRepositoryMutator creates a RepositoryMutator that runs regeneration
// commands with runner.
func NewRepositoryMutator(runner driven.CommandRunner) *RepositoryMutator {
	return &RepositoryMutator{runner: runner}
}

// Apply runs edits in order against ws. Values and commands must already be
// rendered. Applying the same edits twice leaves the tree unchanged the
// second time: substitutions only write when the bytes differ.
//
// A substitution that matches no line is a warning in the report, or an error
// wrapping model.ErrSubstitutionUnmatched when the edit is required.
func (m *RepositoryMutator) Apply(ctx context.Context, ws driven.Workspace, edits []model.FileEdit) (*model.MutationReport, error) {
	report := &model.MutationReport{}

	for i, edit := range edits {
		switch edit.Kind {
		case model.EditSubstitute:
			if edit.SkipIfEmpty && edit.Value == "" {
				slog.Info("substitution skipped, empty value", "path", edit.Path, "key", edit.Key)
				report.Skipped++
				continue
			}
			warning, err := substitute(ws, edit)
			if err != nil {
				return report, fmt.Errorf("edit %d: %w", i, err)
			}
			if warning != "" {
				slog.Warn("substitution matched nothing", "path", edit.Path, "key", edit.Key)
				report.Warnings = append(report.Warnings, warning)
			}

		case model.EditRegenerate:
			if m.runner == nil {
				return report, fmt.Errorf("edit %d: no command runner configured", i)
			}
			out, err := m.runner.Run(ctx, ws.Root(), edit.Command)
			if err != nil {
				return report, fmt.Errorf("edit %d: regenerating with %s: %w", i, strings.Join(edit.Command, " "), err)
			}
			slog.Debug("regeneration output", "command", strings.Join(edit.Command, " "), "output", string(out))

		default:
			return report, fmt.Errorf("edit %d: unknown kind %q", i, edit.Kind)
		}
		report.Applied++
	}

	return report, nil
}

// substitute sets edit.Key to edit.Value in the KEY=VALUE file at edit.Path.
// It returns a warning when no line matched and the edit is optional.
func substitute(ws driven.Workspace, edit model.FileEdit) (string, error) {
	original, err := ws.ReadFile(edit.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		original = nil
	case err != nil:
		return "", fmt.Errorf("reading %s: %w", edit.Path, err)
	}

	doc := envfile.Parse(original)
	if doc.Set(edit.Key, edit.Value) == 0 {
		if edit.Required {
			return "", fmt.Errorf("%w: %s in %s", model.ErrSubstitutionUnmatched, edit.Key, edit.Path)
		}
		return fmt.Sprintf("%s: no line sets %s", edit.Path, edit.Key), nil
	}

	updated := doc.Bytes()
	if bytes.Equal(updated, original) {
		return "", nil
	}
	if err := ws.WriteFile(edit.Path, updated, 0); err != nil {
		return "", fmt.Errorf("writing %s: %w", edit.Path, err)
	}
	return "", nil
}
