package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// writeOutputs appends the run's step outputs to the GITHUB_OUTPUT file at path.
func writeOutputs(path string, record *model.RunRecord) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening step output file: %w", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "run_id=%s\n", record.ID)
	fmt.Fprintf(w, "outcome=%s\n", record.Outcome)
	for _, job := range record.Jobs {
		name := outputName(job.Job)
		fmt.Fprintf(w, "%s_outcome=%s\n", name, job.Outcome)
		fmt.Fprintf(w, "%s_head_sha=%s\n", name, job.HeadSHA)
		fmt.Fprintf(w, "%s_pr_url=%s\n", name, job.PRURL)
	}

	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing step outputs: %w", err)
	}
	return f.Close()
}

// outputName maps a job name to a step output prefix: letters, digits, '_' and '-'.
func outputName(job string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, job)
}
