package application

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// TemplateData is the value job definition templates are executed against.
type TemplateData struct {
	RunID      int64
	PRNumber   int
	PRAuthor   string
	HeadBranch string
	HeadSHA    string
	Repository string
	// Needs holds the consumed output of the job this one depends on, keyed by job name.
	Needs map[string]model.JobOutput
	// Self is the output of the current job; it is only populated for notify messages.
	Self model.JobOutput
}

func newTemplateData(ev model.WorkflowRunEvent) TemplateData {
	return TemplateData{
		RunID:      ev.RunID,
		PRNumber:   ev.PRNumber,
		PRAuthor:   ev.PRAuthor,
		HeadBranch: ev.HeadBranch,
		HeadSHA:    ev.HeadSHA,
		Repository: ev.Repository,
		Needs:      map[string]model.JobOutput{},
	}
}

// render executes src against data. References to missing map keys are errors.
func render(name, src string, data TemplateData) (string, error) {
	if !strings.Contains(src, "{{") {
		return src, nil
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parsing %s template: %w", name, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return b.String(), nil
}

// renderAll renders every element of srcs. Elements that render empty are dropped.
func renderAll(name string, srcs []string, data TemplateData) ([]string, error) {
	out := make([]string, 0, len(srcs))
	for i, src := range srcs {
		v, err := render(fmt.Sprintf("%s[%d]", name, i), src, data)
		if err != nil {
			return nil, err
		}
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// renderedJob is a job definition with every template executed.
type renderedJob struct {
	Repository    string
	Base          string
	Artifact      string
	ArtifactPath  string
	Branch        string
	Title         string
	Body          string
	CommitMessage string
	Labels        []string
	Assignees     []string
	Paths         []string
	Edits         []model.FileEdit
	// Guarded counts edits dropped because their When guard rendered blank.
	Guarded int
}

func renderJob(job model.JobDefinition, data TemplateData) (*renderedJob, error) {
	out := &renderedJob{}
	fields := []struct {
		name string
		src  string
		dst  *string
	}{
		{"repository", job.Repository, &out.Repository},
		{"base", job.Base, &out.Base},
		{"artifact", job.Artifact, &out.Artifact},
		{"artifact_path", job.ArtifactPath, &out.ArtifactPath},
		{"branch", job.Branch, &out.Branch},
		{"title", job.Title, &out.Title},
		{"body", job.Body, &out.Body},
		{"commit_message", job.CommitMessage, &out.CommitMessage},
	}
	for _, f := range fields {
		v, err := render(f.name, f.src, data)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	out.Branch = strings.TrimSpace(out.Branch)

	var err error
	if out.Labels, err = renderAll("labels", job.Labels, data); err != nil {
		return nil, err
	}
	if out.Assignees, err = renderAll("assignees", job.Assignees, data); err != nil {
		return nil, err
	}
	if out.Paths, err = renderAll("paths", job.Paths, data); err != nil {
		return nil, err
	}

	for i, edit := range job.Edits {
		name := fmt.Sprintf("edits[%d]", i)
		if edit.When != "" {
			guard, err := render(name+".when", edit.When, data)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(guard) == "" {
				out.Guarded++
				continue
			}
			edit.When = ""
		}
		if edit.Path, err = render(name+".path", edit.Path, data); err != nil {
			return nil, err
		}
		if edit.Value, err = render(name+".value", edit.Value, data); err != nil {
			return nil, err
		}
		command := make([]string, 0, len(edit.Command))
		for k, arg := range edit.Command {
			v, err := render(fmt.Sprintf("%s.command[%d]", name, k), arg, data)
			if err != nil {
				return nil, err
			}
			command = append(command, v)
		}
		edit.Command = command
		out.Edits = append(out.Edits, edit)
	}

	return out, nil
}
