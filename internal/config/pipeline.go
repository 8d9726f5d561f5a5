package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

// pipelineFile mirrors the YAML layout of a pipeline definition.
type pipelineFile struct {
	UpstreamWorkflow string     `yaml:"upstream_workflow"`
	Author           authorFile `yaml:"author"`
	Jobs             []jobFile  `yaml:"jobs"`
}

type authorFile struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

type jobFile struct {
	Name          string      `yaml:"name"`
	Needs         string      `yaml:"needs"`
	Repository    string      `yaml:"repository"`
	Base          string      `yaml:"base"`
	CheckoutDir   string      `yaml:"checkout_dir"`
	Artifact      string      `yaml:"artifact"`
	ArtifactPath  string      `yaml:"artifact_path"`
	Branch        string      `yaml:"branch"`
	Title         string      `yaml:"title"`
	Body          string      `yaml:"body"`
	CommitMessage string      `yaml:"commit_message"`
	Labels        []string    `yaml:"labels"`
	Assignees     []string    `yaml:"assignees"`
	Paths         []string    `yaml:"paths"`
	AutoMerge     string      `yaml:"auto_merge"`
	PROnly        bool        `yaml:"pull_request_only"`
	Edits         []editFile  `yaml:"edits"`
	Notify        *notifyFile `yaml:"notify"`
}

type editFile struct {
	Kind        string   `yaml:"kind"`
	Path        string   `yaml:"path"`
	Key         string   `yaml:"key"`
	Value       string   `yaml:"value"`
	Command     []string `yaml:"command"`
	When        string   `yaml:"when"`
	SkipIfEmpty bool     `yaml:"skip_if_empty"`
	Required    bool     `yaml:"required"`
}

type notifyFile struct {
	Repository string `yaml:"repository"`
	Tag        string `yaml:"tag"`
	Message    string `yaml:"message"`
}

// LoadPipeline reads and validates the pipeline definition at path.
func LoadPipeline(path string) (*model.PipelineDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline %s: %w", path, err)
	}
	def, err := ParsePipeline(data)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", path, err)
	}
	return def, nil
}

// ParsePipeline decodes a YAML pipeline definition. Unknown fields are rejected.
func ParsePipeline(data []byte) (*model.PipelineDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw pipelineFile
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("pipeline definition is empty")
		}
		return nil, fmt.Errorf("decoding pipeline: %w", err)
	}

	def := &model.PipelineDefinition{
		UpstreamWorkflow: strings.TrimSpace(raw.UpstreamWorkflow),
		Author:           model.CommitAuthor{Name: raw.Author.Name, Email: raw.Author.Email},
	}
	for _, j := range raw.Jobs {
		def.Jobs = append(def.Jobs, j.toModel())
	}

	if err := ValidatePipeline(def); err != nil {
		return nil, err
	}
	return def, nil
}

func (j jobFile) toModel() model.JobDefinition {
	job := model.JobDefinition{
		Name:            strings.TrimSpace(j.Name),
		Needs:           strings.TrimSpace(j.Needs),
		Repository:      j.Repository,
		Base:            j.Base,
		CheckoutDir:     j.CheckoutDir,
		Artifact:        j.Artifact,
		ArtifactPath:    j.ArtifactPath,
		Branch:          j.Branch,
		Title:           j.Title,
		Body:            j.Body,
		CommitMessage:   j.CommitMessage,
		Labels:          j.Labels,
		Assignees:       j.Assignees,
		Paths:           j.Paths,
		AutoMerge:       model.MergeMethod(strings.ToLower(strings.TrimSpace(j.AutoMerge))),
		PullRequestOnly: j.PROnly,
	}
	for _, e := range j.Edits {
		job.Edits = append(job.Edits, model.FileEdit{
			Kind:        model.EditKind(e.Kind),
			Path:        e.Path,
			Key:         e.Key,
			Value:       e.Value,
			Command:     e.Command,
			When:        e.When,
			SkipIfEmpty: e.SkipIfEmpty,
			Required:    e.Required,
		})
	}
	if j.Notify != nil {
		job.Notify = &model.NotifyDefinition{
			Repository: j.Notify.Repository,
			Tag:        j.Notify.Tag,
			Message:    j.Notify.Message,
		}
	}
	return job
}

// ValidatePipeline checks the structural rules of a pipeline definition:
// unique job names, needs referring to an earlier job, required fields, and
// well-formed edits.
func ValidatePipeline(def *model.PipelineDefinition) error {
	var errs []error

	if def.UpstreamWorkflow == "" {
		errs = append(errs, errors.New("upstream_workflow is required"))
	}
	if def.Author.Name == "" || def.Author.Email == "" {
		errs = append(errs, errors.New("author name and email are required"))
	}
	if len(def.Jobs) == 0 {
		errs = append(errs, errors.New("at least one job is required"))
	}

	seen := make(map[string]bool, len(def.Jobs))
	for i, job := range def.Jobs {
		where := fmt.Sprintf("jobs[%d]", i)
		if job.Name != "" {
			where = fmt.Sprintf("job %q", job.Name)
		}

		switch {
		case job.Name == "":
			errs = append(errs, fmt.Errorf("%s: name is required", where))
		case seen[job.Name]:
			errs = append(errs, fmt.Errorf("%s: duplicate name", where))
		}

		if job.Needs != "" && !seen[job.Needs] {
			errs = append(errs, fmt.Errorf("%s: needs %q, which is not an earlier job", where, job.Needs))
		}
		seen[job.Name] = true

		for field, v := range map[string]string{
			"repository":     job.Repository,
			"base":           job.Base,
			"branch":         job.Branch,
			"title":          job.Title,
			"commit_message": job.CommitMessage,
		} {
			if strings.TrimSpace(v) == "" {
				errs = append(errs, fmt.Errorf("%s: %s is required", where, field))
			}
		}
		if job.Repository != "" && strings.Count(job.Repository, "/") != 1 {
			errs = append(errs, fmt.Errorf("%s: repository %q must be owner/repo", where, job.Repository))
		}
		if !job.AutoMerge.Valid() {
			errs = append(errs, fmt.Errorf("%s: auto_merge %q must be merge, squash or rebase", where, job.AutoMerge))
		}
		if job.ArtifactPath != "" && job.Artifact == "" {
			errs = append(errs, fmt.Errorf("%s: artifact_path set without artifact", where))
		}

		for k, edit := range job.Edits {
			if err := validateEdit(edit); err != nil {
				errs = append(errs, fmt.Errorf("%s: edits[%d]: %w", where, k, err))
			}
		}

		if job.Notify != nil && (job.Notify.Tag == "" || job.Notify.Message == "") {
			errs = append(errs, fmt.Errorf("%s: notify requires tag and message", where))
		}
	}

	return errors.Join(errs...)
}

func validateEdit(edit model.FileEdit) error {
	if edit.When != "" {
		if !strings.Contains(edit.When, "{{") {
			return fmt.Errorf("when %q is constant; it must be a template", edit.When)
		}
		if _, err := template.New("when").Parse(edit.When); err != nil {
			return fmt.Errorf("when: %w", err)
		}
	}
	switch edit.Kind {
	case model.EditSubstitute:
		if edit.Path == "" || edit.Key == "" {
			return errors.New("substitute requires path and key")
		}
	case model.EditRegenerate:
		if len(edit.Command) == 0 {
			return errors.New("regenerate requires command")
		}
	default:
		return fmt.Errorf("unknown kind %q", edit.Kind)
	}
	return nil
}
