package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
)

const validPipeline = `
upstream_workflow: Dependencies changed
author:
  name: pymor-bot
  email: bot@pymor.org
jobs:
  - name: docker
    repository: pymor/docker
    base: main
    artifact: requirements
    artifact_path: constraints
    branch: update-requirements-{{.PRNumber}}
    title: Update requirements for pymor PR {{.PRNumber}}
    body: Automated update from run {{.RunID}}.
    commit_message: Update requirements for pymor PR {{.PRNumber}}
    labels: [automerge]
    auto_merge: " Squash "
    assignees: ["{{.PRAuthor}}"]
    paths: ["constraints/**"]
    pull_request_only: true
    notify:
      tag: docker-pr
      message: Docker image PR {{.Self.PRURL}}
  - name: env
    needs: docker
    repository: pymor/pymor
    base: "{{.HeadBranch}}"
    checkout_dir: ./pymor
    branch: update-env-{{.PRNumber}}
    title: Update CI image for PR {{.PRNumber}}
    commit_message: Update CI image tag
    edits:
      - kind: substitute
        path: .env
        key: CI_IMAGE_TAG
        value: "{{.Needs.docker.HeadSHA}}"
        skip_if_empty: true
      - kind: regenerate
        command: [make, template]
        when: "{{.Needs.docker.HeadSHA}}"
`

func TestParsePipeline_Valid(t *testing.T) {
	def, err := ParsePipeline([]byte(validPipeline))

	require.NoError(t, err)
	assert.Equal(t, "Dependencies changed", def.UpstreamWorkflow)
	assert.Equal(t, model.CommitAuthor{Name: "pymor-bot", Email: "bot@pymor.org"}, def.Author)
	require.Len(t, def.Jobs, 2)

	docker := def.Jobs[0]
	assert.Equal(t, "docker", docker.Name)
	assert.Equal(t, "requirements", docker.Artifact)
	assert.Equal(t, "constraints", docker.ArtifactPath)
	assert.Equal(t, []string{"automerge"}, docker.Labels)
	assert.Equal(t, []string{"constraints/**"}, docker.Paths)
	assert.Equal(t, model.MergeMethodSquash, docker.AutoMerge)
	require.NotNil(t, docker.Notify)
	assert.Equal(t, "docker-pr", docker.Notify.Tag)

	env := def.Jobs[1]
	assert.Equal(t, "docker", env.Needs)
	assert.Equal(t, "./pymor", env.CheckoutDir)
	require.Len(t, env.Edits, 2)
	assert.Equal(t, model.EditSubstitute, env.Edits[0].Kind)
	assert.True(t, env.Edits[0].SkipIfEmpty)
	assert.Equal(t, "{{.Needs.docker.HeadSHA}}", env.Edits[1].When)
	assert.True(t, docker.PullRequestOnly)
	assert.False(t, env.PullRequestOnly)
	assert.Equal(t, model.EditRegenerate, env.Edits[1].Kind)
	assert.Equal(t, []string{"make", "template"}, env.Edits[1].Command)
	assert.Nil(t, env.Notify)
}

func TestParsePipeline_UnknownField(t *testing.T) {
	_, err := ParsePipeline([]byte("upstream_workflow: x\nbogus: true\n"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestParsePipeline_Empty(t *testing.T) {
	_, err := ParsePipeline(nil)

	assert.EqualError(t, err, "pipeline definition is empty")
}

func TestValidatePipeline_Errors(t *testing.T) {
	base := func() *model.PipelineDefinition {
		return &model.PipelineDefinition{
			UpstreamWorkflow: "Dependencies changed",
			Author:           model.CommitAuthor{Name: "bot", Email: "bot@example.com"},
			Jobs: []model.JobDefinition{{
				Name:          "docker",
				Repository:    "pymor/docker",
				Base:          "main",
				Branch:        "update-{{.PRNumber}}",
				Title:         "t",
				CommitMessage: "m",
			}},
		}
	}

	require.NoError(t, ValidatePipeline(base()))

	tests := []struct {
		name   string
		mutate func(*model.PipelineDefinition)
		want   string
	}{
		{"missing workflow", func(d *model.PipelineDefinition) { d.UpstreamWorkflow = "" }, "upstream_workflow is required"},
		{"missing author", func(d *model.PipelineDefinition) { d.Author.Email = "" }, "author name and email are required"},
		{"no jobs", func(d *model.PipelineDefinition) { d.Jobs = nil }, "at least one job is required"},
		{"duplicate job", func(d *model.PipelineDefinition) { d.Jobs = append(d.Jobs, d.Jobs[0]) }, "duplicate name"},
		{"needs later job", func(d *model.PipelineDefinition) { d.Jobs[0].Needs = "env" }, `needs "env"`},
		{"bad repository", func(d *model.PipelineDefinition) { d.Jobs[0].Repository = "docker" }, "must be owner/repo"},
		{"missing base", func(d *model.PipelineDefinition) { d.Jobs[0].Base = "" }, "base is required"},
		{"artifact path alone", func(d *model.PipelineDefinition) { d.Jobs[0].ArtifactPath = "x" }, "artifact_path set without artifact"},
		{"bad edit kind", func(d *model.PipelineDefinition) {
			d.Jobs[0].Edits = []model.FileEdit{{Kind: "sed"}}
		}, `unknown kind "sed"`},
		{"substitute without key", func(d *model.PipelineDefinition) {
			d.Jobs[0].Edits = []model.FileEdit{{Kind: model.EditSubstitute, Path: ".env"}}
		}, "substitute requires path and key"},
		{"regenerate without command", func(d *model.PipelineDefinition) {
			d.Jobs[0].Edits = []model.FileEdit{{Kind: model.EditRegenerate}}
		}, "regenerate requires command"},
		{"constant guard", func(d *model.PipelineDefinition) {
			d.Jobs[0].Edits = []model.FileEdit{{Kind: model.EditRegenerate, Command: []string{"make"}, When: "yes"}}
		}, `when "yes" is constant`},
		{"malformed guard", func(d *model.PipelineDefinition) {
			d.Jobs[0].Edits = []model.FileEdit{{Kind: model.EditRegenerate, Command: []string{"make"}, When: "{{.Needs"}}
		}, "when: template"},
		{"bad auto merge", func(d *model.PipelineDefinition) {
			d.Jobs[0].AutoMerge = "fast-forward"
		}, `auto_merge "fast-forward" must be merge, squash or rebase`},
		{"notify without tag", func(d *model.PipelineDefinition) {
			d.Jobs[0].Notify = &model.NotifyDefinition{Message: "hi"}
		}, "notify requires tag and message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := base()
			tt.mutate(def)

			err := ValidatePipeline(def)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadPipeline_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chainupdate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validPipeline), 0o600))

	def, err := LoadPipeline(path)

	require.NoError(t, err)
	assert.Len(t, def.Jobs, 2)
}

func TestLoadPipeline_MissingFile(t *testing.T) {
	_, err := LoadPipeline(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.ErrorIs(t, err, os.ErrNotExist)
}
