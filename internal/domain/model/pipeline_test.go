package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineState_Transition(t *testing.T) {
	tests := []struct {
		from, to PipelineState
		ok       bool
	}{
		{StateIdle, StateTriggered, true},
		{StateIdle, StateFetchingArtifacts, false},
		{StateTriggered, StateDone, true},
		{StateTriggered, StateMutating, false},
		{StateFetchingArtifacts, StateFetchingArtifacts, true},
		{StateFetchingArtifacts, StatePublishing, false},
		{StateMutating, StatePublishing, true},
		{StatePublishing, StateNotifying, true},
		{StatePublishing, StateFetchingArtifacts, true},
		{StateNotifying, StateFetchingArtifacts, true},
		{StateNotifying, StateMutating, false},
		{StateDone, StateIdle, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := tt.from.Transition(tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, got)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.from, got)
		})
	}
}

func TestJobResult_Output(t *testing.T) {
	r := JobResult{Job: "docker", Outcome: JobPublished, HeadSHA: "abc", PRURL: "u", PRNumber: 3, Title: "t"}

	assert.Equal(t, JobOutput{Job: "docker", HeadSHA: "abc", PRURL: "u", PRNumber: 3}, r.Output())
}

func TestMergeMethod_Valid(t *testing.T) {
	for _, m := range []MergeMethod{"", MergeMethodMerge, MergeMethodSquash, MergeMethodRebase} {
		assert.True(t, m.Valid(), m)
	}
	assert.False(t, MergeMethod("fast-forward").Valid())
}

func TestEditKind_Valid(t *testing.T) {
	assert.True(t, EditSubstitute.Valid())
	assert.True(t, EditRegenerate.Valid())
	assert.False(t, EditKind("patch").Valid())
}
