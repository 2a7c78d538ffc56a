package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptWalkthrough(t *testing.T) {
	ctx := context.Background()
	script := &Script{
		LeadPolls: 2,
		Calls: []ToolCall{
			{ID: "call-1", Name: EmitSignalTool, Arguments: `{"title":"First"}`},
			{ID: "call-2", Name: EmitSignalTool, Arguments: `{"title":"Second"}`},
		},
		Output: "two findings",
	}

	id, err := script.StartRun(ctx, RunRequest{Topic: "solar"})
	require.NoError(t, err)

	// Lead-in polls report in_progress.
	for i := 0; i < 2; i++ {
		run, err := script.GetRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, RunInProgress, run.State)
	}

	// First action.
	run, err := script.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, RunRequiresAction, run.State)
	require.Len(t, run.PendingCalls, 1)
	assert.Equal(t, "call-1", run.PendingCalls[0].ID)

	// Same action until answered.
	run, _ = script.GetRun(ctx, id)
	assert.Equal(t, RunRequiresAction, run.State)

	require.NoError(t, script.SubmitToolOutputs(ctx, id, []ToolOutput{{CallID: "call-1", Output: "ok"}}))

	run, _ = script.GetRun(ctx, id)
	require.Equal(t, RunRequiresAction, run.State)
	assert.Equal(t, "call-2", run.PendingCalls[0].ID)

	require.NoError(t, script.SubmitToolOutputs(ctx, id, []ToolOutput{{CallID: "call-2", Output: "ok"}}))

	run, _ = script.GetRun(ctx, id)
	assert.Equal(t, RunCompleted, run.State)
	assert.Equal(t, "two findings", run.Output)
}

func TestScriptWrongCallIDLeavesRunParked(t *testing.T) {
	ctx := context.Background()
	script := &Script{Calls: []ToolCall{{ID: "call-1", Name: "magic_wand"}}}

	id, err := script.StartRun(ctx, RunRequest{Topic: "solar"})
	require.NoError(t, err)

	require.NoError(t, script.SubmitToolOutputs(ctx, id, []ToolOutput{{CallID: "other", Output: "ok"}}))

	run, err := script.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, RunRequiresAction, run.State, "unanswered action should keep the run parked")
}

func TestScriptFailAfter(t *testing.T) {
	ctx := context.Background()
	script := &Script{
		Calls: []ToolCall{
			{ID: "call-1", Name: EmitSignalTool, Arguments: `{"title":"Only"}`},
			{ID: "call-2", Name: EmitSignalTool, Arguments: `{"title":"Never"}`},
		},
		FailAfter:  1,
		FailReason: "model crashed",
	}

	id, _ := script.StartRun(ctx, RunRequest{Topic: "solar"})
	require.NoError(t, script.SubmitToolOutputs(ctx, id, []ToolOutput{{CallID: "call-1", Output: "ok"}}))

	run, err := script.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, run.State)
	assert.Equal(t, "model crashed", run.FailReason)
}

func TestScriptCancel(t *testing.T) {
	ctx := context.Background()
	script := &Script{Calls: []ToolCall{{ID: "call-1", Name: EmitSignalTool}}}

	id, _ := script.StartRun(ctx, RunRequest{Topic: "solar"})
	require.NoError(t, script.CancelRun(ctx, id))

	run, err := script.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, RunCancelled, run.State)
}
