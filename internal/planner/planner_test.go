package planner_test

import (
	"testing"

	"github.com/clipforge/clipforge/internal/planner"
	"github.com/clipforge/clipforge/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_PlanChain_ReplaceOnlyStepsReuseRootFile(t *testing.T) {
	t.Parallel()

	tasks, err := planner.PlanChain("root1234", []planner.ChainStep{
		{Operation: task.OpTrim, Params: task.TrimParams{Start: 0, Duration: 5, OutputFormat: "mp4"}, Mode: task.ModeReplace},
		{Operation: task.OpResizeVideo, Params: task.ResizeVideoParams{Width: 640, Height: 360}, Mode: task.ModeReplace},
	})
	require.Nil(t, err)
	require.Len(t, tasks, 2)

	for _, planned := range tasks {
		assert.Equal(t, "root1234", planned.FileID)
		assert.Equal(t, task.StatusQueued, planned.Status)
		assert.Empty(t, planned.TaskArgs().Parent())
		assert.Equal(t, task.ModeReplace, planned.TaskArgs().Mode())
	}
}

func Test_PlanChain_AppendStepForksAndLaterStepsFollow(t *testing.T) {
	t.Parallel()

	tasks, err := planner.PlanChain("root1234", []planner.ChainStep{
		{Operation: task.OpExtractAudio, Params: task.ExtractAudioParams{AudioFormat: "mp3"}, Mode: task.ModeAppend},
		{Operation: task.OpTranscode, Params: task.TranscodeParams{Format: "mp4"}, Mode: task.ModeReplace},
	})
	require.Nil(t, err)
	require.Len(t, tasks, 2)

	first, second := tasks[0], tasks[1]

	// Every task in the chain is owned by the root file so the
	// scheduler serializes them.
	assert.Equal(t, "root1234", first.FileID)
	assert.Equal(t, "root1234", second.FileID)

	outputID := first.TaskArgs().OutputID()
	assert.NotEmpty(t, outputID)
	assert.NotEqual(t, "root1234", outputID)

	// The second step reads the forked output, not the root.
	assert.Equal(t, outputID, second.TaskArgs().Parent())
	assert.Equal(t, task.ModeReplace, second.TaskArgs().Mode())
}

func Test_PlanChain_ArtifactOperationsDoNotAdvanceWorkingFile(t *testing.T) {
	t.Parallel()

	tasks, err := planner.PlanChain("root1234", []planner.ChainStep{
		{Operation: task.OpASRNormalize, Mode: task.ModeReplace},
		{Operation: task.OpASRAnalyze, Params: task.ASRAnalyzeParams{}},
		{Operation: task.OpASRSegment},
	})
	require.Nil(t, err)
	require.Len(t, tasks, 3)

	for _, planned := range tasks {
		assert.Empty(t, planned.TaskArgs().Parent())
		assert.Empty(t, planned.TaskArgs().OutputID())
	}
}

func Test_PlanChain_RejectsEmptyChain(t *testing.T) {
	t.Parallel()

	_, err := planner.PlanChain("root1234", nil)
	assert.Error(t, err)
}

func Test_PlanBulk_OneTaskPerFile(t *testing.T) {
	t.Parallel()

	tasks, err := planner.PlanBulk(
		[]string{"filea", "fileb", "filec"},
		task.OpTranscode,
		task.TranscodeParams{Format: "mkv"},
		task.ModeReplace,
	)
	require.Nil(t, err)
	require.Len(t, tasks, 3)

	seenCodes := map[string]struct{}{}
	for i, fileID := range []string{"filea", "fileb", "filec"} {
		assert.Equal(t, fileID, tasks[i].FileID)
		assert.Equal(t, task.OpTranscode, tasks[i].Operation)
		assert.Empty(t, tasks[i].TaskArgs().Parent())
		seenCodes[tasks[i].Code] = struct{}{}
	}
	assert.Len(t, seenCodes, 3)
}
