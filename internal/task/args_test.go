package task_test

import (
	"testing"

	"github.com/clipforge/clipforge/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Args_ModeDefaultsToReplace(t *testing.T) {
	t.Parallel()

	assert.Equal(t, task.ModeReplace, task.Args{}.Mode())
	assert.Equal(t, task.ModeReplace, task.Args{"mode": "replace"}.Mode())
	assert.Equal(t, task.ModeReplace, task.Args{"mode": "garbage"}.Mode())
	assert.Equal(t, task.ModeAppend, task.Args{"mode": "append"}.Mode())
}

func Test_DecodeArgs_WeaklyTypedNumbers(t *testing.T) {
	t.Parallel()

	// JSON round-tripping turns every number in to float64; decoding
	// must still land them in integer fields.
	args := task.Args{"width": float64(1920), "height": float64(1080)}
	params, err := task.DecodeArgs[task.ResizeVideoParams](args)

	require.Nil(t, err)
	assert.Equal(t, 1920, params.Width)
	assert.Equal(t, 1080, params.Height)
}

func Test_EncodeArgs_MergesSharedKeys(t *testing.T) {
	t.Parallel()

	args, err := task.EncodeArgs(task.TrimParams{Start: 5, Duration: 10, OutputFormat: "mp4"}, task.ModeAppend, "parentfile")
	require.Nil(t, err)

	assert.Equal(t, task.ModeAppend, args.Mode())
	assert.Equal(t, "parentfile", args.Parent())
	assert.Equal(t, 10.0, args["duration"])

	decoded, err := task.DecodeArgs[task.TrimParams](args)
	require.Nil(t, err)
	assert.Equal(t, 5.0, decoded.Start)
	assert.Equal(t, "mp4", decoded.OutputFormat)
}

func Test_ASRAnalyzeParams_Defaults(t *testing.T) {
	t.Parallel()

	tunables := task.ASRAnalyzeParams{}.WithDefaults()
	assert.Equal(t, "-35dB", tunables.NoiseThreshold)
	assert.Equal(t, 0.4, tunables.MinSilenceDuration)
	assert.Equal(t, 300.0, tunables.MaxChunk)
	assert.Equal(t, 15.0, tunables.MinChunk)

	overridden := task.ASRAnalyzeParams{MaxChunk: 120}.WithDefaults()
	assert.Equal(t, 120.0, overridden.MaxChunk)
	assert.Equal(t, 15.0, overridden.MinChunk)
}
