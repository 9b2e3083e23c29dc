package ffmpeg_test

import (
	"testing"

	"github.com/clipforge/clipforge/internal/ffmpeg"
	"github.com/stretchr/testify/assert"
)

func Test_PlanChunks_NoSilenceSplitsAtMaxChunk(t *testing.T) {
	t.Parallel()

	segments := ffmpeg.PlanChunks(700, 300, 15, nil)

	assert.Len(t, segments, 3)
	assert.Equal(t, ffmpeg.Segment{Index: 0, Start: 0, Duration: 300}, segments[0])
	assert.Equal(t, ffmpeg.Segment{Index: 1, Start: 300, Duration: 300}, segments[1])
	assert.Equal(t, ffmpeg.Segment{Index: 2, Start: 600, Duration: 100}, segments[2])
}

func Test_PlanChunks_CutsAtSilenceStarts(t *testing.T) {
	t.Parallel()

	silences := []ffmpeg.SilenceEvent{
		{Start: 20, End: 21},
		{Start: 50, End: 50.5},
	}
	segments := ffmpeg.PlanChunks(60, 300, 15, silences)

	assert.Len(t, segments, 3)
	assert.Equal(t, 0.0, segments[0].Start)
	assert.Equal(t, 20.0, segments[0].Duration)
	assert.Equal(t, 20.0, segments[1].Start)
	assert.Equal(t, 30.0, segments[1].Duration)
	// Final tail is below min_chunk but longer than the edge margin.
	assert.Equal(t, 50.0, segments[2].Start)
	assert.Equal(t, 10.0, segments[2].Duration)
}

func Test_PlanChunks_SilenceNearEdgesIgnored(t *testing.T) {
	t.Parallel()

	silences := []ffmpeg.SilenceEvent{
		{Start: 2, End: 3},
		{Start: 58, End: 59},
	}
	segments := ffmpeg.PlanChunks(60, 300, 15, silences)

	assert.Len(t, segments, 1)
	assert.Equal(t, 0.0, segments[0].Start)
	assert.Equal(t, 60.0, segments[0].Duration)
}

func Test_PlanChunks_ShortTailDropped(t *testing.T) {
	t.Parallel()

	// 304s at max 300: the 4s remainder is under the edge margin and
	// must not become its own segment.
	segments := ffmpeg.PlanChunks(304, 300, 15, nil)

	assert.Len(t, segments, 1)
	assert.Equal(t, 300.0, segments[0].Duration)
}

func Test_PlanChunks_Invariants(t *testing.T) {
	t.Parallel()

	silences := []ffmpeg.SilenceEvent{
		{Start: 17.333}, {Start: 33.91}, {Start: 120.5}, {Start: 121.2}, {Start: 290},
	}
	maxChunk, minChunk := 90.0, 15.0
	segments := ffmpeg.PlanChunks(300, maxChunk, minChunk, silences)
	assert.NotEmpty(t, segments)

	for i, segment := range segments {
		assert.Equal(t, i, segment.Index)
		assert.LessOrEqual(t, segment.Duration, maxChunk)
		if i < len(segments)-1 {
			assert.GreaterOrEqual(t, segment.Duration, minChunk)
			assert.InDelta(t, segment.Start+segment.Duration, segments[i+1].Start, 0.001)
		} else {
			assert.Greater(t, segment.Duration, 5.0)
		}
	}
}

func Test_ParseSilenceEvents_PairsStartsWithEnds(t *testing.T) {
	t.Parallel()

	stderr := `
[silencedetect @ 0x55d] silence_start: 12.52
[silencedetect @ 0x55d] silence_end: 13.102 | silence_duration: 0.582
[silencedetect @ 0x55d] silence_start: 40
`
	events := ffmpeg.ParseSilenceEvents(stderr)

	assert.Len(t, events, 2)
	assert.Equal(t, 12.52, events[0].Start)
	assert.Equal(t, 13.102, events[0].End)
	assert.Equal(t, 40.0, events[1].Start)
	assert.Equal(t, 0.0, events[1].End)
}

func Test_ParseSceneTimes_ExtractsTimestamps(t *testing.T) {
	t.Parallel()

	stderr := `
[Parsed_showinfo_1 @ 0x1] n: 0 pts: 12800 pts_time:0.512 duration_time:0.04
[Parsed_showinfo_1 @ 0x1] n: 1 pts: 76800 pts_time:3.072 duration_time:0.04
`
	times := ffmpeg.ParseSceneTimes(stderr)

	assert.Equal(t, []float64{0.512, 3.072}, times)
}
