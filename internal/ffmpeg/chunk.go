package ffmpeg

import (
	"math"
	"sort"
)

// Silence-aware chunk planning for the ASR pipeline. Cuts are placed
// at silence starts so chunks begin and end in quiet, subject to a
// minimum and maximum chunk length.

// edgeMargin excludes silence cuts too close to either end of the
// media, and is the minimum length of the final tail segment.
const edgeMargin = 5.0

type Segment struct {
	Index    int     `json:"index"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// PlanChunks walks the candidate cut list (silence starts bounded by
// the media edges) and emits segments of at least minChunk and at
// most maxChunk seconds. A final tail shorter than minChunk is
// emitted as long as it exceeds the edge margin.
func PlanChunks(duration float64, maxChunk float64, minChunk float64, silences []SilenceEvent) []Segment {
	cuts := []float64{0}
	for _, silence := range silences {
		if silence.Start > edgeMargin && silence.Start < duration-edgeMargin {
			cuts = append(cuts, silence.Start)
		}
	}
	cuts = append(cuts, duration)
	sort.Float64s(cuts)

	segments := make([]Segment, 0)
	start := 0.0
	index := 0
	for _, cut := range cuts {
		// A gap longer than maxChunk yields several segments up to
		// the same cut.
		for cut-start >= minChunk {
			end := math.Min(start+maxChunk, cut)
			segments = append(segments, Segment{
				Index:    index,
				Start:    round3(start),
				Duration: round3(end - start),
			})
			start = end
			index++
		}
	}

	if duration-start > edgeMargin {
		segments = append(segments, Segment{
			Index:    index,
			Start:    round3(start),
			Duration: round3(duration - start),
		})
	}

	return segments
}
