package ffmpeg

import (
	"regexp"
	"strconv"
)

// Parsers for the analysis operations, which extract their results
// from the binary's stderr rather than from an output file.

var (
	silenceStartPattern = regexp.MustCompile(`silence_start:\s*(-?[\d.]+)`)
	silenceEndPattern   = regexp.MustCompile(`silence_end:\s*(-?[\d.]+)`)
	scenePtsPattern     = regexp.MustCompile(`pts_time:\s*([\d.]+)`)
)

// SilenceEvent is one detected silence window. End is zero when the
// detector reported a start without a matching end (silence running
// to EOF).
type SilenceEvent struct {
	Start float64 `json:"start"`
	End   float64 `json:"end,omitempty"`
}

// ParseSilenceEvents extracts silence windows from a silencedetect
// stderr transcript. Starts and ends are paired in order of
// appearance.
func ParseSilenceEvents(stderr string) []SilenceEvent {
	starts := silenceStartPattern.FindAllStringSubmatch(stderr, -1)
	ends := silenceEndPattern.FindAllStringSubmatch(stderr, -1)

	events := make([]SilenceEvent, 0, len(starts))
	for i, match := range starts {
		start, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}

		event := SilenceEvent{Start: start}
		if i < len(ends) {
			if end, err := strconv.ParseFloat(ends[i][1], 64); err == nil {
				event.End = end
			}
		}

		events = append(events, event)
	}

	return events
}

// ParseSceneTimes extracts the timestamps of detected scene changes
// from a select+showinfo stderr transcript.
func ParseSceneTimes(stderr string) []float64 {
	matches := scenePtsPattern.FindAllStringSubmatch(stderr, -1)
	times := make([]float64, 0, len(matches))
	for _, match := range matches {
		if t, err := strconv.ParseFloat(match[1], 64); err == nil {
			times = append(times, t)
		}
	}

	return times
}
