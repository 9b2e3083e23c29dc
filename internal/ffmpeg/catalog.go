package ffmpeg

import (
	"fmt"
	"strconv"
)

// The operation catalog: one pure argv builder per operation. Each
// takes the resolved local input path(s), the local output path and
// the operation parameters, and returns the exact argument vector for
// the external binary. Validation against probed stream presence
// happens in the executor; these builders assume their preconditions
// hold.

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// TranscodeArgs converts the container and optionally overrides the
// video/audio codecs. Empty codec strings fall through to the
// encoder's container defaults.
func TranscodeArgs(input string, output string, videoCodec string, audioCodec string) []string {
	args := []string{"-i", input}
	if videoCodec != "" {
		args = append(args, "-c:v", encoderForVideoCodec(videoCodec))
	}
	if audioCodec != "" {
		args = append(args, "-c:a", encoderForAudioCodec(audioCodec))
	}

	return append(args, "-y", output)
}

func ResizeVideoArgs(input string, output string, width int, height int) []string {
	return []string{
		"-i", input,
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-y", output,
	}
}

// TrimArgs cuts [start, start+duration). The default stream-copy path
// is fast but snaps to keyframes; exact=true re-encodes for
// frame-accurate cuts.
func TrimArgs(input string, output string, start float64, duration float64, exact bool) []string {
	args := []string{
		"-i", input,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
	}
	if exact {
		args = append(args, "-c:v", "libx264", "-c:a", "aac")
	} else {
		args = append(args, "-c", "copy")
	}

	return append(args, "-y", output)
}

// TrimEndArgs keeps the first keepDuration seconds of the input. The
// executor computes keepDuration from the probed total minus the cut.
func TrimEndArgs(input string, output string, keepDuration float64) []string {
	return []string{
		"-i", input,
		"-t", formatSeconds(keepDuration),
		"-c", "copy",
		"-y", output,
	}
}

// ExtractAudioArgs drops the video stream and encodes the audio for
// the requested format.
func ExtractAudioArgs(input string, output string, audioFormat string) ([]string, error) {
	var codecArgs []string
	switch audioFormat {
	case "mp3":
		codecArgs = []string{"-c:a", "libmp3lame", "-q:a", "2"}
	case "aac", "m4a":
		codecArgs = []string{"-c:a", "aac", "-b:a", "192k"}
	case "wav":
		codecArgs = []string{"-c:a", "pcm_s16le"}
	case "flac":
		codecArgs = []string{"-c:a", "flac"}
	case "opus":
		codecArgs = []string{"-c:a", "libopus", "-b:a", "128k"}
	default:
		return nil, fmt.Errorf("unsupported audio format %q", audioFormat)
	}

	args := append([]string{"-i", input, "-vn"}, codecArgs...)
	return append(args, "-y", output), nil
}

func RemoveAudioArgs(input string, output string) []string {
	return []string{"-i", input, "-an", "-c:v", "copy", "-y", output}
}

// AddAudioArgs muxes the video stream of the first input with the
// audio stream of the second. audioCodecArgs comes from the container
// compatibility rules (see AddAudioCodecArgs).
func AddAudioArgs(videoInput string, audioInput string, output string, audioCodecArgs []string) []string {
	args := []string{
		"-i", videoInput,
		"-i", audioInput,
		"-c:v", "copy",
	}
	args = append(args, audioCodecArgs...)
	return append(args,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		"-y", output,
	)
}

// MergeArgs concatenates N inputs, normalising every input to the
// reference resolution (the first input's) with aspect-preserving
// scale and centred padding.
func MergeArgs(inputs []string, output string, width int, height int) []string {
	args := make([]string, 0, len(inputs)*2+8)
	for _, input := range inputs {
		args = append(args, "-i", input)
	}

	filter := ""
	for i := range inputs {
		filter += fmt.Sprintf(
			"[%d:v:0]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1[v%d];",
			i, width, height, width, height, i,
		)
	}
	for i := range inputs {
		filter += fmt.Sprintf("[v%d][%d:a:0]", i, i)
	}
	filter += fmt.Sprintf("concat=n=%d:v=1:a=1[outv][outa]", len(inputs))

	return append(args,
		"-filter_complex", filter,
		"-map", "[outv]",
		"-map", "[outa]",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-c:a", "aac",
		"-b:a", "192k",
		"-y", output,
	)
}

func ExtractThumbnailArgs(input string, output string, timestamp float64) []string {
	return []string{
		"-ss", formatSeconds(timestamp),
		"-i", input,
		"-vframes", "1",
		"-update", "1",
		"-q:v", "2",
		"-y", output,
	}
}

// DashArgs segments the input for DASH delivery. The output path is
// the manifest (.mpd); segments land beside it.
func DashArgs(input string, outputManifest string) []string {
	return []string{
		"-i", input,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-preset", "fast",
		"-crf", "23",
		"-f", "dash",
		"-seg_duration", "4",
		"-use_timeline", "1",
		"-use_template", "1",
		"-adaptation_sets", "id=0,streams=v id=1,streams=a",
		"-y", outputManifest,
	}
}

// ASRNormalizeArgs produces the 16kHz mono loudness-normalised WAV
// that the downstream ASR operations expect as their input.
func ASRNormalizeArgs(input string, output string) []string {
	return []string{
		"-i", input,
		"-ac", "1",
		"-ar", "16000",
		"-af", "loudnorm=I=-16:TP=-1.5:LRA=11",
		"-y", output,
	}
}

// SilenceDetectArgs runs the silence detector over the input with no
// output muxing; the events are parsed from stderr.
func SilenceDetectArgs(input string, noiseThreshold string, minSilenceDuration float64) []string {
	return []string{
		"-i", input,
		"-af", fmt.Sprintf("silencedetect=n=%s:d=%s", noiseThreshold, formatSeconds(minSilenceDuration)),
		"-f", "null",
		"-",
	}
}

// SceneDetectArgs selects frames whose scene-change score exceeds the
// threshold; showinfo prints each selected frame's timestamp to
// stderr.
func SceneDetectArgs(input string, threshold float64) []string {
	return []string{
		"-i", input,
		"-vf", fmt.Sprintf("select='gt(scene,%s)',showinfo", formatSeconds(threshold)),
		"-f", "null",
		"-",
	}
}

// SegmentCopyArgs cuts [start, start+duration) with stream copy. Used
// by the ASR and vision segmenters; assumes the input container
// supports copy-cutting at the requested points (the normalized WAV
// does).
func SegmentCopyArgs(input string, output string, start float64, duration float64) []string {
	return []string{
		"-i", input,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-c", "copy",
		"-y", output,
	}
}
