package ffmpeg

import (
	"fmt"
	"slices"

	"github.com/clipforge/clipforge/pkg/logger"
)

// Container/codec compatibility rules. Incompatible transcode
// combinations are rejected before any process spawn; mkv is the
// permissive container and only warns on unusual codecs.

var containerVideoCodecs = map[string][]string{
	"mp4":  {"h264", "hevc", "mpeg4"},
	"mov":  {"h264", "hevc", "mpeg4"},
	"mkv":  {"h264", "hevc", "vp9", "av1"},
	"webm": {"vp8", "vp9", "av1"},
	"avi":  {"mpeg4", "msmpeg4", "libxvid"},
}

var containerAudioCodecs = map[string][]string{
	"mp4":  {"aac", "mp3"},
	"mov":  {"aac", "mp3"},
	"mkv":  {"aac", "mp3", "ac3", "opus", "flac"},
	"webm": {"opus", "vorbis"},
	"avi":  {"mp3", "ac3"},
}

var videoEncoders = map[string]string{
	"h264": "libx264",
	"hevc": "libx265",
	"vp8":  "libvpx",
	"vp9":  "libvpx-vp9",
	"av1":  "libaom-av1",
}

var audioEncoders = map[string]string{
	"aac":  "aac",
	"mp3":  "libmp3lame",
	"ac3":  "ac3",
	"opus": "libopus",
	"flac": "flac",
}

func encoderForVideoCodec(codec string) string {
	if encoder, ok := videoEncoders[codec]; ok {
		return encoder
	}

	return codec
}

func encoderForAudioCodec(codec string) string {
	if encoder, ok := audioEncoders[codec]; ok {
		return encoder
	}

	return codec
}

// ValidateMux checks that the requested codec overrides can legally
// be muxed in to the target container. Empty codec strings are
// container defaults and always pass.
func ValidateMux(container string, videoCodec string, audioCodec string) error {
	allowedVideo, ok := containerVideoCodecs[container]
	if !ok {
		return fmt.Errorf("unsupported container %q", container)
	}
	allowedAudio := containerAudioCodecs[container]

	warnOnly := container == "mkv"

	if videoCodec != "" && !slices.Contains(allowedVideo, videoCodec) {
		if warnOnly {
			log.Emit(logger.WARNING, "Video codec %s is unusual for container %s\n", videoCodec, container)
		} else {
			return fmt.Errorf("video codec %q cannot be muxed in to container %q", videoCodec, container)
		}
	}

	if audioCodec != "" && !slices.Contains(allowedAudio, audioCodec) {
		if warnOnly {
			log.Emit(logger.WARNING, "Audio codec %s is unusual for container %s\n", audioCodec, container)
		} else {
			return fmt.Errorf("audio codec %q cannot be muxed in to container %q", audioCodec, container)
		}
	}

	return nil
}

// AddAudioCodecArgs chooses the audio codec arguments for the
// add-audio operation: stream-copy when the source audio codec is
// already legal for the target container, otherwise re-encode to the
// container's preferred codec.
func AddAudioCodecArgs(container string, sourceAudioCodec string) []string {
	copyArgs := []string{"-c:a", "copy"}

	switch container {
	case "mp4", "mov":
		if sourceAudioCodec == "aac" || sourceAudioCodec == "mp3" {
			return copyArgs
		}
		return []string{"-c:a", "aac", "-b:a", "192k"}
	case "webm":
		if sourceAudioCodec == "opus" {
			return copyArgs
		}
		return []string{"-c:a", "libopus", "-b:a", "128k"}
	case "mkv":
		if slices.Contains([]string{"aac", "mp3", "flac", "opus"}, sourceAudioCodec) {
			return copyArgs
		}
		return []string{"-c:a", "aac", "-b:a", "192k"}
	case "avi":
		if sourceAudioCodec == "mp3" || sourceAudioCodec == "pcm_s16le" {
			return copyArgs
		}
		return []string{"-c:a", "libmp3lame"}
	}

	return []string{"-c:a", "aac", "-b:a", "192k"}
}
