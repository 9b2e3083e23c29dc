package ffmpeg_test

import (
	"strings"
	"testing"

	"github.com/clipforge/clipforge/internal/ffmpeg"
	"github.com/stretchr/testify/assert"
)

func Test_TrimArgs_FastPathUsesStreamCopy(t *testing.T) {
	t.Parallel()

	args := ffmpeg.TrimArgs("in.mp4", "out.mp4", 5, 10, false)
	assert.Equal(t, []string{"-i", "in.mp4", "-ss", "5", "-t", "10", "-c", "copy", "-y", "out.mp4"}, args)
}

func Test_TrimArgs_ExactPathReencodes(t *testing.T) {
	t.Parallel()

	args := ffmpeg.TrimArgs("in.mp4", "out.mp4", 2.5, 0.5, true)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-ss 2.5 -t 0.5")
	assert.Contains(t, joined, "-c:v libx264 -c:a aac")
	assert.NotContains(t, joined, "-c copy")
}

func Test_TrimEndArgs_KeepsLeadingDuration(t *testing.T) {
	t.Parallel()

	args := ffmpeg.TrimEndArgs("in.mkv", "out.mkv", 42.125)
	assert.Equal(t, []string{"-i", "in.mkv", "-t", "42.125", "-c", "copy", "-y", "out.mkv"}, args)
}

func Test_ExtractAudioArgs_CodecSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format   string
		expected []string
	}{
		{"mp3", []string{"-c:a", "libmp3lame", "-q:a", "2"}},
		{"aac", []string{"-c:a", "aac", "-b:a", "192k"}},
		{"m4a", []string{"-c:a", "aac", "-b:a", "192k"}},
		{"wav", []string{"-c:a", "pcm_s16le"}},
		{"flac", []string{"-c:a", "flac"}},
		{"opus", []string{"-c:a", "libopus", "-b:a", "128k"}},
	}

	for _, test := range tests {
		t.Run(test.format, func(t *testing.T) {
			args, err := ffmpeg.ExtractAudioArgs("in.mp4", "out."+test.format, test.format)
			assert.Nil(t, err)
			assert.Contains(t, args, "-vn")
			assert.Contains(t, strings.Join(args, " "), strings.Join(test.expected, " "))
		})
	}
}

func Test_ExtractAudioArgs_UnknownFormatRejected(t *testing.T) {
	t.Parallel()

	_, err := ffmpeg.ExtractAudioArgs("in.mp4", "out.ogg", "ogg")
	assert.Error(t, err)
}

func Test_AddAudioArgs_MapsStreamsAndCopiesVideo(t *testing.T) {
	t.Parallel()

	args := ffmpeg.AddAudioArgs("video.mp4", "audio.mp3", "out.mp4", []string{"-c:a", "copy"})
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i video.mp4 -i audio.mp3")
	assert.Contains(t, joined, "-c:v copy")
	assert.Contains(t, joined, "-map 0:v:0 -map 1:a:0 -shortest")
}

func Test_MergeArgs_BuildsConcatFilterForEveryInput(t *testing.T) {
	t.Parallel()

	args := ffmpeg.MergeArgs([]string{"a.mp4", "b.mkv", "c.mov"}, "out.mp4", 1280, 720)
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-i a.mp4 -i b.mkv -i c.mov")
	assert.Contains(t, joined, "concat=n=3:v=1:a=1[outv][outa]")
	assert.Contains(t, joined, "scale=1280:720:force_original_aspect_ratio=decrease")
	assert.Contains(t, joined, "pad=1280:720:(ow-iw)/2:(oh-ih)/2")
	assert.Contains(t, joined, "-preset fast -crf 22")
}

func Test_DashArgs_SegmenterFlags(t *testing.T) {
	t.Parallel()

	joined := strings.Join(ffmpeg.DashArgs("in.mp4", "dash/manifest.mpd"), " ")
	assert.Contains(t, joined, "-f dash")
	assert.Contains(t, joined, "-seg_duration 4")
	assert.Contains(t, joined, "-use_timeline 1")
	assert.Contains(t, joined, "-use_template 1")
	assert.Contains(t, joined, "id=0,streams=v id=1,streams=a")
}

func Test_ASRNormalizeArgs_MonoSixteenKhzLoudnorm(t *testing.T) {
	t.Parallel()

	joined := strings.Join(ffmpeg.ASRNormalizeArgs("in.mp4", "out.wav"), " ")
	assert.Contains(t, joined, "-ac 1")
	assert.Contains(t, joined, "-ar 16000")
	assert.Contains(t, joined, "loudnorm=I=-16:TP=-1.5:LRA=11")
}

func Test_SilenceDetectArgs_EmbedsTunables(t *testing.T) {
	t.Parallel()

	joined := strings.Join(ffmpeg.SilenceDetectArgs("in.wav", "-35dB", 0.4), " ")
	assert.Contains(t, joined, "silencedetect=n=-35dB:d=0.4")
	assert.Contains(t, joined, "-f null")
}

func Test_ValidateMux_CompatibilityMatrix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		container  string
		videoCodec string
		audioCodec string
		wantErr    bool
	}{
		{"mp4 with h264/aac", "mp4", "h264", "aac", false},
		{"mp4 rejects vp9", "mp4", "vp9", "", true},
		{"mp4 rejects opus audio", "mp4", "", "opus", true},
		{"webm with vp9/opus", "webm", "vp9", "opus", false},
		{"webm rejects h264", "webm", "h264", "", true},
		{"avi rejects aac", "avi", "mpeg4", "aac", true},
		{"mkv warns but accepts anything", "mkv", "theora", "wavpack", false},
		{"no overrides always valid", "mov", "", "", false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := ffmpeg.ValidateMux(test.container, test.videoCodec, test.audioCodec)
			if test.wantErr {
				assert.Error(t, err)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}

func Test_AddAudioCodecArgs_PerContainerSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		container   string
		sourceCodec string
		expected    string
	}{
		{"mp4", "aac", "-c:a copy"},
		{"mp4", "flac", "-c:a aac -b:a 192k"},
		{"webm", "opus", "-c:a copy"},
		{"webm", "aac", "-c:a libopus -b:a 128k"},
		{"mkv", "flac", "-c:a copy"},
		{"mkv", "vorbis", "-c:a aac -b:a 192k"},
		{"avi", "mp3", "-c:a copy"},
		{"avi", "aac", "-c:a libmp3lame"},
	}

	for _, test := range tests {
		t.Run(test.container+"_"+test.sourceCodec, func(t *testing.T) {
			joined := strings.Join(ffmpeg.AddAudioCodecArgs(test.container, test.sourceCodec), " ")
			assert.Equal(t, test.expected, joined)
		})
	}
}
