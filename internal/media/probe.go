package media

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/floostack/transcoder/ffmpeg"
)

type Kind string

const (
	Video Kind = "video"
	Audio Kind = "audio"
	Image Kind = "image"
)

// FileMetadata is the structured metadata extracted from a probed
// file. It is persisted verbatim (JSON) on the owning file row, and
// the stream presence flags drive operation preconditions (e.g.
// extract-audio requires HasAudio).
type FileMetadata struct {
	Kind       Kind    `json:"kind"`
	Container  string  `json:"container,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	BitRate    string  `json:"bit_rate,omitempty"`
	HasVideo   bool    `json:"has_video"`
	HasAudio   bool    `json:"has_audio"`
}

type Prober interface {
	Probe(path string) (*FileMetadata, error)
}

type prober struct {
	ffprobeBinPath string
}

func NewProber(ffprobeBinPath string) *prober {
	return &prober{ffprobeBinPath: ffprobeBinPath}
}

// Probe extracts structured metadata from the file at the path
// provided using ffprobe.
func (p *prober) Probe(path string) (*FileMetadata, error) {
	cfg := ffmpeg.Config{FfprobeBinPath: p.ffprobeBinPath}
	transcoder := ffmpeg.New(&cfg).Input(path)
	metadata, err := transcoder.GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to extract file metadata information using ffprobe: %w", err)
	}

	result := &FileMetadata{
		Container: metadata.GetFormat().GetFormatName(),
		BitRate:   metadata.GetFormat().GetBitRate(),
	}

	if duration, err := strconv.ParseFloat(metadata.GetFormat().GetDuration(), 64); err == nil {
		result.Duration = duration
	}

	for _, stream := range metadata.GetStreams() {
		switch stream.GetCodecType() {
		case "video":
			result.HasVideo = true
			result.VideoCodec = stream.GetCodecName()
			result.Width = stream.GetWidth()
			result.Height = stream.GetHeight()
		case "audio":
			result.HasAudio = true
			result.AudioCodec = stream.GetCodecName()
		}
	}

	result.Kind = classify(path, result)
	return result, nil
}

// classify derives the broad media kind. Extension wins for the image
// formats (ffprobe reports stills as single-frame video streams);
// otherwise the stream presence decides.
func classify(path string, meta *FileMetadata) Kind {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if _, ok := imageExtensions[ext]; ok {
		return Image
	}

	if meta.HasVideo {
		return Video
	}

	return Audio
}
