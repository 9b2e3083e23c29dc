package task

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Typed parameter structs for each operation. Task args are persisted
// as an untyped JSON bag; these are the statically-enumerated shapes
// the executor and the HTTP layer decode them in to. The validate
// tags are enforced at the HTTP boundary, before a task row is
// created.

type TranscodeParams struct {
	Format     string `json:"format" validate:"required,oneof=mp4 mkv webm mov avi"`
	VideoCodec string `json:"video_codec" validate:"omitempty,oneof=h264 hevc vp9 av1"`
	AudioCodec string `json:"audio_codec" validate:"omitempty,oneof=aac mp3 ac3 opus flac"`
}

type ResizeVideoParams struct {
	Width  int `json:"width" validate:"required,gt=0"`
	Height int `json:"height" validate:"required,gt=0"`
}

type TrimParams struct {
	Start        float64 `json:"start" validate:"gte=0"`
	Duration     float64 `json:"duration" validate:"required,gt=0"`
	OutputFormat string  `json:"output_format" validate:"required,oneof=mp4 mkv webm mov avi"`
	Exact        bool    `json:"exact"`
}

// TrimEndParams cuts the trailing Duration seconds off the media.
type TrimEndParams struct {
	Duration float64 `json:"duration" validate:"required,gt=0"`
}

type ExtractAudioParams struct {
	AudioFormat string `json:"audio_format" validate:"required,oneof=mp3 m4a aac flac wav opus"`
}

type RemoveAudioParams struct{}

type AddAudioParams struct {
	AudioFileID string `json:"audio_file_id" validate:"required"`
}

type MergeMediaParams struct {
	FileIDs      []string `json:"file_ids" validate:"required,min=2"`
	OutputFormat string   `json:"output_format" validate:"required,oneof=mp4 mkv webm mov avi"`
}

type ExtractThumbnailParams struct {
	Timestamp   float64 `json:"timestamp" validate:"gte=0"`
	ImageFormat string  `json:"image_format" validate:"omitempty,oneof=jpg jpeg png webp gif avif svg"`
}

type DashParams struct{}

type ASRNormalizeParams struct{}

type ASRAnalyzeParams struct {
	NoiseThreshold     string  `json:"noise_threshold"`
	MinSilenceDuration float64 `json:"min_silence_duration" validate:"omitempty,gt=0"`
	MaxChunk           float64 `json:"max_chunk" validate:"omitempty,gt=0"`
	MinChunk           float64 `json:"min_chunk" validate:"omitempty,gt=0"`
}

// WithDefaults fills the unset analysis tunables.
func (p ASRAnalyzeParams) WithDefaults() ASRAnalyzeParams {
	if p.NoiseThreshold == "" {
		p.NoiseThreshold = "-35dB"
	}
	if p.MinSilenceDuration == 0 {
		p.MinSilenceDuration = 0.4
	}
	if p.MaxChunk == 0 {
		p.MaxChunk = 300
	}
	if p.MinChunk == 0 {
		p.MinChunk = 15
	}

	return p
}

type ASRSegmentParams struct{}

type VisionAnalyzeParams struct {
	SceneThreshold float64 `json:"scene_threshold" validate:"omitempty,gt=0,lte=1"`
}

func (p VisionAnalyzeParams) WithDefaults() VisionAnalyzeParams {
	if p.SceneThreshold == 0 {
		p.SceneThreshold = 0.4
	}

	return p
}

type VisionSegmentParams struct{}

// DecodeArgs decodes the persisted argument bag in to the typed
// parameter struct for an operation. Decoding is weakly typed because
// JSON round-tripping turns all numbers in to float64.
func DecodeArgs[T any](args Args) (*T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to construct args decoder: %w", err)
	}

	if err := decoder.Decode(map[string]any(args)); err != nil {
		return nil, fmt.Errorf("failed to decode operation args: %w", err)
	}

	return &out, nil
}

// EncodeArgs converts a typed parameter struct back in to the
// persistable argument bag, merging in the shared mode/parent keys.
func EncodeArgs(params any, mode Mode, parent string) (Args, error) {
	out := map[string]any{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &out,
		TagName: "json",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to construct args encoder: %w", err)
	}

	if params != nil {
		if err := decoder.Decode(params); err != nil {
			return nil, fmt.Errorf("failed to encode operation args: %w", err)
		}
	}

	out["mode"] = string(mode)
	if parent != "" {
		out["parent"] = parent
	}

	return Args(out), nil
}
