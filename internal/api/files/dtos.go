package files

import (
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/task"
)

type statusDto struct {
	FileID string `json:"fileId"`
	Status string `json:"status"`
}

// fileDto augments the stored record with a presigned content URL.
type fileDto struct {
	*task.File
	URL string `json:"url,omitempty"`
}

// Metadata responses are shaped per media kind: a video carries the
// full stream description, audio drops the frame geometry, and an
// image drops the temporal fields.
type (
	videoMetaDto struct {
		FileID     string  `json:"fileId"`
		FileName   string  `json:"fileName"`
		Kind       string  `json:"kind"`
		Container  string  `json:"container"`
		Duration   float64 `json:"duration"`
		Width      int     `json:"width"`
		Height     int     `json:"height"`
		VideoCodec string  `json:"videoCodec"`
		AudioCodec string  `json:"audioCodec,omitempty"`
		BitRate    string  `json:"bitRate,omitempty"`
	}

	audioMetaDto struct {
		FileID     string  `json:"fileId"`
		FileName   string  `json:"fileName"`
		Kind       string  `json:"kind"`
		Container  string  `json:"container"`
		Duration   float64 `json:"duration"`
		AudioCodec string  `json:"audioCodec,omitempty"`
		BitRate    string  `json:"bitRate,omitempty"`
	}

	imageMetaDto struct {
		FileID   string `json:"fileId"`
		FileName string `json:"fileName"`
		Kind     string `json:"kind"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
	}
)

func newMetaDto(file *task.File, meta *media.FileMetadata) any {
	switch meta.Kind {
	case media.Audio:
		return audioMetaDto{
			FileID:     file.ID,
			FileName:   file.FileName,
			Kind:       string(meta.Kind),
			Container:  meta.Container,
			Duration:   meta.Duration,
			AudioCodec: meta.AudioCodec,
			BitRate:    meta.BitRate,
		}
	case media.Image:
		return imageMetaDto{
			FileID:   file.ID,
			FileName: file.FileName,
			Kind:     string(meta.Kind),
			Width:    meta.Width,
			Height:   meta.Height,
		}
	default:
		return videoMetaDto{
			FileID:     file.ID,
			FileName:   file.FileName,
			Kind:       string(meta.Kind),
			Container:  meta.Container,
			Duration:   meta.Duration,
			Width:      meta.Width,
			Height:     meta.Height,
			VideoCodec: meta.VideoCodec,
			AudioCodec: meta.AudioCodec,
			BitRate:    meta.BitRate,
		}
	}
}
