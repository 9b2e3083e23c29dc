package media

import (
	"path/filepath"
	"strings"
)

var imageExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "webp": {}, "gif": {}, "avif": {}, "svg": {},
}

var mimeTypes = map[string]string{
	"mp4":  "video/mp4",
	"mkv":  "video/x-matroska",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",

	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"opus": "audio/opus",

	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
	"avif": "image/avif",
	"svg":  "image/svg+xml",

	"mpd":  "application/dash+xml",
	"json": "application/json",
}

// MimeTypeFor returns the media type for the file name or path
// provided, falling back to application/octet-stream for anything
// outside the supported format set.
func MimeTypeFor(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if mime, ok := mimeTypes[ext]; ok {
		return mime
	}

	return "application/octet-stream"
}
