package task

import (
	"fmt"
	"strings"

	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/google/uuid"
)

type Status string

const (
	StatusQueued      Status = "queued"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusUnreachable Status = "unreachable"
)

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusUnreachable
}

type Operation string

const (
	OpTranscode        Operation = "transcode"
	OpResizeVideo      Operation = "resize-video"
	OpTrim             Operation = "trim"
	OpTrimEnd          Operation = "trim-end"
	OpExtractAudio     Operation = "extract-audio"
	OpRemoveAudio      Operation = "remove-audio"
	OpAddAudio         Operation = "add-audio"
	OpMergeMedia       Operation = "merge-media"
	OpExtractThumbnail Operation = "extract-thumbnail"
	OpDash             Operation = "dash"
	OpASRNormalize     Operation = "asr-normalize"
	OpASRAnalyze       Operation = "asr-analyze"
	OpASRSegment       Operation = "asr-segment"
	OpVisionAnalyze    Operation = "vision-analyze"
	OpVisionSegment    Operation = "vision-segment"
)

// Mode selects the post-success state mutation for a task: replace
// rewrites the owning file's identity in place, append forks a new
// file carrying the output.
type Mode string

const (
	ModeReplace Mode = "replace"
	ModeAppend  Mode = "append"
)

// Args is the serialized operation-specific parameter bag for a task.
// The well-known keys 'mode' and 'parent' are shared across all
// operations; everything else is interpreted per-operation by the
// executor.
type Args map[string]any

func (a Args) Mode() Mode {
	if m, ok := a["mode"].(string); ok && Mode(m) == ModeAppend {
		return ModeAppend
	}

	return ModeReplace
}

// Parent returns the file id this task should read its primary input
// from, or empty when the task's own file_id is the input. Chained
// append tasks carry parents pointing at files which only exist once
// the preceding task commits.
func (a Args) Parent() string {
	if p, ok := a["parent"].(string); ok {
		return p
	}

	return ""
}

// OutputID returns the pre-assigned id for an append-mode output, or
// empty when the executor should mint one. Chain planning assigns
// these up front so later steps can reference the output before it
// exists.
func (a Args) OutputID() string {
	if o, ok := a["output"].(string); ok {
		return o
	}

	return ""
}

// File is the user-visible media artifact identity. FilePath is the
// current object-storage key and changes when a replace-mode
// operation completes.
type File struct {
	ID       string                                 `db:"id" json:"id"`
	FileName string                                 `db:"file_name" json:"fileName"`
	FilePath string                                 `db:"file_path" json:"filePath"`
	MimeType string                                 `db:"mime_type" json:"mimeType"`
	Metadata database.JsonColumn[media.FileMetadata] `db:"metadata" json:"metadata"`
}

// Task is one durable unit of work: exactly one external binary
// invocation plus its surrounding I/O and state updates.
type Task struct {
	ID        int64                     `db:"id" json:"id"`
	Code      string                    `db:"code" json:"code"`
	FileID    string                    `db:"file_id" json:"fileId"`
	Operation Operation                 `db:"operation" json:"operation"`
	Args      database.JsonColumn[Args] `db:"args" json:"args"`
	Status    Status                    `db:"status" json:"status"`
	Pid       *int                      `db:"pid" json:"pid,omitempty"`
	Error     *string                   `db:"error" json:"error,omitempty"`
}

func (t *Task) TaskArgs() Args {
	if args := t.Args.Get(); args != nil {
		return *args
	}

	return Args{}
}

func (t *Task) String() string {
	return fmt.Sprintf("Task{ID=%d Code=%s FileID=%s Op=%s Status=%s}", t.ID, t.Code, t.FileID, t.Operation, t.Status)
}

// NewID generates the short opaque identifier used for file ids, task
// codes and append-mode output basenames.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
