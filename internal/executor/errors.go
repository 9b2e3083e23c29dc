package executor

import "fmt"

// FailureKind classifies executor failures for diagnostics. All kinds
// are fatal to the task (and cascade to queued siblings) except the
// metadata probe, which is advisory and handled inline.
type FailureKind string

const (
	InvalidArgument    FailureKind = "invalid-argument"
	PreconditionFailed FailureKind = "precondition-failed"
	DownloadFailed     FailureKind = "download-failed"
	UploadFailed       FailureKind = "upload-failed"
	ProcessFailed      FailureKind = "process-failed"
)

type TaskError struct {
	Kind FailureKind
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

func failure(kind FailureKind, format string, args ...any) *TaskError {
	return &TaskError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
