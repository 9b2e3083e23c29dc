package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/clipforge/clipforge/pkg/logger"
)

var log = logger.Get("FFmpeg")

// DefaultTimeout is the wall-clock limit for a single external binary
// invocation. A run exceeding it is killed and surfaces as a failed
// task.
const DefaultTimeout = 15 * time.Minute

// prefixArgs are prepended to every invocation.
var prefixArgs = []string{"-threads", "0", "-thread_queue_size", "256"}

// ProcessError is returned when the external binary exits non-zero or
// is killed. Stderr carries the binary's diagnostic output verbatim.
type ProcessError struct {
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	tail := e.Stderr
	if len(tail) > 512 {
		tail = tail[len(tail)-512:]
	}

	return fmt.Sprintf("process failed: %v: %s", e.Err, strings.TrimSpace(tail))
}

func (e *ProcessError) Unwrap() error { return e.Err }

type Config struct {
	FfmpegBinPath  string
	FfprobeBinPath string
}

// Command runs the external media binary with an exact argument
// vector. Stdout is inherited, stderr is captured (several operations
// extract their results from it), and the run is bounded by a
// wall-clock timeout.
type Command struct {
	binPath string
	timeout time.Duration
}

func NewCommand(binPath string) *Command {
	return &Command{binPath: binPath, timeout: DefaultTimeout}
}

func (cmd *Command) WithTimeout(timeout time.Duration) *Command {
	cmd.timeout = timeout
	return cmd
}

// Run spawns the binary with the args provided. The onStart callback,
// if given, receives the child pid as soon as the process launches so
// callers can record it. The captured stderr is returned for both the
// success and failure paths.
func (cmd *Command) Run(ctx context.Context, args []string, onStart func(pid int)) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, cmd.timeout)
	defer cancel()

	fullArgs := append(append([]string{}, prefixArgs...), args...)
	log.Emit(logger.DEBUG, "Running %s %s\n", cmd.binPath, strings.Join(fullArgs, " "))

	child := exec.CommandContext(runCtx, cmd.binPath, fullArgs...)
	child.Stdout = os.Stdout

	var stderr bytes.Buffer
	child.Stderr = &stderr

	if err := child.Start(); err != nil {
		return "", fmt.Errorf("failed to spawn %s: %w", cmd.binPath, err)
	}

	if onStart != nil {
		onStart(child.Process.Pid)
	}

	if err := child.Wait(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", cmd.timeout)
		}

		return stderr.String(), &ProcessError{Stderr: stderr.String(), Err: err}
	}

	return stderr.String(), nil
}
