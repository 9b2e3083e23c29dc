package planner

import (
	"fmt"

	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/task"
)

// Planning turns user-facing requests (a chain of operations over one
// file, or one operation fanned out over many files) in to ordered
// task rows the scheduler will drain.

// ChainStep is one operation in a chain request, already decoded and
// validated by the HTTP layer.
type ChainStep struct {
	Operation task.Operation
	Params    any
	Mode      task.Mode
}

// artifactOnly operations emit derived artifacts to the blob store
// without touching the file's own object, so they never advance the
// chain's working file.
func artifactOnly(op task.Operation) bool {
	switch op {
	case task.OpDash, task.OpASRAnalyze, task.OpASRSegment, task.OpVisionAnalyze, task.OpVisionSegment:
		return true
	}

	return false
}

// PlanChain builds one task per step, all owned by the root file so
// the scheduler serializes them, executed in insertion order.
//
// The working file starts as the root and advances whenever a step
// appends: that step is given a pre-assigned output id, and later
// steps carry it as their parent so they read the forked output
// instead of the root. Replace-mode steps rewrite the working file in
// place, so they do not advance it.
func PlanChain(fileID string, steps []ChainStep) ([]*task.Task, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("chain must contain at least one operation")
	}

	tasks := make([]*task.Task, 0, len(steps))
	working := fileID
	for _, step := range steps {
		mode := step.Mode
		if mode == "" {
			mode = task.ModeReplace
		}
		if artifactOnly(step.Operation) {
			mode = task.ModeReplace
		}

		parent := ""
		if working != fileID {
			parent = working
		}

		args, err := task.EncodeArgs(step.Params, mode, parent)
		if err != nil {
			return nil, fmt.Errorf("failed to encode args for %s: %w", step.Operation, err)
		}

		if mode == task.ModeAppend && !artifactOnly(step.Operation) {
			outputID := task.NewID()
			args["output"] = outputID
			working = outputID
		}

		tasks = append(tasks, &task.Task{
			Code:      task.NewID(),
			FileID:    fileID,
			Operation: step.Operation,
			Args:      database.NewJsonColumn(&args),
			Status:    task.StatusQueued,
		})
	}

	return tasks, nil
}

// PlanBulk builds one independent task per file for a single
// operation. Tasks for distinct files carry no ordering relationship;
// the scheduler runs them concurrently up to the global cap.
func PlanBulk(fileIDs []string, operation task.Operation, params any, mode task.Mode) ([]*task.Task, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("bulk request must name at least one file")
	}

	if mode == "" || artifactOnly(operation) {
		mode = task.ModeReplace
	}

	tasks := make([]*task.Task, 0, len(fileIDs))
	for _, fileID := range fileIDs {
		args, err := task.EncodeArgs(params, mode, "")
		if err != nil {
			return nil, fmt.Errorf("failed to encode args for %s: %w", operation, err)
		}

		tasks = append(tasks, &task.Task{
			Code:      task.NewID(),
			FileID:    fileID,
			Operation: operation,
			Args:      database.NewJsonColumn(&args),
			Status:    task.StatusQueued,
		})
	}

	return tasks, nil
}
