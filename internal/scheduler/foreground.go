package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/clipforge/clipforge/internal/task"
	"github.com/clipforge/clipforge/pkg/logger"
)

var fgLog = logger.Get("Scheduler")

const pollInterval = time.Millisecond * 500

type (
	// TaskStore is the slice of the work store the scheduler claims
	// from and cascades through.
	TaskStore interface {
		NextQueued(excludeFileIDs []string, limit int) ([]*task.Task, error)
		UpdateTask(id int64, update task.TaskUpdate) error
		MarkQueuedUnreachable(fileID string) error
	}

	// TaskExecutor runs one claimed task to a terminal state. A
	// non-nil return means the task failed.
	TaskExecutor interface {
		Execute(ctx context.Context, t *task.Task) error
	}

	// Foreground drains the durable queue. It claims queued tasks in
	// ascending id order, holding two constraints at once: the global
	// concurrency cap, and at most one in-flight task per file so a
	// file's tasks observe each other's outputs in order.
	Foreground struct {
		*sync.Mutex

		maxConcurrent int
		store         TaskStore
		executor      TaskExecutor

		activeTasks map[int64]*task.Task
		activeFiles map[string]struct{}
		wg          sync.WaitGroup
	}
)

func NewForeground(maxConcurrent int, store TaskStore, executor TaskExecutor) *Foreground {
	return &Foreground{
		Mutex:         &sync.Mutex{},
		maxConcurrent: maxConcurrent,
		store:         store,
		executor:      executor,
		activeTasks:   make(map[int64]*task.Task),
		activeFiles:   make(map[string]struct{}),
	}
}

// Run polls the store until the context is cancelled, then blocks
// until every in-flight task has reached a terminal state.
func (fg *Foreground) Run(ctx context.Context) error {
	fgLog.Emit(logger.NEW, "Foreground scheduler started (max concurrent tasks %d)\n", fg.maxConcurrent)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.claimAndSpawn(ctx)
		case <-ctx.Done():
			fgLog.Emit(logger.STOP, "Foreground scheduler stopping, waiting for %d in-flight tasks\n", fg.inFlight())
			fg.wg.Wait()
			return nil
		}
	}
}

func (fg *Foreground) inFlight() int {
	fg.Lock()
	defer fg.Unlock()

	return len(fg.activeTasks)
}

// claimAndSpawn claims up to the number of free slots worth of queued
// tasks, skipping files that already have a task in flight, and
// spawns a worker goroutine per claim.
func (fg *Foreground) claimAndSpawn(ctx context.Context) {
	fg.Lock()
	slots := fg.maxConcurrent - len(fg.activeTasks)
	if slots <= 0 {
		fg.Unlock()
		return
	}

	exclude := make([]string, 0, len(fg.activeFiles))
	for fileID := range fg.activeFiles {
		exclude = append(exclude, fileID)
	}
	fg.Unlock()

	claimable, err := fg.store.NextQueued(exclude, slots)
	if err != nil {
		fgLog.Emit(logger.ERROR, "failed to query for queued tasks: %v\n", err)
		return
	}

	for _, t := range claimable {
		if !fg.tryClaim(t) {
			continue
		}

		processing := task.StatusProcessing
		if err := fg.store.UpdateTask(t.ID, task.TaskUpdate{Status: &processing}); err != nil {
			fgLog.Emit(logger.ERROR, "failed to mark %s as processing: %v\n", t, err)
			fg.release(t)
			continue
		}

		fgLog.Emit(logger.DEBUG, "claimed %s\n", t)
		fg.wg.Add(1)
		go fg.runTask(ctx, t)
	}
}

// tryClaim reserves a slot and the task's file. The claim query
// already excludes active files, but claims within a single batch can
// still collide on the same file, so the check is repeated here under
// the lock.
func (fg *Foreground) tryClaim(t *task.Task) bool {
	fg.Lock()
	defer fg.Unlock()

	if len(fg.activeTasks) >= fg.maxConcurrent {
		return false
	}
	if _, busy := fg.activeFiles[t.FileID]; busy {
		return false
	}

	fg.activeTasks[t.ID] = t
	fg.activeFiles[t.FileID] = struct{}{}
	return true
}

func (fg *Foreground) release(t *task.Task) {
	fg.Lock()
	defer fg.Unlock()

	delete(fg.activeTasks, t.ID)
	delete(fg.activeFiles, t.FileID)
}

func (fg *Foreground) runTask(ctx context.Context, t *task.Task) {
	defer fg.wg.Done()
	defer fg.release(t)

	if err := fg.executor.Execute(ctx, t); err != nil {
		// A failed task poisons every queued sibling of the same
		// file: their inputs can no longer be produced.
		if cascadeErr := fg.store.MarkQueuedUnreachable(t.FileID); cascadeErr != nil {
			fgLog.Emit(logger.ERROR, "failed to cascade failure of %s: %v\n", t, cascadeErr)
		}
	}
}
