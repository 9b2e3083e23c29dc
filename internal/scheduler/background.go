package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/clipforge/clipforge/pkg/logger"
)

var bgLog = logger.Get("Background")

const (
	bgPollInterval = time.Second
	bgQueueLimit   = 4096
)

type (
	bgJob struct {
		label string
		work  func(context.Context) error
	}

	// Background runs best-effort housekeeping closures (blob
	// deletions, working-directory cleanup) in FIFO order with its
	// own concurrency cap, off the foreground task slots. Jobs are
	// held in memory only: a crash drops them, which is acceptable
	// because the startup wipe and bucket lifecycle rules catch
	// anything left behind.
	Background struct {
		*sync.Mutex

		maxConcurrent int
		queue         []bgJob
		running       int
		wg            sync.WaitGroup
	}
)

func NewBackground(maxConcurrent int) *Background {
	return &Background{
		Mutex:         &sync.Mutex{},
		maxConcurrent: maxConcurrent,
		queue:         make([]bgJob, 0),
	}
}

// Schedule appends a job to the queue. Returns false when the queue
// is saturated, in which case the job is dropped.
func (bg *Background) Schedule(label string, work func(context.Context) error) bool {
	bg.Lock()
	defer bg.Unlock()

	if len(bg.queue) >= bgQueueLimit {
		bgLog.Emit(logger.WARNING, "queue saturated, dropping job %q\n", label)
		return false
	}

	bg.queue = append(bg.queue, bgJob{label: label, work: work})
	return true
}

// Run drains the queue until the context is cancelled, then waits
// for running jobs. Queued-but-unstarted jobs are abandoned on
// shutdown.
func (bg *Background) Run(ctx context.Context) error {
	ticker := time.NewTicker(bgPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bg.dispatch(ctx)
		case <-ctx.Done():
			bg.wg.Wait()
			return nil
		}
	}
}

func (bg *Background) dispatch(ctx context.Context) {
	for {
		bg.Lock()
		if bg.running >= bg.maxConcurrent || len(bg.queue) == 0 {
			bg.Unlock()
			return
		}

		job := bg.queue[0]
		bg.queue = bg.queue[1:]
		bg.running++
		bg.Unlock()

		bg.wg.Add(1)
		go func() {
			defer bg.wg.Done()
			defer func() {
				bg.Lock()
				bg.running--
				bg.Unlock()
			}()

			if err := job.work(ctx); err != nil {
				// Best effort only. The job is not retried.
				bgLog.Emit(logger.WARNING, "job %q failed: %v\n", job.label, err)
			}
		}()
	}
}
