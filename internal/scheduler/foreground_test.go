package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/scheduler"
	"github.com/clipforge/clipforge/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	tasks    []*task.Task
	cascades []string
}

func (s *fakeStore) NextQueued(excludeFileIDs []string, limit int) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	excluded := map[string]struct{}{}
	for _, id := range excludeFileIDs {
		excluded[id] = struct{}{}
	}

	out := make([]*task.Task, 0, limit)
	for _, t := range s.tasks {
		if len(out) >= limit {
			break
		}
		if t.Status != task.StatusQueued {
			continue
		}
		if _, busy := excluded[t.FileID]; busy {
			continue
		}

		copied := *t
		out = append(out, &copied)
	}

	return out, nil
}

func (s *fakeStore) UpdateTask(id int64, update task.TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.ID == id && update.Status != nil {
			t.Status = *update.Status
		}
	}

	return nil
}

func (s *fakeStore) MarkQueuedUnreachable(fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cascades = append(s.cascades, fileID)
	for _, t := range s.tasks {
		if t.FileID == fileID && t.Status == task.StatusQueued {
			t.Status = task.StatusUnreachable
		}
	}

	return nil
}

func (s *fakeStore) statusOf(id int64) task.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.ID == id {
			return t.Status
		}
	}

	return ""
}

// fakeExecutor blocks every execution until release is closed, and
// tracks the concurrency high-water mark.
type fakeExecutor struct {
	mu        sync.Mutex
	started   chan int64
	release   chan struct{}
	failing   map[int64]bool
	active    int
	maxActive int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		started: make(chan int64, 16),
		release: make(chan struct{}),
		failing: map[int64]bool{},
	}
}

func (e *fakeExecutor) Execute(ctx context.Context, t *task.Task) error {
	e.mu.Lock()
	e.active++
	if e.active > e.maxActive {
		e.maxActive = e.active
	}
	e.mu.Unlock()

	e.started <- t.ID
	<-e.release

	e.mu.Lock()
	e.active--
	fail := e.failing[t.ID]
	e.mu.Unlock()

	if fail {
		return assert.AnError
	}

	return nil
}

func (e *fakeExecutor) highWater() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.maxActive
}

func startScheduler(t *testing.T, fg *scheduler.Foreground) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.Nil(t, fg.Run(ctx))
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitForStart(t *testing.T, executor *fakeExecutor) int64 {
	select {
	case id := <-executor.started:
		return id
	case <-time.After(3 * time.Second):
		require.FailNow(t, "timed out waiting for a task to start")
		return 0
	}
}

func assertNoStartWithin(t *testing.T, executor *fakeExecutor, wait time.Duration) {
	select {
	case id := <-executor.started:
		require.FailNowf(t, "unexpected task start", "task %d started", id)
	case <-time.After(wait):
	}
}

func Test_Foreground_RespectsGlobalConcurrencyCap(t *testing.T) {
	t.Parallel()

	store := &fakeStore{tasks: []*task.Task{
		{ID: 1, FileID: "filea", Status: task.StatusQueued},
		{ID: 2, FileID: "fileb", Status: task.StatusQueued},
		{ID: 3, FileID: "filec", Status: task.StatusQueued},
	}}
	executor := newFakeExecutor()
	startScheduler(t, scheduler.NewForeground(2, store, executor))

	waitForStart(t, executor)
	waitForStart(t, executor)

	// Both slots are held; the third task must stay queued.
	assertNoStartWithin(t, executor, 1200*time.Millisecond)
	assert.Equal(t, task.StatusQueued, store.statusOf(3))

	close(executor.release)
	waitForStart(t, executor)
	assert.Equal(t, 2, executor.highWater())
}

func Test_Foreground_SerializesTasksForSameFile(t *testing.T) {
	t.Parallel()

	store := &fakeStore{tasks: []*task.Task{
		{ID: 1, FileID: "filea", Status: task.StatusQueued},
		{ID: 2, FileID: "filea", Status: task.StatusQueued},
	}}
	executor := newFakeExecutor()
	startScheduler(t, scheduler.NewForeground(4, store, executor))

	first := waitForStart(t, executor)
	assert.Equal(t, int64(1), first)

	// Same file: the second task must wait even though slots are free.
	assertNoStartWithin(t, executor, 1200*time.Millisecond)

	close(executor.release)
	second := waitForStart(t, executor)
	assert.Equal(t, int64(2), second)
}

func Test_Foreground_CascadesFailureToQueuedSiblings(t *testing.T) {
	t.Parallel()

	store := &fakeStore{tasks: []*task.Task{
		{ID: 1, FileID: "filea", Status: task.StatusQueued},
		{ID: 2, FileID: "filea", Status: task.StatusQueued},
	}}
	executor := newFakeExecutor()
	executor.failing[1] = true
	close(executor.release)
	startScheduler(t, scheduler.NewForeground(2, store, executor))

	waitForStart(t, executor)

	assert.Eventually(t, func() bool {
		return store.statusOf(2) == task.StatusUnreachable
	}, 3*time.Second, 50*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []string{"filea"}, store.cascades)
}
