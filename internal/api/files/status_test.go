package files

import (
	"testing"

	"github.com/clipforge/clipforge/internal/task"
	"github.com/stretchr/testify/assert"
)

func Test_AggregateStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		statuses []task.Status
		expected string
	}{
		{"no tasks", nil, "completed"},
		{"all completed", []task.Status{task.StatusCompleted, task.StatusCompleted}, "completed"},
		{"queued wins over terminal history", []task.Status{task.StatusCompleted, task.StatusQueued}, "pending"},
		{"processing is pending", []task.Status{task.StatusProcessing}, "pending"},
		{"trailing failure", []task.Status{task.StatusCompleted, task.StatusFailed}, "failed"},
		{"trailing unreachable", []task.Status{task.StatusFailed, task.StatusUnreachable}, "failed"},
		{"recovered after failure", []task.Status{task.StatusFailed, task.StatusCompleted}, "completed"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tasks := make([]*task.Task, len(test.statuses))
			for i, status := range test.statuses {
				tasks[i] = &task.Task{ID: int64(i + 1), Status: status}
			}

			assert.Equal(t, test.expected, aggregateStatus(tasks))
		})
	}
}
