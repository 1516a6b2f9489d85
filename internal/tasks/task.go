// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TASK STATUS
// =============================================================================

// TaskStatus represents the current state of a background task.
type TaskStatus string

const (
	// TaskStatusRunning indicates the task is currently executing
	TaskStatusRunning TaskStatus = "Running"

	// TaskStatusComplete indicates the task finished successfully
	TaskStatusComplete TaskStatus = "Complete"

	// TaskStatusFailed indicates the task returned an error or panicked
	TaskStatusFailed TaskStatus = "Failed"

	// TaskStatusCanceled indicates the task stopped because its context ended
	TaskStatusCanceled TaskStatus = "Canceled"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// Func is the body of a task. ctx is cancelled on Shutdown or Cancel.
type Func func(ctx context.Context) error

// =============================================================================
// TASK STRUCTURE
// =============================================================================

// Task is one detached unit of work.
type Task struct {
	// ID is a unique identifier for this task
	ID string

	// Name is a human-readable description of what this task does
	Name string

	status    TaskStatus
	startTime time.Time
	endTime   time.Time
	err       error

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.RWMutex
}

func newTask(name string, cancel context.CancelFunc) *Task {
	return &Task{
		ID:        uuid.New().String(),
		Name:      name,
		status:    TaskStatusRunning,
		startTime: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// =============================================================================
// TASK METHODS
// =============================================================================

// Status returns the current status (thread-safe).
func (t *Task) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Err returns the error the task ended with, if any.
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Done is closed once the task has finished and its callback has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel cancels the task's context. The task decides how fast it stops.
func (t *Task) Cancel() {
	t.cancel()
}

// finish records the final state. Only the first call has any effect.
func (t *Task) finish(status TaskStatus, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != TaskStatusRunning {
		return
	}
	t.status = status
	t.err = err
	t.endTime = time.Now()
}

// Duration returns how long the task has been running or took to complete.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.endTime.IsZero() {
		return time.Since(t.startTime)
	}
	return t.endTime.Sub(t.startTime)
}

// IsComplete returns true if the task has finished (success, failure, or canceled).
func (t *Task) IsComplete() bool {
	return t.Status() != TaskStatusRunning
}

// Summary returns a one-line summary of the task.
func (t *Task) Summary() string {
	summary := fmt.Sprintf("[%s] %s - %s (%.1fs)",
		t.ID[:8],
		t.Name,
		t.Status(),
		t.Duration().Seconds(),
	)
	if err := t.Err(); err != nil {
		summary += ": " + err.Error()
	}
	return summary
}
