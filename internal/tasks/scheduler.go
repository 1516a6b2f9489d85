// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ErrShutdown is returned by Go after Shutdown has started.
var ErrShutdown = errors.New("scheduler is shut down")

// DefaultMaxHistory bounds the finished tasks kept for Recent.
const DefaultMaxHistory = 50

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler spawns detached tasks and waits for them on Shutdown.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	wg      sync.WaitGroup
	stopped atomic.Bool // set once Shutdown starts; no new tasks after that

	mu         sync.Mutex
	running    map[string]*Task
	history    []*Task
	maxHistory int
}

// NewScheduler creates a scheduler. A nil logger uses slog.Default().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
		running:    make(map[string]*Task),
		maxHistory: DefaultMaxHistory,
	}
}

// Go starts fn on its own goroutine and returns immediately. onDone, if not
// nil, runs on that goroutine after fn returns, with the finished task.
// A panic in fn fails the task instead of crashing the process.
func (s *Scheduler) Go(name string, fn Func, onDone func(*Task)) (*Task, error) {
	// Hold mu across the stopped check and wg.Add so Shutdown's Wait cannot
	// start between them.
	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		return nil, ErrShutdown
	}
	ctx, cancel := context.WithCancel(s.ctx)
	task := newTask(name, cancel)
	s.running[task.ID] = task
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Debug("task started", "task_id", task.ID, "task", name)
	go s.execute(ctx, task, fn, onDone)
	return task, nil
}

func (s *Scheduler) execute(ctx context.Context, task *Task, fn Func, onDone func(*Task)) {
	defer s.wg.Done()
	defer close(task.done)
	defer task.cancel()

	err := s.call(ctx, task, fn)
	switch {
	case err == nil:
		task.finish(TaskStatusComplete, nil)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		task.finish(TaskStatusCanceled, err)
	default:
		task.finish(TaskStatusFailed, err)
	}

	s.retire(task)
	s.logger.Debug("task finished", "task_id", task.ID, "task", task.Name,
		"status", task.Status().String(), "duration", task.Duration())
	if err != nil && task.Status() == TaskStatusFailed {
		s.logger.Warn("task failed", "task_id", task.ID, "task", task.Name, "error", err)
	}

	if onDone != nil {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					s.logger.Error("panic in task completion callback", "task_id", task.ID, "panic", rec)
				}
			}()
			onDone(task)
		}()
	}
}

func (s *Scheduler) call(ctx context.Context, task *Task, fn Func) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic in task", "task_id", task.ID, "task", task.Name,
				"panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return fn(ctx)
}

func (s *Scheduler) retire(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, task.ID)
	s.history = append(s.history, task)
	if over := len(s.history) - s.maxHistory; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// =============================================================================
// INSPECTION
// =============================================================================

// RunningCount returns the number of tasks still executing.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Get returns a running or recently finished task by id.
func (s *Scheduler) Get(id string) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.running[id]; ok {
		return t
	}
	for _, t := range s.history {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Recent returns finished tasks, oldest first.
func (s *Scheduler) Recent() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Task(nil), s.history...)
}

// =============================================================================
// SHUTDOWN
// =============================================================================

// Shutdown stops accepting tasks, cancels the running ones and waits for
// them to return or for ctx to end, whichever comes first.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped.Store(true)
	pending := len(s.running)
	s.mu.Unlock()

	if pending > 0 {
		s.logger.Info("waiting for background tasks", "count", pending)
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %d task(s) still running: %w", s.RunningCount(), ctx.Err())
	}
}
