// Package scheduler runs named background tasks on fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time so interval behavior is testable without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Task is a named unit of periodic work.
type Task struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single execution. Zero means no deadline.
	Timeout time.Duration
	Fn      func(ctx context.Context) (any, error)
}

// Report describes one task execution.
type Report struct {
	RunID    string
	Task     string
	Success  bool
	Result   any
	Err      error
	Duration time.Duration
}

// TaskStatus is a snapshot of one registered task.
type TaskStatus struct {
	Name     string
	Interval time.Duration
	LastRun  time.Time
	LastErr  error
	NextRun  time.Time
	Running  bool
}

// Status is a snapshot of the scheduler and all its tasks.
type Status struct {
	// Running reports whether the timer loops are active.
	Running bool
	Tasks   []TaskStatus
}

type taskState struct {
	task Task

	// sem serializes executions of this task. An interval tick that fires
	// while the previous execution still runs is skipped, not queued; RunNow
	// waits, bounded by its context.
	sem chan struct{}

	stateMu sync.Mutex
	running bool
	lastRun time.Time
	lastErr error
}

// Scheduler owns a set of tasks and their timer loops.
type Scheduler struct {
	clock  Clock
	logger *slog.Logger

	mu        sync.Mutex
	tasks     map[string]*taskState
	started   bool
	startedAt time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New creates a scheduler using the given clock.
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		clock:  clock,
		logger: slog.Default(),
		tasks:  map[string]*taskState{},
	}
}

// SetLogger sets a custom logger.
func (s *Scheduler) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Register adds a task. Registering after Start, a duplicate name, or a
// non-positive interval is an error.
func (s *Scheduler) Register(task Task) error {
	if task.Name == "" || task.Fn == nil {
		return fmt.Errorf("task needs a name and a function")
	}
	if task.Interval <= 0 {
		return fmt.Errorf("task %q has non-positive interval", task.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("cannot register task %q after start", task.Name)
	}
	if _, ok := s.tasks[task.Name]; ok {
		return fmt.Errorf("task %q already registered", task.Name)
	}
	s.tasks[task.Name] = &taskState{
		task: task,
		sem:  make(chan struct{}, 1),
	}
	return nil
}

// Start launches one timer loop per task. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.startedAt = s.clock.Now()
	s.stopCh = make(chan struct{})

	for _, state := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, state)
	}
	s.logger.Info("scheduler started", "tasks", len(s.tasks))
}

// Stop halts all timer loops and waits for in-flight executions to finish.
// Calling Stop twice, or before Start, is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, state *taskState) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-s.clock.After(state.task.Interval):
			select {
			case state.sem <- struct{}{}:
			default:
				s.logger.Warn("skipping tick, previous run still in progress", "task", state.task.Name)
				continue
			}
			report := s.execute(ctx, state)
			<-state.sem
			if !report.Success {
				s.logger.Error("scheduled task failed",
					"task", state.task.Name, "error", report.Err)
			}
		}
	}
}

// RunNow executes a task outside its schedule and reports the outcome. An
// unknown name returns an error. A task already mid-run is waited on, but only
// as long as ctx allows; a caller with a deadline cannot be blocked
// indefinitely by a stuck run.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*Report, error) {
	s.mu.Lock()
	state, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown task %q", name)
	}

	select {
	case state.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("task %q still running: %w", name, ctx.Err())
	}
	defer func() { <-state.sem }()

	return s.execute(ctx, state), nil
}

// execute runs a task. The caller must hold the task semaphore.
func (s *Scheduler) execute(ctx context.Context, state *taskState) *Report {
	state.setRunning(true)
	defer state.setRunning(false)

	runCtx := ctx
	cancel := func() {}
	if state.task.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, state.task.Timeout)
	}
	defer cancel()

	start := s.clock.Now()
	result, err := s.runProtected(runCtx, state.task)
	report := &Report{
		RunID:    uuid.NewString(),
		Task:     state.task.Name,
		Success:  err == nil,
		Result:   result,
		Err:      err,
		Duration: s.clock.Now().Sub(start),
	}

	state.stateMu.Lock()
	state.lastRun = start
	state.lastErr = err
	state.stateMu.Unlock()
	return report
}

// runProtected converts a task panic into an error so one bad task cannot
// take down the process.
func (s *Scheduler) runProtected(ctx context.Context, task Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %q panicked: %v", task.Name, r)
		}
	}()
	return task.Fn(ctx)
}

// Status reports whether the scheduler is running plus a snapshot of every
// registered task. For a task that has not executed yet, NextRun is projected
// from the scheduler start time.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Running: s.started}
	for _, state := range s.tasks {
		state.stateMu.Lock()
		taskStatus := TaskStatus{
			Name:     state.task.Name,
			Interval: state.task.Interval,
			LastRun:  state.lastRun,
			LastErr:  state.lastErr,
			Running:  state.running,
		}
		switch {
		case !state.lastRun.IsZero():
			taskStatus.NextRun = state.lastRun.Add(state.task.Interval)
		case s.started:
			taskStatus.NextRun = s.startedAt.Add(state.task.Interval)
		}
		state.stateMu.Unlock()
		status.Tasks = append(status.Tasks, taskStatus)
	}
	return status
}

func (t *taskState) setRunning(v bool) {
	t.stateMu.Lock()
	t.running = v
	t.stateMu.Unlock()
}
