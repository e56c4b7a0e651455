// Package cron runs scheduled maintenance tasks: periodic index sweeps
// and conversation compaction, each driven by a cron expression.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// TaskFunc is a maintenance task body.
type TaskFunc func(ctx context.Context) error

// Task is a named task with a cron schedule.
type Task struct {
	Name     string
	Expr     string
	Run      TaskFunc
	nextRun  time.Time
	lastErr  error
	lastRun  time.Time
	disabled bool
}

// Service schedules and executes maintenance tasks.
type Service struct {
	mu       sync.Mutex
	tasks    []*Task
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	retryCfg RetryConfig
}

// NewService creates an empty scheduler.
func NewService() *Service {
	return &Service{retryCfg: DefaultRetryConfig()}
}

// SetRetryConfig overrides the default retry configuration.
func (cs *Service) SetRetryConfig(cfg RetryConfig) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.retryCfg = cfg
}

// AddTask registers a task. The expression is validated eagerly so a
// misconfigured schedule fails at startup rather than silently never firing.
func (cs *Service) AddTask(name, expr string, run TaskFunc) error {
	gx := gronx.New()
	if !gx.IsValid(expr) {
		return fmt.Errorf("invalid cron expression for %s: %s", name, expr)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.tasks = append(cs.tasks, &Task{Name: name, Expr: expr, Run: run})
	return nil
}

// Start computes initial schedules and begins the tick loop.
func (cs *Service) Start() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.running {
		return nil
	}

	now := time.Now()
	for _, t := range cs.tasks {
		next, err := gronx.NextTickAfter(t.Expr, now, false)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", t.Name, err)
		}
		t.nextRun = next
	}

	cs.stopChan = make(chan struct{})
	cs.running = true

	cs.wg.Add(1)
	go cs.runLoop(cs.stopChan)

	slog.Info("maintenance scheduler started", "tasks", len(cs.tasks))
	return nil
}

// Stop halts the tick loop and waits for in-flight tasks.
func (cs *Service) Stop() {
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return
	}
	close(cs.stopChan)
	cs.running = false
	cs.mu.Unlock()

	cs.wg.Wait()
	slog.Info("maintenance scheduler stopped")
}

func (cs *Service) runLoop(stopChan chan struct{}) {
	defer cs.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			cs.checkTasks()
		}
	}
}

func (cs *Service) checkTasks() {
	cs.mu.Lock()

	now := time.Now()
	var due []*Task
	for _, t := range cs.tasks {
		if t.disabled || t.nextRun.IsZero() || t.nextRun.After(now) {
			continue
		}
		due = append(due, t)
		// Clear to prevent duplicate execution while the task runs.
		t.nextRun = time.Time{}
	}
	cs.mu.Unlock()

	for _, t := range due {
		cs.executeTask(t)
	}
}

func (cs *Service) executeTask(t *Task) {
	slog.Info("maintenance task running", "task", t.Name)

	cs.mu.Lock()
	retryCfg := cs.retryCfg
	cs.mu.Unlock()

	attempts, err := ExecuteWithRetry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		return t.Run(ctx)
	}, retryCfg)

	if attempts > 1 {
		slog.Info("maintenance task retried", "task", t.Name, "attempts", attempts, "success", err == nil)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	t.lastRun = time.Now()
	t.lastErr = err
	if err != nil {
		slog.Error("maintenance task failed", "task", t.Name, "error", err)
	} else {
		slog.Info("maintenance task completed", "task", t.Name)
	}

	next, nerr := gronx.NextTickAfter(t.Expr, time.Now(), false)
	if nerr != nil {
		slog.Error("maintenance: failed to compute next run", "task", t.Name, "error", nerr)
		t.disabled = true
		return
	}
	t.nextRun = next
}

// Status reports each task's schedule and last outcome.
func (cs *Service) Status() []TaskStatus {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	out := make([]TaskStatus, 0, len(cs.tasks))
	for _, t := range cs.tasks {
		st := TaskStatus{
			Name:    t.Name,
			Expr:    t.Expr,
			NextRun: t.nextRun,
			LastRun: t.lastRun,
		}
		if t.lastErr != nil {
			st.LastError = t.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}

// TaskStatus is a snapshot of a scheduled task.
type TaskStatus struct {
	Name      string    `json:"name"`
	Expr      string    `json:"expr"`
	NextRun   time.Time `json:"next_run"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}
