package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrDuplicateTask = errors.New("task is already registered")

type TaskFunc func(ctx context.Context) error

type Task struct {
	Name     string
	Interval time.Duration
	Run      TaskFunc
	// Immediate makes the cron variant fire once at start
	Immediate bool
}

// TaskRun is the run state of one registered task.
type TaskRun struct {
	Name           string
	IsRunning      bool
	IterationCount int64
	LastStartTime  time.Time
}

// Registry owns the tasks and their TaskRun state for the process lifetime.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]Task
	runs  map[string]*TaskRun
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]Task),
		runs:  make(map[string]*TaskRun),
	}
}

func (r *Registry) Register(task Task) error {
	if task.Name == "" {
		return errors.New("task name is required")
	}
	if task.Interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", task.Name)
	}
	if task.Run == nil {
		return fmt.Errorf("task %s: function is required", task.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.Name)
	}
	r.tasks[task.Name] = task
	r.runs[task.Name] = &TaskRun{Name: task.Name}
	r.order = append(r.order, task.Name)
	return nil
}

// Tasks returns tasks in registration order.
func (r *Registry) Tasks() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]Task, 0, len(r.order))
	for _, name := range r.order {
		res = append(res, r.tasks[name])
	}
	return res
}

func (r *Registry) Task(name string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[name]
	return task, ok
}

// Run returns a copy of the task state.
func (r *Registry) Run(name string) (TaskRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[name]
	if !ok {
		return TaskRun{}, false
	}
	return *run, true
}

func (r *Registry) Runs() []TaskRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]TaskRun, 0, len(r.order))
	for _, name := range r.order {
		res = append(res, *r.runs[name])
	}
	return res
}

// tryStart marks the task running and returns its iteration number, or
// false when the task is already running.
func (r *Registry) tryStart(name string, now time.Time) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[name]
	if !ok || run.IsRunning {
		return 0, false
	}
	run.IsRunning = true
	run.IterationCount++
	run.LastStartTime = now
	return run.IterationCount, true
}

func (r *Registry) finish(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[name]; ok {
		run.IsRunning = false
	}
}
