// Package scheduler runs named periodic tasks without overlapping runs of
// the same task.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coti-io/coti-explorer-api-sub000/metrics"
)

type Scheduler struct {
	registry *Registry
	log      logrus.FieldLogger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) bool
	wg       sync.WaitGroup
}

func New(registry *Registry, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		registry: registry,
		log:      log.WithField("component", "scheduler"),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// sleepCtx reports false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// invoke runs the task once unless it is already running. Task errors and
// panics are logged and reported as false.
func (s *Scheduler) invoke(ctx context.Context, task Task) bool {
	iteration, ok := s.registry.tryStart(task.Name, s.now())
	log := s.log.WithField("task", task.Name)
	if !ok {
		metrics.TaskSkips.WithLabelValues(task.Name).Inc()
		log.Warn("task is still running, skipping")
		return false
	}
	defer s.registry.finish(task.Name)

	log = log.WithField("iteration", iteration)
	start := s.now()
	metrics.TaskRuns.WithLabelValues(task.Name).Inc()
	err := safeRun(ctx, task.Run)
	elapsed := s.now().Sub(start)
	metrics.TaskDuration.WithLabelValues(task.Name).Observe(elapsed.Seconds())
	if err != nil {
		metrics.TaskFailures.WithLabelValues(task.Name).Inc()
		log.WithError(err).Error("task failed")
		return false
	}
	log.WithField("elapsed", elapsed).Debug("task finished")
	return true
}

func safeRun(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// RunLoop is the self-pacing variant: it runs the task, then sleeps for
// max(0, Interval - elapsed). An overrunning task is restarted immediately.
func (s *Scheduler) RunLoop(ctx context.Context, name string) error {
	task, ok := s.registry.Task(name)
	if !ok {
		return fmt.Errorf("unknown task %s", name)
	}
	for ctx.Err() == nil {
		start := s.now()
		s.invoke(ctx, task)
		wait := task.Interval - s.now().Sub(start)
		if wait < 0 {
			wait = 0
		}
		if !s.sleep(ctx, wait) {
			break
		}
	}
	return nil
}

// RunCron is the guarded fixed-cadence variant: it fires every Interval and
// skips a firing while the previous run of the task is still going.
func (s *Scheduler) RunCron(ctx context.Context, name string) error {
	task, ok := s.registry.Task(name)
	if !ok {
		return fmt.Errorf("unknown task %s", name)
	}
	var runs sync.WaitGroup
	defer runs.Wait()
	fire := func() {
		runs.Add(1)
		go func() {
			defer runs.Done()
			s.invoke(ctx, task)
		}()
	}

	if task.Immediate {
		fire()
	}
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fire()
		}
	}
}

// StartLoops runs every registered task with RunLoop in its own goroutine.
func (s *Scheduler) StartLoops(ctx context.Context) {
	s.start(ctx, s.RunLoop)
}

// StartCrons runs every registered task with RunCron in its own goroutine.
func (s *Scheduler) StartCrons(ctx context.Context) {
	s.start(ctx, s.RunCron)
}

func (s *Scheduler) start(ctx context.Context, run func(context.Context, string) error) {
	for _, task := range s.registry.Tasks() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := run(ctx, task.Name); err != nil {
				s.log.WithError(err).WithField("task", task.Name).Error("task loop stopped")
			}
		}()
		s.log.WithFields(logrus.Fields{"task": task.Name, "interval": task.Interval}).Info("task scheduled")
	}
}

// Wait blocks until every started loop returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
