package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func noop(ctx context.Context) error { return nil }

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Task{Name: "refreshStats", Interval: time.Minute, Run: noop}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	err := r.Register(Task{Name: "refreshStats", Interval: time.Second, Run: noop})
	if !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("expected duplicate task error, got %v", err)
	}
	for _, bad := range []Task{
		{Interval: time.Second, Run: noop},
		{Name: "a", Run: noop},
		{Name: "b", Interval: time.Second},
	} {
		if err := r.Register(bad); err == nil {
			t.Errorf("expected error for %+v", bad)
		}
	}
	run, ok := r.Run("refreshStats")
	if !ok || run.IsRunning || run.IterationCount != 0 {
		t.Errorf("unexpected initial state %+v", run)
	}
	if len(r.Runs()) != 1 {
		t.Errorf("expected one task, got %d", len(r.Runs()))
	}
}

func TestRegistry_TryStartGuards(t *testing.T) {
	r := NewRegistry()
	r.Register(Task{Name: "a", Interval: time.Second, Run: noop})
	if it, ok := r.tryStart("a", time.Now()); !ok || it != 1 {
		t.Fatalf("first start: %d %v", it, ok)
	}
	if _, ok := r.tryStart("a", time.Now()); ok {
		t.Fatal("task must not start twice")
	}
	r.finish("a")
	if it, ok := r.tryStart("a", time.Now()); !ok || it != 2 {
		t.Fatalf("second start: %d %v", it, ok)
	}
	if _, ok := r.tryStart("missing", time.Now()); ok {
		t.Error("unknown task must not start")
	}
}

func TestRunLoop_FailuresDoNotStopLoop(t *testing.T) {
	r := NewRegistry()
	logger, hook := test.NewNullLogger()
	s := New(r, logger)

	var waits []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) bool {
		waits = append(waits, d)
		return ctx.Err() == nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	err := r.Register(Task{Name: "refreshStats", Interval: 60 * time.Second, Run: func(ctx context.Context) error {
		calls++
		if calls <= 3 {
			return errors.New("statistics store unavailable")
		}
		cancel()
		return nil
	}})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RunLoop(ctx, "refreshStats"); err != nil {
		t.Fatalf("loop returned %v", err)
	}

	var failed []any
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			failed = append(failed, e.Data["iteration"])
			if e.Data["task"] != "refreshStats" {
				t.Errorf("error entry without task name: %v", e.Data)
			}
		}
	}
	if len(failed) != 3 || failed[0] != int64(1) || failed[2] != int64(3) {
		t.Errorf("expected errors for iterations 1..3, got %v", failed)
	}
	run, _ := r.Run("refreshStats")
	if run.IterationCount != 4 {
		t.Errorf("expected iteration 4, got %d", run.IterationCount)
	}
	if run.IsRunning {
		t.Error("task must not be marked running after the loop")
	}
	if len(waits) != 4 {
		t.Fatalf("expected 4 waits, got %d", len(waits))
	}
	for _, w := range waits {
		if w < 59*time.Second || w > 60*time.Second {
			t.Errorf("wait %v not compensated for runtime", w)
		}
	}
}

func TestRunLoop_SelfPacing(t *testing.T) {
	const interval = 40 * time.Millisecond
	r := NewRegistry()
	logger, _ := test.NewNullLogger()
	s := New(r, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var starts []time.Time
	r.Register(Task{Name: "short", Interval: interval, Run: func(ctx context.Context) error {
		starts = append(starts, time.Now())
		if len(starts) == 4 {
			cancel()
		}
		time.Sleep(10 * time.Millisecond)
		return nil
	}})
	s.RunLoop(ctx, "short")

	if len(starts) != 4 {
		t.Fatalf("expected 4 runs, got %d", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if d := starts[i].Sub(starts[i-1]); d < interval-2*time.Millisecond {
			t.Errorf("runs %d and %d started %v apart", i-1, i, d)
		}
	}
}

func TestRunLoop_OverrunRunsBackToBack(t *testing.T) {
	r := NewRegistry()
	logger, _ := test.NewNullLogger()
	s := New(r, logger)
	var waits []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) bool {
		waits = append(waits, d)
		return ctx.Err() == nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runs := 0
	r.Register(Task{Name: "long", Interval: 10 * time.Millisecond, Run: func(ctx context.Context) error {
		runs++
		time.Sleep(20 * time.Millisecond)
		if runs == 3 {
			cancel()
		}
		return nil
	}})
	s.RunLoop(ctx, "long")

	for _, w := range waits {
		if w != 0 {
			t.Errorf("overrunning task must not sleep, got %v", w)
		}
	}
	if runs != 3 {
		t.Errorf("expected 3 runs, got %d", runs)
	}
}

func TestRunLoop_RecoversPanics(t *testing.T) {
	r := NewRegistry()
	logger, hook := test.NewNullLogger()
	s := New(r, logger)
	s.sleep = func(ctx context.Context, d time.Duration) bool { return ctx.Err() == nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runs := 0
	r.Register(Task{Name: "nodeUptime", Interval: time.Second, Run: func(ctx context.Context) error {
		runs++
		if runs == 1 {
			var m map[string]int
			m["x"] = 1
		}
		cancel()
		return nil
	}})
	s.RunLoop(ctx, "nodeUptime")

	if runs != 2 {
		t.Errorf("loop must continue after a panic, got %d runs", runs)
	}
	if hook.LastEntry() == nil {
		t.Fatal("expected log entries")
	}
	found := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			found = true
		}
	}
	if !found {
		t.Error("panic must be logged as a task failure")
	}
}

func TestRunCron_SkipsWhileRunning(t *testing.T) {
	r := NewRegistry()
	logger, hook := test.NewNullLogger()
	s := New(r, logger)

	var running, maxRunning, runs atomic.Int32
	r.Register(Task{Name: "treasuryTotals", Interval: 10 * time.Millisecond, Immediate: true, Run: func(ctx context.Context) error {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		runs.Add(1)
		time.Sleep(35 * time.Millisecond)
		running.Add(-1)
		return nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := s.RunCron(ctx, "treasuryTotals"); err != nil {
		t.Fatal(err)
	}

	if maxRunning.Load() != 1 {
		t.Errorf("task ran %d times concurrently", maxRunning.Load())
	}
	if runs.Load() < 2 {
		t.Errorf("expected several runs, got %d", runs.Load())
	}
	skips := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "task is still running, skipping" {
			skips++
		}
	}
	if skips == 0 {
		t.Error("expected skipped firings")
	}
	run, _ := r.Run("treasuryTotals")
	if run.IsRunning {
		t.Error("RunCron must wait for the running invocation")
	}
	if run.IterationCount != int64(runs.Load()) {
		t.Errorf("iterations %d != runs %d", run.IterationCount, runs.Load())
	}
}

func TestStartLoops_IndependentTasks(t *testing.T) {
	r := NewRegistry()
	logger, _ := test.NewNullLogger()
	s := New(r, logger)

	var mu sync.Mutex
	counts := map[string]int{}
	for _, name := range []string{"activeWallets", "transactionsTotal"} {
		r.Register(Task{Name: name, Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error {
			mu.Lock()
			counts[name]++
			mu.Unlock()
			if name == "activeWallets" {
				return errors.New("count failed")
			}
			return nil
		}})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.StartLoops(ctx)
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	if counts["activeWallets"] < 2 || counts["transactionsTotal"] < 2 {
		t.Errorf("both tasks must keep running: %v", counts)
	}
	if err := s.RunLoop(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown task")
	}
}
