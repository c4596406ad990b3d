package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs periodic jobs on a cron runner. Jobs receive a context that is
// cancelled when the scheduler stops.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu    sync.Mutex
	tasks map[cron.EntryID]*Task
}

// Task is the handle of one scheduled job
type Task struct {
	name      string
	interval  time.Duration
	id        cron.EntryID
	scheduler *Scheduler
	once      sync.Once
}

// cronLogger routes cron's own log lines into zap
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewScheduler creates a scheduler; call Start to begin running jobs
func NewScheduler(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		tasks:  make(map[cron.EntryID]*Task),
	}
}

// Every runs job every interval, rounded to whole seconds. Runs may overlap when a job is slower than its interval.
func (s *Scheduler) Every(name string, interval time.Duration, job func(ctx context.Context)) (*Task, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("interval for %s must be at least 1s, got %s", name, interval)
	}

	task := &Task{name: name, interval: interval, scheduler: s}
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if s.ctx.Err() != nil {
			return
		}
		job(s.ctx)
	}))
	task.id = id

	s.mu.Lock()
	s.tasks[id] = task
	s.mu.Unlock()

	s.logger.Info("scheduled job", zap.String("job", name), zap.Duration("interval", interval))
	return task, nil
}

// Start begins running scheduled jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Tasks returns the number of scheduled jobs
func (s *Scheduler) Tasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tasks)
}

// Stop cancels every job and waits for running ones until ctx expires
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()

	s.mu.Lock()
	for id := range s.tasks {
		s.cron.Remove(id)
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running jobs: %w", ctx.Err())
	}
}

// Name returns the job name
func (t *Task) Name() string {
	return t.name
}

// Interval returns the period between runs
func (t *Task) Interval() time.Duration {
	return t.interval
}

// Cancel removes the job from the scheduler. A run already in progress finishes.
// Cancel is safe to call more than once.
func (t *Task) Cancel() {
	t.once.Do(func() {
		s := t.scheduler
		s.cron.Remove(t.id)

		s.mu.Lock()
		delete(s.tasks, t.id)
		s.mu.Unlock()

		s.logger.Info("cancelled job", zap.String("job", t.name))
	})
}
