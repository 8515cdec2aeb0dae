package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Task is one scheduled unit of work. It receives the scheduler's context,
// which is cancelled on Shutdown.
type Task func(ctx context.Context)

// Scheduler runs a single task immediately and then on a fixed interval.
// Runs never overlap; a run that outlasts the interval delays the next one.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a scheduler for task. It does not start until Start is called.
func New(logger *zap.Logger, name string, interval time.Duration, task Task, parent context.Context) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", interval)
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Panic recovered in scheduled task",
						zap.String("task", name),
						zap.Any("panic", r))
				}
			}()
			task(ctx)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		s.Shutdown()
		return nil, fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	logger.Info("Scheduled task",
		zap.String("task", name),
		zap.Duration("interval", interval))

	return &Scheduler{
		scheduler: s,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start begins running the task
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Shutdown cancels the running task's context and waits for it to return
func (s *Scheduler) Shutdown() error {
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	return nil
}
