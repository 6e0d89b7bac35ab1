package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the periodic conversation-retention cleanup.
type Scheduler struct {
	cron        *cron.Cron
	ctx         context.Context
	cancel      context.CancelFunc
	schedule    string
	cleanupFunc func(ctx context.Context) error
	log         *zap.Logger
}

func New(schedule string, log *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		ctx:      ctx,
		cancel:   cancel,
		schedule: schedule,
		log:      log,
	}
}

// SetCleanupFunction sets the job executed on each tick.
func (s *Scheduler) SetCleanupFunction(f func(ctx context.Context) error) {
	s.cleanupFunc = f
}

func (s *Scheduler) Start() error {
	if s.cleanupFunc == nil {
		s.log.Warn("cleanup function not set, scheduler will not run")
		return nil
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.log.Info("running conversation retention cleanup")
		if err := s.cleanupFunc(s.ctx); err != nil {
			s.log.Error("retention cleanup failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("scheduler started", zap.String("schedule", s.schedule))
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
