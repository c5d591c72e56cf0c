package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/restalytics/etl-engine/pkg/config"
)

// Scheduler runs the pipeline on a fixed cadence, but only inside the
// configured active window. Outside the window ticks are skipped, not
// queued.
type Scheduler struct {
	orchestrator *Orchestrator
	cfg          config.ScheduleConfig
	activeDays   map[time.Weekday]bool
	logger       *zap.Logger
}

// NewScheduler validates the schedule configuration and resolves the
// active-day names. An empty active_days list means every day.
func NewScheduler(orchestrator *Orchestrator, cfg config.ScheduleConfig, logger *zap.Logger) (*Scheduler, error) {
	if cfg.EveryMinutes <= 0 {
		return nil, fmt.Errorf("schedule every_minutes must be positive, got %d", cfg.EveryMinutes)
	}

	activeDays := make(map[time.Weekday]bool, 7)
	if len(cfg.ActiveDays) == 0 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			activeDays[d] = true
		}
	} else {
		for _, name := range cfg.ActiveDays {
			day, err := config.ParseWeekday(name)
			if err != nil {
				return nil, err
			}
			activeDays[day] = true
		}
	}

	return &Scheduler{
		orchestrator: orchestrator,
		cfg:          cfg,
		activeDays:   activeDays,
		logger:       logger.Named("scheduler"),
	}, nil
}

// Start runs the schedule until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	scheduler := gocron.NewScheduler(time.UTC)

	_, err := scheduler.Every(s.cfg.EveryMinutes).Minutes().Do(func() {
		s.tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}

	s.logger.Info("scheduler started",
		zap.Int("every_minutes", s.cfg.EveryMinutes),
		zap.Int("start_hour", s.cfg.StartHour),
		zap.Int("end_hour", s.cfg.EndHour))

	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	if !s.inActiveWindow(now) {
		s.logger.Debug("outside active window, skipping tick", zap.Time("now", now))
		return
	}

	summary, err := s.orchestrator.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed",
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.Error(err))
		return
	}
	if summary.Pulled > 0 {
		s.logger.Info("scheduled run finished",
			zap.Int("pulled", summary.Pulled),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed))
	}
}

func (s *Scheduler) inActiveWindow(now time.Time) bool {
	if !s.activeDays[now.Weekday()] {
		return false
	}
	minuteOfDay := now.Hour()*60 + now.Minute()
	start := s.cfg.StartHour*60 + s.cfg.StartMinute
	end := s.cfg.EndHour*60 + s.cfg.EndMinute
	return minuteOfDay >= start && minuteOfDay <= end
}
