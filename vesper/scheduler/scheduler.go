// Package scheduler owns the bot's periodic jobs (shop payout tick,
// subscription sweep) and its cancellable one-shot timers (blackjack
// refunds, scheduled unmutes).
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler wraps a gocron scheduler for recurring work and keeps a keyed
// registry of one-shot timers. Cancel is idempotent and a late callback
// observing a cancelled id is a no-op.
type Scheduler struct {
	cron     gocron.Scheduler
	timers   sync.Map // id -> *time.Timer
	shutdown chan struct{}
	once     sync.Once
}

func New() (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cron:     cron,
		shutdown: make(chan struct{}),
	}, nil
}

// Every registers a recurring task. Tasks receive a fresh context bounded
// to the interval so a stuck run cannot pile up behind the next tick.
func (s *Scheduler) Every(interval time.Duration, name string, task func(context.Context)) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			task(ctx)
		}),
		gocron.WithName(name),
	)
	return err
}

// Once schedules task to fire after d, keyed by id. Scheduling with an id
// that is already armed replaces the previous timer.
func (s *Scheduler) Once(id string, d time.Duration, task func(context.Context)) {
	s.Cancel(id)

	timer := time.NewTimer(d)
	s.timers.Store(id, timer)

	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
			// Only consume the registration if it is still ours: a
			// Cancel or a re-arm that raced the firing wins, and this
			// fire becomes a no-op.
			if !s.timers.CompareAndDelete(id, timer) {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			task(ctx)
		case <-s.shutdown:
		}
	}()
}

// Cancel disarms the one-shot registered under id, if any.
func (s *Scheduler) Cancel(id string) {
	if v, ok := s.timers.LoadAndDelete(id); ok {
		v.(*time.Timer).Stop()
	}
}

// Armed reports whether a one-shot is currently registered under id.
func (s *Scheduler) Armed(id string) bool {
	_, ok := s.timers.Load(id)
	return ok
}

// Start begins running recurring jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Scheduler started", slog.String("type", "sys"))
}

// Shutdown stops recurring jobs and drops all in-flight one-shots.
// Persisted schedules are authoritative and re-armed on next start.
func (s *Scheduler) Shutdown() {
	s.once.Do(func() {
		close(s.shutdown)
		if err := s.cron.Shutdown(); err != nil {
			slog.Error("Scheduler shutdown failed",
				slog.String("type", "sys"),
				slog.Any("error", err))
		}
		s.timers.Range(func(key, value any) bool {
			value.(*time.Timer).Stop()
			s.timers.Delete(key)
			return true
		})
		slog.Info("Scheduler shutdown completed", slog.String("type", "sys"))
	})
}
