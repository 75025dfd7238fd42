// Package scheduler decides which tracks are due, claims them exclusively
// across instances, and drives them through acquisition with bounded
// concurrency and failure-aware rescheduling.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Backoff returns the reschedule delay after the given number of consecutive
// failures: 1, 2, 4, 8, 16 minutes, capped at 30.
func Backoff(failureCount int) time.Duration {
	exp := failureCount - 1
	if exp < 0 {
		exp = 0
	}
	if exp > 5 {
		exp = 5
	}

	delay := time.Duration(1<<exp) * time.Minute
	if delay > 30*time.Minute {
		delay = 30 * time.Minute
	}
	return delay
}

// ProcessFunc runs the acquisition pipeline for one claimed track. An error
// marks the attempt failed; the scheduler handles the release either way.
type ProcessFunc func(ctx context.Context, trackID uint) error

// Config tunes one scheduler instance.
type Config struct {
	Tick        time.Duration
	BatchSize   int
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	return c
}

// Scheduler polls the store on a fixed tick. Multiple instances may run
// against the same store; they coordinate only through the store's atomic
// claim, never with each other.
type Scheduler struct {
	store   Store
	process ProcessFunc
	cfg     Config
	cron    *cron.Cron
	log     zerolog.Logger
}

func New(store Store, process ProcessFunc, cfg Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:   store,
		process: process,
		cfg:     cfg.withDefaults(),
		cron:    cron.New(),
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins ticking. The first tick runs immediately so a restart does
// not wait a full interval to pick up overdue tracks.
func (s *Scheduler) Start() error {
	schedule := fmt.Sprintf("@every %s", s.cfg.Tick)
	if _, err := s.cron.AddFunc(schedule, func() {
		s.Tick(context.Background())
	}); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}

	s.cron.Start()
	go s.Tick(context.Background())

	s.log.Info().
		Dur("tick", s.cfg.Tick).
		Int("batch", s.cfg.BatchSize).
		Int("concurrency", s.cfg.Concurrency).
		Msg("scheduler started")
	return nil
}

// Stop halts ticking and waits for in-flight tick work to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// Tick claims up to a batch of due tracks and processes them through the
// pool. Safe to call again before a previous tick finished: rows claimed by
// the in-flight tick are still locked and will not be picked up twice.
func (s *Scheduler) Tick(ctx context.Context) {
	ids, err := s.store.ClaimDue(ctx, s.cfg.BatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("claim failed")
		return
	}
	if len(ids) == 0 {
		return
	}

	s.log.Info().Int("claimed", len(ids)).Msg("tick")

	RunPool(ids, s.cfg.Concurrency, func(id uint) {
		s.processOne(ctx, id)
	})
}

func (s *Scheduler) processOne(ctx context.Context, id uint) {
	if err := s.process(ctx, id); err != nil {
		s.log.Warn().Err(err).Uint("track_id", id).Msg("track run failed")
		if relErr := s.store.ReleaseFailure(ctx, id, err); relErr != nil {
			s.log.Error().Err(relErr).Uint("track_id", id).Msg("release after failure")
		}
		return
	}

	if err := s.store.ReleaseSuccess(ctx, id); err != nil {
		s.log.Error().Err(err).Uint("track_id", id).Msg("release after success")
	}
}
