package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tradeloop/internal/config"
)

// CycleRunner is one trading cycle. Satisfied by *Cycle.
type CycleRunner interface {
	Run(ctx context.Context) error
}

// Scheduler loops forever: run a cycle when the market is open, wait
// out the interval otherwise. A failed cycle retries on the shorter
// retry interval.
type Scheduler struct {
	cfg    *config.Config
	clock  *MarketClock
	cycle  CycleRunner
	backup func() error
	log    *zap.Logger
}

// New builds the scheduler. backup runs after each successful cycle
// and may be nil.
func New(cfg *config.Config, clock *MarketClock, cycle CycleRunner, backup func() error, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		clock:  clock,
		cycle:  cycle,
		backup: backup,
		log:    log,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("trading loop started",
		zap.Duration("interval", s.cfg.RunInterval),
		zap.Bool("bypass_market_hours", s.cfg.BypassMarketHours))

	for {
		if !s.cfg.BypassMarketHours && !s.clock.Open(time.Now()) {
			s.log.Info("market closed, waiting", zap.Duration("interval", s.cfg.RunInterval))
			if err := sleep(ctx, s.cfg.RunInterval); err != nil {
				return err
			}
			continue
		}

		wait := s.cfg.RunInterval
		if err := s.cycle.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("cycle failed, retrying", zap.Error(err), zap.Duration("retry_in", s.cfg.RetryInterval))
			wait = s.cfg.RetryInterval
		} else if s.backup != nil {
			if err := s.backup(); err != nil {
				s.log.Error("ledger backup failed", zap.Error(err))
			}
		}

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// RunOnce runs a single cycle regardless of market hours.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.cycle.Run(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
