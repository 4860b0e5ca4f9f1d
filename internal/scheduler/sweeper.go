package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"voicelink-backend/pkg/logger"
)

// StaleCallSweeper marks calls stuck before answer as missed
type StaleCallSweeper interface {
	SweepStale(ctx context.Context, ringTimeout time.Duration) error
}

// Sweeper periodically runs the missed-call sweep. A call left in initiated
// or ringing past the ring timeout was never answered; the sweeper is what
// moves it to missed when no client is around to do it.
type Sweeper struct {
	cron        *cron.Cron
	calls       StaleCallSweeper
	ringTimeout time.Duration
	interval    time.Duration
}

// NewSweeper creates a sweeper running every interval
func NewSweeper(calls StaleCallSweeper, ringTimeout, interval time.Duration) *Sweeper {
	return &Sweeper{
		cron:        cron.New(),
		calls:       calls,
		ringTimeout: ringTimeout,
		interval:    interval,
	}
}

// Start schedules the sweep and begins running it
func (s *Sweeper) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return fmt.Errorf("failed to schedule call sweep: %w", err)
	}

	s.cron.Start()
	logger.Info("missed-call sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("ring_timeout", s.ringTimeout))
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.calls.SweepStale(ctx, s.ringTimeout); err != nil {
		logger.Error("call sweep failed", zap.Error(err))
	}
}
