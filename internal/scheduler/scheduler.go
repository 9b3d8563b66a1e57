// Package scheduler drives the rebalance engine on a fixed interval and
// supports manual one-shot triggers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"dlmm-rebalancer/internal/engine"
)

// DefaultInterval between evaluation passes.
const DefaultInterval = 5 * time.Minute

// Runner abstracts the engine pass for the scheduler. Implemented by
// engine.Engine.
type Runner interface {
	RunPass(ctx context.Context) (*engine.PassResult, error)
}

// Scheduler runs evaluation passes periodically. Overlap protection lives
// in the engine's pass lock; the scheduler treats ErrPassInProgress as a
// skipped tick, never as a failure.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Options configures a Scheduler.
type Options struct {
	Runner   Runner
	Interval time.Duration // Default: 5 minutes
	Logger   *log.Logger
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		runner:   opts.Runner,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the periodic driver: an immediate pass, then one pass per
// interval until Stop or context cancellation. Returns an error if already
// started.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	go s.loop(runCtx, ctx)
	return nil
}

// loop stops on loopCtx; passes run against passCtx so that Stop halts
// future ticks while letting an in-progress pass complete.
func (s *Scheduler) loop(loopCtx, passCtx context.Context) {
	defer close(s.done)

	s.logger.Printf("scheduler started, interval %s", s.interval)
	s.tick(passCtx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			s.logger.Println("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(passCtx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	result, err := s.runner.RunPass(ctx)
	switch {
	case errors.Is(err, engine.ErrPassInProgress):
		s.logger.Println("previous pass still running, tick skipped")
	case err != nil:
		s.logger.Printf("evaluation pass failed: %v", err)
	default:
		s.logger.Printf("pass done in %s: evaluated=%d rebalanced=%d stopped=%d skipped=%d failed=%d",
			time.Since(start).Round(time.Millisecond),
			result.Evaluated, result.Rebalanced, result.StoppedOut, result.Skipped, result.Failed)
	}
}

// RunOnce triggers a single evaluation pass on demand. The engine's pass
// lock guarantees it cannot overlap a scheduled tick.
func (s *Scheduler) RunOnce(ctx context.Context) (*engine.PassResult, error) {
	result, err := s.runner.RunPass(ctx)
	if err != nil {
		return nil, fmt.Errorf("manual pass: %w", err)
	}
	return result, nil
}

// Stop halts future scheduled passes. A pass already in progress completes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
