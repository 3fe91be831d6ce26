// Package schedule drives the alignment loop at an adjustable cadence.
package schedule

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Ticker receives one call per period. Implementations must not block.
type Ticker interface {
	Tick(now time.Time)
}

const (
	MinSpeed = 1
	MaxSpeed = 10

	slowestInterval = time.Second
	fastestInterval = 100 * time.Millisecond
)

// SpeedToInterval maps the speed control (MinSpeed slowest, MaxSpeed fastest) onto a
// tick interval between one second and 100ms. Out of range levels are clamped.
func SpeedToInterval(level int) time.Duration {
	level = min(max(level, MinSpeed), MaxSpeed)
	step := (slowestInterval - fastestInterval) / (MaxSpeed - MinSpeed)
	return slowestInterval - time.Duration(level-MinSpeed)*step
}

// IntervalToSpeed returns the speed level whose interval is closest to d.
func IntervalToSpeed(d time.Duration) int {
	best, bestDiff := MinSpeed, time.Duration(1<<62)
	for l := MinSpeed; l <= MaxSpeed; l++ {
		diff := SpeedToInterval(l) - d
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best, bestDiff = l, diff
		}
	}
	return best
}

// Scheduler calls target.Tick periodically until its context is cancelled.
type Scheduler struct {
	target   Ticker
	logger   *slog.Logger
	interval atomic.Int64
	changed  chan struct{}
	ticks    atomic.Uint64
}

// New returns a scheduler with the given initial interval.
func New(target Ticker, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if target == nil {
		return nil, errors.New("schedule: nil target")
	}
	if interval <= 0 {
		return nil, errors.Errorf("schedule: interval must be positive, got %v", interval)
	}
	s := &Scheduler{target: target, logger: logger, changed: make(chan struct{}, 1)}
	s.interval.Store(int64(interval))
	return s, nil
}

func (s *Scheduler) Interval() time.Duration { return time.Duration(s.interval.Load()) }

// Ticks returns the number of ticks delivered so far.
func (s *Scheduler) Ticks() uint64 { return s.ticks.Load() }

// SetInterval changes the period. A running loop picks it up immediately.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return errors.Errorf("schedule: interval must be positive, got %v", d)
	}
	if time.Duration(s.interval.Swap(int64(d))) == d {
		return nil
	}
	select {
	case s.changed <- struct{}{}:
	default:
	}
	if s.logger != nil {
		s.logger.Debug("tick interval changed", "interval", d)
	}
	return nil
}

// Run blocks delivering ticks until ctx is done and returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.changed:
			ticker.Reset(s.Interval())
		case now := <-ticker.C:
			s.ticks.Add(1)
			s.target.Tick(now)
		}
	}
}
