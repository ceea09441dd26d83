// Package scheduler runs the periodic loop that computes every scheduled VCP
// value for the current time of day and hands the batch to a Sink.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/monitord/internal/display"
	"github.com/dokzlo13/monitord/internal/schedule"
)

// Default timings.
const (
	DefaultPeriod       = time.Minute
	DefaultApplyTimeout = 30 * time.Second
)

// Command sets one VCP code on one display.
type Command struct {
	Display display.Info
	Code    string
	Value   int
}

// Batch is every command computed for one point in time.
type Batch struct {
	ID       string
	At       time.Time
	Hour     float64
	Commands []Command
}

// Sink applies a batch to hardware. It is never called concurrently.
type Sink interface {
	Apply(ctx context.Context, batch Batch) error
}

// Source provides the controllers to schedule.
type Source interface {
	Len() int
	Snapshot() []display.Target
}

// Adjuster may replace a computed value before it is applied.
type Adjuster interface {
	Adjust(cmd Command, raw float64, hour float64) (float64, error)
}

// Result describes one tick.
type Result struct {
	Batch    Batch
	Source   string
	Applied  bool
	Err      error
	Duration time.Duration
}

// Options configures a Scheduler. Zero values take defaults.
type Options struct {
	Period       time.Duration
	ApplyTimeout time.Duration
	Location     *time.Location
	Clock        func() time.Time
	Adjuster     Adjuster
	OnResult     func(Result)
}

// Scheduler owns the periodic apply loop. At most one loop runs at a time.
type Scheduler struct {
	source Source
	sink   Sink
	opts   Options

	// mu guards the loop lifecycle
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// tickMu serialises ticks so the sink never runs concurrently
	tickMu sync.Mutex

	statusMu sync.RWMutex
	last     *Result
}

// New creates a stopped scheduler.
func New(source Source, sink Sink, opts Options) *Scheduler {
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.ApplyTimeout <= 0 {
		opts.ApplyTimeout = DefaultApplyTimeout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Scheduler{
		source: source,
		sink:   sink,
		opts:   opts,
	}
}

// Location returns the timezone schedules are evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.opts.Location
}

// Start spawns the loop. It returns false, without starting anything, when
// there is nothing to schedule or a loop is already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil || s.source.Len() == 0 {
		log.Warn().Str("reason", "no displays loaded").Msg("Failed to start scheduler")
		return false
	}
	if s.runningLocked() {
		log.Warn().Str("reason", "already running").Msg("Failed to start scheduler")
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.run(loopCtx, done)

	return true
}

// Stop cancels the loop and waits for it to drain. An in-flight apply is
// allowed to finish, bounded by the apply timeout.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.runningLocked() {
		log.Warn().Str("reason", "not running").Msg("Failed to stop scheduler")
		return false
	}

	log.Info().Msg("Stopping scheduler")
	s.cancel()
	<-s.done

	s.cancel = nil
	s.done = nil
	return true
}

// Restart stops the loop if it is running and starts it again.
func (s *Scheduler) Restart(ctx context.Context) bool {
	if s.Running() {
		s.Stop()
	}
	return s.Start(ctx)
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Scheduler) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// run is the loop body: tick, then sleep for one period or until cancelled.
func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	log.Info().Dur("period", s.opts.Period).Msg("Scheduler started")

	for {
		s.Tick(ctx, "scheduler")

		timer := time.NewTimer(s.opts.Period)

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Scheduler stopped")
			return

		case <-timer.C:
		}
	}
}

// Tick computes the batch for the current time and applies it. If ctx is
// already cancelled the batch is dropped before anything is written.
func (s *Scheduler) Tick(ctx context.Context, source string) Result {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	started := time.Now()
	batch := s.Compute(s.opts.Clock())
	res := Result{Batch: batch, Source: source}

	switch {
	case ctx.Err() != nil:
		res.Err = ctx.Err()
		log.Debug().Str("batch_id", batch.ID).Msg("Tick cancelled before apply")
		return res

	case len(batch.Commands) == 0:
		log.Debug().Str("batch_id", batch.ID).Msg("Nothing to apply")

	default:
		// The write batch runs to completion even if a stop arrives meanwhile.
		applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ApplyTimeout)
		res.Err = s.sink.Apply(applyCtx, batch)
		cancel()
		res.Applied = res.Err == nil

		if res.Err != nil {
			log.Error().
				Err(res.Err).
				Str("batch_id", batch.ID).
				Int("commands", len(batch.Commands)).
				Msg("Failed to apply VCP batch")
		} else {
			log.Info().
				Str("batch_id", batch.ID).
				Int("commands", len(batch.Commands)).
				Str("time", schedule.ReadableTime(batch.Hour)).
				Msg("Applied VCP batch")
		}
	}

	res.Duration = time.Since(started)
	s.record(res)
	return res
}

// Compute builds the batch for the given instant without applying it.
func (s *Scheduler) Compute(at time.Time) Batch {
	at = at.In(s.opts.Location)
	hour := schedule.HourOf(at)

	batch := Batch{
		ID:   uuid.NewString(),
		At:   at,
		Hour: hour,
	}
	if s.source == nil {
		return batch
	}

	for _, target := range s.source.Snapshot() {
		ctrl := target.Controller
		if !ctrl.Schedulable() {
			continue
		}

		raw, err := schedule.Interpolate(ctrl.Points, hour)
		if err != nil {
			log.Warn().Err(err).Str("display", target.Display.LongID()).Str("code", ctrl.Code).Msg("Skipping code")
			continue
		}

		cmd := Command{Display: target.Display, Code: ctrl.Code}
		value := raw
		if s.opts.Adjuster != nil {
			adjusted, err := s.opts.Adjuster.Adjust(cmd, raw, hour)
			if err == nil && (math.IsNaN(adjusted) || math.IsInf(adjusted, 0)) {
				err = fmt.Errorf("adjusted value is not finite: %v", adjusted)
			}
			if err != nil {
				log.Warn().Err(err).Str("display", target.Display.LongID()).Str("code", ctrl.Code).Msg("Adjust failed, using scheduled value")
			} else if adjusted != raw {
				value = ctrl.Constraint().Snap(adjusted)
			}
		}
		cmd.Value = schedule.Round(value)

		log.Debug().
			Str("display", target.Display.LongID()).
			Str("number_id", target.Display.NumberID).
			Str("code", ctrl.Code).
			Int("value", cmd.Value).
			Msg("Computed VCP value")

		batch.Commands = append(batch.Commands, cmd)
	}

	return batch
}

func (s *Scheduler) record(res Result) {
	s.statusMu.Lock()
	s.last = &res
	s.statusMu.Unlock()

	if s.opts.OnResult != nil {
		s.opts.OnResult(res)
	}
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running bool
	Period  time.Duration
	Last    *Result
}

// Status returns the current status.
func (s *Scheduler) Status() Status {
	st := Status{Running: s.Running(), Period: s.opts.Period}

	s.statusMu.RLock()
	if s.last != nil {
		last := *s.last
		st.Last = &last
	}
	s.statusMu.RUnlock()

	return st
}
