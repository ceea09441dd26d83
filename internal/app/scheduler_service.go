package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/monitord/internal/config"
	"github.com/dokzlo13/monitord/internal/kv"
	"github.com/dokzlo13/monitord/internal/ledger"
	"github.com/dokzlo13/monitord/internal/scheduler"
)

const runningKey = "scheduler_running"

// SchedulerService wraps the scheduler and related periodic tasks.
type SchedulerService struct {
	cfg       *config.Config
	Scheduler *scheduler.Scheduler
	ledger    *ledger.Ledger
	state     *kv.SQLiteBucket

	mu  sync.Mutex
	ctx context.Context
}

// NewSchedulerService creates a new SchedulerService. The ledger and state
// bucket are optional.
func NewSchedulerService(
	cfg *config.Config,
	source scheduler.Source,
	sink scheduler.Sink,
	adjuster scheduler.Adjuster,
	l *ledger.Ledger,
	state *kv.SQLiteBucket,
) (*SchedulerService, error) {
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}

	s := &SchedulerService{
		cfg:    cfg,
		ledger: l,
		state:  state,
		ctx:    context.Background(),
	}

	opts := scheduler.Options{
		Period:       cfg.Scheduler.Period.Duration(),
		ApplyTimeout: cfg.Scheduler.ApplyTimeout.Duration(),
		Location:     loc,
		Adjuster:     adjuster,
		OnResult:     s.recordResult,
	}
	s.Scheduler = scheduler.New(source, sink, opts)

	return s, nil
}

// Start runs the background tasks and, if configured, the apply loop.
func (s *SchedulerService) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if s.cfg.Scheduler.IsAutostart() {
		if s.wasStopped() {
			log.Info().Msg("Scheduler was stopped before shutdown, not starting it")
		} else {
			s.Scheduler.Start(ctx)
		}
	} else {
		log.Info().Msg("Scheduler autostart is disabled")
	}

	if interval := s.cfg.Log.PrintSchedule.Duration(); interval > 0 {
		go s.runPrintSchedule(ctx, interval)
	}

	if s.ledger != nil {
		go s.runLedgerCleanup(ctx)
	}
}

// StartLoop starts the apply loop on behalf of a user and remembers the choice.
func (s *SchedulerService) StartLoop() bool {
	ok := s.Scheduler.Start(s.baseContext())
	if ok {
		s.remember(true)
	}
	return ok
}

// StopLoop stops the apply loop on behalf of a user and remembers the choice.
func (s *SchedulerService) StopLoop() bool {
	ok := s.Scheduler.Stop()
	if ok {
		s.remember(false)
	}
	return ok
}

// RestartLoop restarts the apply loop.
func (s *SchedulerService) RestartLoop() bool {
	ok := s.Scheduler.Restart(s.baseContext())
	if ok {
		s.remember(true)
	}
	return ok
}

// ApplyNow runs one tick outside the periodic loop.
func (s *SchedulerService) ApplyNow(ctx context.Context) scheduler.Result {
	return s.Scheduler.Tick(ctx, "manual")
}

// Stop halts the loop without touching the remembered state.
func (s *SchedulerService) Stop() {
	if s.Scheduler.Running() {
		s.Scheduler.Stop()
	}
}

func (s *SchedulerService) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *SchedulerService) remember(running bool) {
	if s.state == nil {
		return
	}
	if err := s.state.Store(runningKey, running); err != nil {
		log.Warn().Err(err).Msg("Failed to persist scheduler state")
	}
}

func (s *SchedulerService) wasStopped() bool {
	if s.state == nil {
		return false
	}
	var running bool
	ok, err := s.state.Load(runningKey, &running)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read scheduler state")
		return false
	}
	return ok && !running
}

// recordResult writes applied batches to the ledger.
func (s *SchedulerService) recordResult(res scheduler.Result) {
	if s.ledger == nil || len(res.Batch.Commands) == 0 {
		return
	}

	commands := make([]any, 0, len(res.Batch.Commands))
	for _, c := range res.Batch.Commands {
		commands = append(commands, map[string]any{
			"display": c.Display.LongID(),
			"code":    c.Code,
			"value":   c.Value,
		})
	}
	payload := map[string]any{
		"commands":    commands,
		"hour":        res.Batch.Hour,
		"duration_ms": res.Duration.Milliseconds(),
	}

	event := ledger.EventApplyCompleted
	if res.Err != nil {
		event = ledger.EventApplyFailed
		payload["error"] = res.Err.Error()
	}

	if err := s.ledger.Append(event, res.Batch.ID, res.Source, payload); err != nil {
		log.Warn().Err(err).Str("batch_id", res.Batch.ID).Msg("Failed to record apply in ledger")
	}
}

// runPrintSchedule periodically logs the schedule table.
func (s *SchedulerService) runPrintSchedule(ctx context.Context, interval time.Duration) {
	printSchedule := func() {
		log.Info().Msg("Current schedule:\n" + s.Scheduler.FormatSchedule(time.Now()))
	}
	printSchedule()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printSchedule()
		}
	}
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *SchedulerService) runLedgerCleanup(ctx context.Context) {
	retention := s.cfg.Ledger.RetentionPeriod.Duration()
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}
