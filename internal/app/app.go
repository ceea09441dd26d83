package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/monitord/internal/config"
	"github.com/dokzlo13/monitord/internal/schedule"
	"github.com/dokzlo13/monitord/internal/scheduler"
)

// App is the main application container that manages all services and their lifecycle.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new App instance with all services initialized but not started.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Start initializes and starts all services.
// The provided context is used for cancellation.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.services.Start(a.ctx); err != nil {
		a.cancel()
		return err
	}

	log.Info().Msg("monitord started")
	return nil
}

// Preview loads displays and renders the batch that would be applied at the
// given hour of today, without touching any monitor.
func (a *App) Preview(ctx context.Context, hour float64) (string, error) {
	if err := a.services.LoadDisplays(ctx); err != nil {
		return "", err
	}

	sched := a.services.Scheduler.Scheduler
	at := schedule.OnDay(time.Now().In(sched.Location()), hour)
	return sched.FormatSchedule(at), nil
}

// Once loads displays and applies a single batch for the current time.
func (a *App) Once(ctx context.Context) (scheduler.Result, error) {
	if err := a.services.LoadDisplays(ctx); err != nil {
		return scheduler.Result{}, err
	}
	res := a.services.Scheduler.ApplyNow(ctx)
	return res, res.Err
}

// Stop gracefully shuts down all services.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}

	if a.services != nil {
		return a.services.Stop()
	}

	return nil
}

// Wait blocks until the application context is cancelled.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
