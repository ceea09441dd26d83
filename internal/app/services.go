package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/monitord/internal/cmm"
	"github.com/dokzlo13/monitord/internal/config"
	"github.com/dokzlo13/monitord/internal/db"
	"github.com/dokzlo13/monitord/internal/display"
	"github.com/dokzlo13/monitord/internal/kv"
	"github.com/dokzlo13/monitord/internal/ledger"
	"github.com/dokzlo13/monitord/internal/lua"
	"github.com/dokzlo13/monitord/internal/scheduler"
	"github.com/dokzlo13/monitord/internal/store"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	State  *kv.SQLiteBucket

	// Hardware access
	Runner    cmm.Runner
	Discovery *cmm.Discovery
	Sink      *cmm.Sink

	// Optional script
	Lua *lua.Runtime

	// High-level services
	Displays  *DisplayService
	Scheduler *SchedulerService
	Watcher   *store.Watcher
	Control   *ControlService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	return newServices(cfg, cmm.NewExecRunner(cfg.Tool.Path, cfg.Tool.Timeout.Duration()))
}

func newServices(cfg *config.Config, runner cmm.Runner) (*Services, error) {
	s := &Services{cfg: cfg, Runner: runner}

	for _, dir := range []string{cfg.Paths.Config, cfg.Paths.Temp} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	if cfg.Ledger.IsEnabled() {
		s.Ledger = ledger.New(database.DB)
	}
	s.State = kv.NewSQLiteBucket(database.DB, "service")

	// Tool adapters
	s.Discovery = cmm.NewDiscovery(runner, cfg.Paths.Temp)
	s.Sink = cmm.NewSink(runner)

	// Displays and their schedule files
	files := store.NewFiles(cfg.Paths.Config)
	s.Displays = NewDisplayService(display.NewRegistry(), files, s.Discovery)

	var adjuster scheduler.Adjuster
	if cfg.Script != "" {
		s.Lua = lua.NewRuntime()
		if err := s.Lua.LoadScript(cfg.Script, filepath.Dir(cfg.Script)); err != nil {
			s.Close()
			return nil, err
		}
		adjuster = s.Lua
	}

	s.Scheduler, err = NewSchedulerService(cfg, s.Displays.Registry, s.Sink, adjuster, s.Ledger, s.State)
	if err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Watch.IsEnabled() {
		s.Watcher = store.NewWatcher(files, s.Displays.Registry, cfg.Watch.Debounce.Duration())
	}

	s.Control = NewControlService(cfg, s.Scheduler, s.Displays, s.Ledger)

	return s, nil
}

// LoadDisplays runs discovery and fills the registry.
func (s *Services) LoadDisplays(ctx context.Context) error {
	n, err := s.Displays.Load(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		log.Warn().Msg("No displays found, the scheduler will not start until displays are reloaded")
	}
	return nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	if err := s.LoadDisplays(ctx); err != nil {
		return err
	}

	if s.Watcher != nil {
		go func() {
			if err := s.Watcher.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Schedule watcher error")
			}
		}()
	}

	s.Scheduler.Start(ctx)
	s.Control.Start(ctx)

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
