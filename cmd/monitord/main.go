package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/monitord/internal/app"
	"github.com/dokzlo13/monitord/internal/config"
	"github.com/dokzlo13/monitord/internal/schedule"
)

func main() {
	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	preview := flag.String("preview", "", "Print the values scheduled for HH:MM today and exit")
	once := flag.Bool("once", false, "Apply the current values once and exit")
	flag.Parse()

	// Load configuration, a missing default config file means all defaults
	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) && !isFlagSet("config") && !isFlagSet("c") {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logging
	setupLogging(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)

	log.Info().Str("config", configPath).Msg("Starting monitord")

	// Create application
	application, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	switch {
	case *preview != "":
		os.Exit(runPreview(ctx, application, *preview))
	case *once:
		os.Exit(runOnce(ctx, application))
	}

	// Start the application
	if err := application.Start(ctx); err != nil {
		application.Stop()
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	// Wait for shutdown
	application.Wait()

	// Graceful shutdown
	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
}

func runPreview(ctx context.Context, application *app.App, clock string) int {
	defer application.Stop()

	hour, err := schedule.ParseClock(clock)
	if err != nil {
		log.Error().Err(err).Msg("Invalid --preview time")
		return 2
	}

	out, err := application.Preview(ctx, hour)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute schedule")
		return 1
	}
	fmt.Println(out)
	return 0
}

func runOnce(ctx context.Context, application *app.App) int {
	defer application.Stop()

	res, err := application.Once(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to apply schedule")
		return 1
	}
	log.Info().Str("batch_id", res.Batch.ID).Int("commands", len(res.Batch.Commands)).Msg("Applied schedule once")
	return 0
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		// JSON output for production
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		// Text output (with optional colors)
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
