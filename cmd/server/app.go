package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/diewo77/garage-records/internal/config"
	"github.com/diewo77/garage-records/internal/filestore"
	"github.com/diewo77/garage-records/internal/remote"
	"github.com/diewo77/garage-records/internal/remote/drivers"
	"github.com/diewo77/garage-records/internal/services"
)

// app bundles what the commands share.
type app struct {
	coord *services.Coordinator
	log   zerolog.Logger
}

// buildApp opens the data file and the remote store for cfg. In remote mode an
// unreachable remote is fatal; in hybrid mode it is logged and the probe takes over.
// A reachable remote first receives the writes a previous run could not send it.
func buildApp(ctx context.Context, cfg *config.Config, fsys afero.Fs, logger zerolog.Logger) (*app, error) {
	mode := cfg.EffectiveMode()
	if mode != cfg.Storage.Mode {
		logger.Warn().Str("configured", string(cfg.Storage.Mode)).Str("mode", string(mode)).
			Msg("no remote URI configured, running on the data file only")
	}

	var file *filestore.Store
	if mode != config.ModeRemote {
		var err error
		file, err = filestore.Open(fsys, cfg.Storage.DataFile, logger)
		if err != nil {
			return nil, fmt.Errorf("opening data file: %w", err)
		}
	}

	var store remote.Store
	if mode != config.ModeLocal {
		var err error
		store, err = drivers.Open(ctx, cfg.Remote, logger)
		if err != nil {
			return nil, fmt.Errorf("configuring remote store: %w", err)
		}
	}

	conn := remote.NewConnection(store, cfg.Remote.FailureThreshold, logger)
	coord := services.NewCoordinator(mode, file, conn, cfg.App.StrictValidation, logger)
	if err := coord.Connect(ctx, cfg.Remote.ConnectTimeout); err != nil {
		if mode == config.ModeRemote {
			_ = coord.Close(context.Background())
			return nil, fmt.Errorf("remote store required in remote mode: %w", err)
		}
		logger.Warn().Err(err).Dur("probe_interval", cfg.Remote.ProbeInterval).
			Msg("remote store unreachable, serving from the data file")
	} else if store != nil {
		logger.Info().Str("driver", store.Name()).Msg("remote store connected")
		if mode == config.ModeHybrid && cfg.Remote.SyncOnReconnect {
			// Writes left pending by a previous run.
			if _, err := coord.CatchUp(ctx); err != nil {
				logger.Warn().Err(err).Msg("catch-up at startup incomplete, pending writes kept")
			}
		}
	}
	return &app{coord: coord, log: logger}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.coord.Close(ctx); err != nil {
		a.log.Warn().Err(err).Msg("closing remote store")
	}
}

// newLogger builds the root logger from the app settings.
func newLogger(cfg config.AppConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("env", cfg.Env).Logger()
}
