package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/diewo77/garage-records/internal/config"
	"github.com/diewo77/garage-records/internal/models"
	"github.com/diewo77/garage-records/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flags override the environment when set.
type flags struct {
	port     string
	mode     string
	dataFile string
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "server",
		Short:         "Garage records backend (clients, quotes, invoices)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(f)
		},
	}
	root.PersistentFlags().StringVar(&f.port, "port", "", "listen port (overrides PORT)")
	root.PersistentFlags().StringVar(&f.mode, "mode", "", "storage mode: remote, local or hybrid (overrides STORAGE_MODE)")
	root.PersistentFlags().StringVar(&f.dataFile, "data-file", "", "path of the JSON data file (overrides DATA_FILE)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(f)
		},
	})

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Insert the records of a dataset file, skipping ids that already exist",
		Long: `Insert every record of a JSON dataset file independently.

Records whose id already exists are reported as failures; running the same import
twice reports every record of the second run as a duplicate.

Examples:
  server import --file backup.json
  server import --file backup.json --mode local --data-file data/data.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			return runImport(cmd.Context(), f, path)
		},
	}
	importCmd.Flags().String("file", "", "dataset file to import ({clients, quotes, invoices})")
	_ = importCmd.MarkFlagRequired("file")
	root.AddCommand(importCmd)

	root.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Replace the remote store content with the data file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), f)
		},
	})
	return root
}

// loadConfig reads .env, the environment and the flags, in increasing precedence.
func loadConfig(f flags) (*config.Config, error) {
	_ = godotenv.Load()
	cfg := config.Load()
	if f.port != "" {
		cfg.Server.Port = f.port
	}
	if f.mode != "" {
		mode, err := config.ParseStorageMode(f.mode)
		if err != nil {
			return nil, err
		}
		cfg.Storage.Mode = mode
	}
	if f.dataFile != "" {
		cfg.Storage.DataFile = f.dataFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serve(f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, afero.NewOsFs(), logger)
	if err != nil {
		return err
	}
	defer app.close()

	go app.coord.WatchRemote(ctx, cfg.Remote.ProbeInterval, cfg.Remote.ConnectTimeout, cfg.Remote.SyncOnReconnect)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.New(app.coord, cfg.Server, cfg.App.StrictValidation, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Server.Port).Str("mode", string(app.coord.Mode())).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
	logger.Info().Msg("server stopped gracefully")
	return nil
}

func runImport(ctx context.Context, f flags, path string) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.App)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	ds, err := models.DecodeDataset(data)
	if err != nil {
		return err
	}

	app, err := buildApp(ctx, cfg, afero.NewOsFs(), logger)
	if err != nil {
		return err
	}
	defer app.close()

	res, err := app.coord.Import(ctx, &ds)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"target": res.Target, "results": res.Results})
}

func runSync(ctx context.Context, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.App)

	app, err := buildApp(ctx, cfg, afero.NewOsFs(), logger)
	if err != nil {
		return err
	}
	defer app.close()

	counts, err := app.coord.PushFileToRemote(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "pushed %d clients, %d quotes, %d invoices\n", counts.Clients, counts.Quotes, counts.Invoices)
	return nil
}
