// Package drivers builds the remote.Store for a configured driver name.
package drivers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/diewo77/garage-records/internal/config"
	"github.com/diewo77/garage-records/internal/db"
	"github.com/diewo77/garage-records/internal/remote"
	"github.com/diewo77/garage-records/internal/remote/mongostore"
)

// Open builds the adapter for cfg without contacting the server; reachability is
// established by remote.Connection.Connect.
func Open(ctx context.Context, cfg config.RemoteConfig, logger zerolog.Logger) (remote.Store, error) {
	opts := remote.Options{
		URI:            cfg.URI,
		Database:       cfg.Database,
		ConnectTimeout: cfg.ConnectTimeout,
		OpTimeout:      cfg.OpTimeout,
	}
	switch cfg.Driver {
	case config.DriverMongo:
		return mongostore.Dial(ctx, opts, logger)
	case config.DriverPostgres:
		return db.OpenPostgres(opts, logger)
	}
	return nil, fmt.Errorf("unknown remote driver %q", cfg.Driver)
}
