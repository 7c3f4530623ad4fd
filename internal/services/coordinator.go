// Package services holds the persistence coordinator: it decides per operation whether
// the remote store or the data file serves it, and reports what happened to each.
package services

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/config"
	"github.com/diewo77/garage-records/internal/filestore"
	"github.com/diewo77/garage-records/internal/models"
	"github.com/diewo77/garage-records/internal/remote"
)

// Coordinator owns the data file and the remote connection. In local mode the connection
// is never used; in remote mode the file is never written.
type Coordinator struct {
	mode   config.StorageMode
	file   *filestore.Store
	conn   *remote.Connection
	strict bool
	log    zerolog.Logger
}

// NewCoordinator wires the stores together. conn may wrap a nil store.
func NewCoordinator(mode config.StorageMode, file *filestore.Store, conn *remote.Connection, strict bool, logger zerolog.Logger) *Coordinator {
	if conn == nil {
		conn = remote.NewConnection(nil, 0, logger)
	}
	return &Coordinator{
		mode:   mode,
		file:   file,
		conn:   conn,
		strict: strict,
		log:    logger.With().Str("component", "coordinator").Logger(),
	}
}

// Mode returns the storage mode.
func (c *Coordinator) Mode() config.StorageMode { return c.mode }

// Connection exposes the remote connection state.
func (c *Coordinator) Connection() *remote.Connection { return c.conn }

// useRemote reports whether the next operation should go to the remote store.
func (c *Coordinator) useRemote() bool {
	return c.mode != config.ModeLocal && c.conn.Connected()
}

// tracking reports whether file-only writes must be remembered for the remote store.
func (c *Coordinator) tracking() bool {
	return c.mode == config.ModeHybrid && c.conn.Configured()
}

// track remembers a write that reached only the data file.
func (c *Coordinator) track(kind models.Kind, id int64, deleted bool) {
	if !c.tracking() {
		return
	}
	if err := c.file.Track(kind, id, deleted); err != nil {
		c.log.Error().Err(err).Str("kind", string(kind)).Int64("id", id).
			Msg("could not record a write the remote store missed")
	}
}

// forget drops a pending entry superseded by a successful remote write.
func (c *Coordinator) forget(kind models.Kind, id int64) {
	if !c.tracking() {
		return
	}
	if err := c.file.Forget(kind, id); err != nil {
		c.log.Error().Err(err).Str("kind", string(kind)).Int64("id", id).Msg("could not update pending changes")
	}
}

func (c *Coordinator) remoteUnavailable() error {
	reason := c.conn.Status().Reason
	if reason == "" {
		reason = "not connected"
	}
	return apperr.New(apperr.KindUnavailable, "remote store unavailable: "+reason, nil)
}

// LoadAll returns the whole dataset. The remote store answers when connected; in hybrid
// mode any remote failure falls back to the file, and an unreadable file yields the
// empty dataset. In remote mode remote failures are returned.
func (c *Coordinator) LoadAll(ctx context.Context) (models.Dataset, error) {
	if c.useRemote() {
		ds, err := c.findAll(ctx)
		if err == nil {
			return ds, nil
		}
		if c.mode == config.ModeRemote {
			return models.Dataset{}, err
		}
		c.log.Warn().Err(err).Msg("remote load failed, serving the data file")
	} else if c.mode == config.ModeRemote {
		return models.Dataset{}, c.remoteUnavailable()
	}

	ds, err := c.file.Load()
	if err != nil {
		c.log.Error().Err(err).Str("path", c.file.Path()).Msg("data file unreadable, serving an empty dataset")
		return models.EmptyDataset(), nil
	}
	return ds, nil
}

// findAll reads the three collections concurrently.
func (c *Coordinator) findAll(ctx context.Context) (models.Dataset, error) {
	store := c.conn.Store()
	ds := models.EmptyDataset()
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range models.Kinds {
		dst := ds.Target(kind)
		g.Go(func() error {
			return store.FindAll(gctx, kind, dst)
		})
	}
	if err := g.Wait(); err != nil {
		c.conn.ReportFailure(err)
		return models.Dataset{}, err
	}
	c.conn.ReportSuccess()
	ds.Normalize()
	return ds, nil
}

// ReplaceAll validates ds, writes it to the data file, then to the remote store when
// connected. All three collections must be non-nil. The operation fails with persistence_failure when the durable copy could not
// be written: the file outside remote mode, the remote store in remote mode.
func (c *Coordinator) ReplaceAll(ctx context.Context, ds models.Dataset) (ReplaceResult, error) {
	if err := ds.RequireCollections(); err != nil {
		return ReplaceResult{}, err
	}
	ds.Normalize()
	if err := ds.Validate(c.strict); err != nil {
		return ReplaceResult{}, err
	}
	res := ReplaceResult{
		File:  skipped("storage mode " + string(c.mode)),
		Mongo: skipped("remote store not connected"),
		Saved: ds.Counts(),
	}

	var before filestore.Pending
	if c.tracking() {
		before = c.file.Pending()
	}
	if c.mode != config.ModeRemote {
		if err := c.file.Save(ds); err != nil {
			c.log.Error().Err(err).Msg("data file write failed")
			res.File = failed(err)
		} else {
			res.File = succeeded()
		}
	}

	switch {
	case c.useRemote():
		store := c.conn.Store()
		if err := store.ReplaceAll(ctx, ds); err != nil {
			c.conn.ReportFailure(err)
			c.log.Warn().Err(err).Str("driver", store.Name()).Msg("remote replace failed")
			res.Mongo = failed(err)
		} else {
			c.conn.ReportSuccess()
			res.Mongo = succeeded()
		}
		res.Mongo.Driver = store.Name()
	case c.mode == config.ModeLocal:
		res.Mongo = skipped("storage mode local")
	case c.mode == config.ModeRemote:
		res.Mongo = failed(c.remoteUnavailable())
	}

	if c.tracking() && res.File.Success {
		var err error
		if res.Mongo.Success {
			err = c.file.AcknowledgeFull(before)
		} else {
			err = c.file.MarkFull()
		}
		if err != nil {
			c.log.Error().Err(err).Msg("could not update pending changes")
		}
	}

	durable := res.File
	if c.mode == config.ModeRemote {
		durable = res.Mongo
	}
	if !durable.Success {
		err := apperr.New(apperr.KindPersistenceFailure, "no durable copy was written", durable.err)
		c.log.Error().Err(err).Msg("replace failed")
		return res, err
	}
	return res, nil
}

// UpsertOne stores rec, replacing any record of the same kind and id. When connected it
// writes the remote store only, so the data file may lag until the next full replace.
// A hybrid write that lands in the file only is remembered and replayed on reconnect.
func (c *Coordinator) UpsertOne(ctx context.Context, rec models.Record) (models.Record, error) {
	if err := c.validateRecord(rec); err != nil {
		return nil, err
	}

	if c.useRemote() {
		store := c.conn.Store()
		stored, err := store.UpsertOne(ctx, rec)
		if err == nil {
			c.conn.ReportSuccess()
			c.forget(rec.RecordKind(), rec.RecordID())
			return stored, nil
		}
		c.conn.ReportFailure(err)
		if c.mode == config.ModeRemote {
			return nil, err
		}
		c.log.Warn().Err(err).Str("kind", string(rec.RecordKind())).Int64("id", rec.RecordID()).
			Msg("remote upsert failed, writing the data file")
	} else if c.mode == config.ModeRemote {
		return nil, c.remoteUnavailable()
	}

	err := c.file.Update(func(ds *models.Dataset) error {
		ds.Upsert(rec)
		return nil
	})
	if err != nil {
		c.log.Error().Err(err).Msg("data file upsert failed")
		return nil, apperr.New(apperr.KindPersistenceFailure, "upsert not persisted", err)
	}
	c.track(rec.RecordKind(), rec.RecordID(), false)
	return rec, nil
}

// DeleteOne removes the record of kind with id. A missing record is not an error:
// deleted is false.
func (c *Coordinator) DeleteOne(ctx context.Context, kind models.Kind, id int64) (bool, error) {
	if id <= 0 {
		return false, apperr.Invalid("invalid id", map[string]string{"id": "must_be_positive"})
	}

	if c.useRemote() {
		deleted, err := c.conn.Store().DeleteOne(ctx, kind, id)
		if err == nil {
			c.conn.ReportSuccess()
			c.forget(kind, id)
			return deleted, nil
		}
		c.conn.ReportFailure(err)
		if c.mode == config.ModeRemote {
			return false, err
		}
		c.log.Warn().Err(err).Str("kind", string(kind)).Int64("id", id).Msg("remote delete failed, writing the data file")
	} else if c.mode == config.ModeRemote {
		return false, c.remoteUnavailable()
	}

	var deleted bool
	err := c.file.Update(func(ds *models.Dataset) error {
		deleted = ds.Delete(kind, id)
		return nil
	})
	if err != nil {
		c.log.Error().Err(err).Msg("data file delete failed")
		return false, apperr.New(apperr.KindPersistenceFailure, "delete not persisted", err)
	}
	c.track(kind, id, true)
	return deleted, nil
}

// Status describes the stores for the health endpoint.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	st := Status{
		Mode:   c.mode,
		Remote: c.conn.Status(),
		Source: SourceFile,
	}
	if c.mode != config.ModeRemote {
		st.File = c.file.Path()
	}

	if c.useRemote() {
		counts, err := c.countRemote(ctx)
		if err == nil {
			st.Counts = counts
			st.Source = SourceRemote
			st.Remote = c.conn.Status()
			return st, nil
		}
		if c.mode == config.ModeRemote {
			return st, err
		}
		c.log.Warn().Err(err).Msg("remote count failed, counting the data file")
		st.Remote = c.conn.Status()
	} else if c.mode == config.ModeRemote {
		return st, c.remoteUnavailable()
	}

	ds, err := c.file.Load()
	if err != nil {
		return st, err
	}
	st.Counts = ds.Counts()
	return st, nil
}

func (c *Coordinator) countRemote(ctx context.Context) (models.Counts, error) {
	store := c.conn.Store()
	var counts models.Counts
	for _, kind := range models.Kinds {
		n, err := store.CountAll(ctx, kind)
		if err != nil {
			c.conn.ReportFailure(err)
			return models.Counts{}, err
		}
		counts.Set(kind, n)
	}
	c.conn.ReportSuccess()
	return counts, nil
}

func (c *Coordinator) validateRecord(rec models.Record) error {
	if rec == nil {
		return apperr.Invalid("missing record", nil)
	}
	rec.Normalize()
	return models.ValidateRecord(rec, c.strict)
}

// Close releases the remote connection.
func (c *Coordinator) Close(ctx context.Context) error {
	if store := c.conn.Store(); store != nil {
		return store.Close(ctx)
	}
	return nil
}
