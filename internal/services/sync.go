package services

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/config"
	"github.com/diewo77/garage-records/internal/filestore"
	"github.com/diewo77/garage-records/internal/models"
	"github.com/diewo77/garage-records/internal/remote"
)

// PushFileToRemote replaces the remote content with the data file's dataset.
func (c *Coordinator) PushFileToRemote(ctx context.Context) (models.Counts, error) {
	if c.mode == config.ModeRemote {
		return models.Counts{}, apperr.New(apperr.KindInvalidInput, "no data file in remote mode", nil)
	}
	if !c.useRemote() {
		return models.Counts{}, c.remoteUnavailable()
	}
	before := c.file.Pending()
	ds, err := c.file.Load()
	if err != nil {
		return models.Counts{}, err
	}
	store := c.conn.Store()
	if err := store.ReplaceAll(ctx, ds); err != nil {
		c.conn.ReportFailure(err)
		return models.Counts{}, err
	}
	c.conn.ReportSuccess()
	if err := c.file.AcknowledgeFull(before); err != nil {
		c.log.Error().Err(err).Msg("could not update pending changes")
	}
	counts := ds.Counts()
	c.log.Info().Str("driver", store.Name()).Interface("counts", counts).Msg("data file pushed to remote store")
	return counts, nil
}

// CatchUpResult reports what a catch-up sent to the remote store.
type CatchUpResult struct {
	Full     bool          `json:"full"`
	Pushed   models.Counts `json:"pushed"`
	Replayed int           `json:"replayed"`
	Failed   int           `json:"failed"`
}

// CatchUp sends the remote store the writes that reached only the data file while it was
// unreachable. A bulk replace made meanwhile pushes the whole file; otherwise each
// changed record is upserted or deleted on its own, so records written to the remote
// store alone are left untouched. Replayed changes are acknowledged; failed ones stay
// pending for the next attempt.
func (c *Coordinator) CatchUp(ctx context.Context) (CatchUpResult, error) {
	if c.mode != config.ModeHybrid {
		return CatchUpResult{}, nil
	}
	if !c.useRemote() {
		return CatchUpResult{}, c.remoteUnavailable()
	}
	pending := c.file.Pending()
	if pending.Empty() {
		c.log.Debug().Msg("remote store already in step with the data file")
		return CatchUpResult{}, nil
	}
	if pending.NeedsFullPush() {
		counts, err := c.PushFileToRemote(ctx)
		if err != nil {
			return CatchUpResult{Full: true}, err
		}
		return CatchUpResult{Full: true, Pushed: counts}, nil
	}

	ds, err := c.file.Load()
	if err != nil {
		return CatchUpResult{}, err
	}
	store := c.conn.Store()
	var (
		res  CatchUpResult
		done []filestore.Change
		errs *multierror.Error
	)
	for _, ch := range pending.Changes {
		if err := c.replay(ctx, store, &ds, ch); err != nil {
			c.conn.ReportFailure(err)
			errs = multierror.Append(errs, fmt.Errorf("%s %d: %w", ch.Kind, ch.ID, err))
			if !c.conn.Connected() {
				break
			}
			continue
		}
		c.conn.ReportSuccess()
		done = append(done, ch)
	}
	res.Replayed = len(done)
	res.Failed = len(pending.Changes) - len(done)
	if err := c.file.Acknowledge(done); err != nil {
		c.log.Error().Err(err).Msg("could not update pending changes")
	}

	ev := c.log.Info()
	if errs.ErrorOrNil() != nil {
		ev = c.log.Warn().Err(errs)
	}
	ev.Str("driver", store.Name()).Int("replayed", res.Replayed).Int("failed", res.Failed).
		Msg("remote store caught up with the data file")
	return res, errs.ErrorOrNil()
}

func (c *Coordinator) replay(ctx context.Context, store remote.Store, ds *models.Dataset, ch filestore.Change) error {
	if ch.Deleted {
		_, err := store.DeleteOne(ctx, ch.Kind, ch.ID)
		return err
	}
	rec := ds.Find(ch.Kind, ch.ID)
	if rec == nil {
		c.log.Warn().Str("kind", string(ch.Kind)).Int64("id", ch.ID).
			Msg("pending record no longer in the data file, skipping")
		return nil
	}
	_, err := store.UpsertOne(ctx, rec)
	return err
}

// Connect runs the startup probe against the remote store.
func (c *Coordinator) Connect(ctx context.Context, timeout time.Duration) error {
	if c.mode == config.ModeLocal || !c.conn.Configured() {
		return nil
	}
	return c.conn.Connect(ctx, timeout)
}

// WatchRemote probes the remote store every interval while it is unreachable. When it
// comes back and catchUp is set, the writes it missed are replayed. It blocks until ctx
// is done.
func (c *Coordinator) WatchRemote(ctx context.Context, interval, timeout time.Duration, catchUp bool) {
	if c.mode == config.ModeLocal {
		return
	}
	c.conn.Watch(ctx, interval, timeout, func(ctx context.Context) {
		if !catchUp || c.mode != config.ModeHybrid {
			return
		}
		if _, err := c.CatchUp(ctx); err != nil {
			c.log.Error().Err(err).Msg("catch-up after reconnect failed")
		}
	})
}
