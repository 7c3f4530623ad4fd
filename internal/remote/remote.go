// Package remote defines the contract of a remote document store and tracks whether
// the process can currently reach it.
//
// Adapters live in sub-packages (mongostore) and in internal/db. Every adapter
// operation bounds itself with its own per-operation timeout, separate from the
// connect timeout, and never retries on its own: falling back is the caller's call.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/models"
)

// Store is a remote document database holding one collection per record kind.
type Store interface {
	// Name identifies the driver ("mongo", "postgres", ...).
	Name() string
	Ping(ctx context.Context) error
	// FindAll decodes every record of kind into dst, which must be a pointer to
	// []models.Client, []models.Quote or []models.Invoice.
	FindAll(ctx context.Context, kind models.Kind, dst any) error
	// ReplaceAll deletes every record of every kind, then inserts ds, in that order.
	ReplaceAll(ctx context.Context, ds models.Dataset) error
	// UpsertOne replaces the record with the same id or inserts it, and returns the
	// stored record. Applying it twice leaves the same state as applying it once.
	UpsertOne(ctx context.Context, rec models.Record) (models.Record, error)
	// InsertOne inserts rec only when no record of its kind has its id.
	// inserted is false when the id was already taken.
	InsertOne(ctx context.Context, rec models.Record) (inserted bool, err error)
	DeleteOne(ctx context.Context, kind models.Kind, id int64) (deleted bool, err error)
	CountAll(ctx context.Context, kind models.Kind) (int64, error)
	Close(ctx context.Context) error
}

// Options configures an adapter.
type Options struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	OpTimeout      time.Duration
}

// DefaultOpTimeout is used when Options.OpTimeout is zero.
const DefaultOpTimeout = 5 * time.Second

// OpContext derives the per-operation deadline.
func OpContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Classify wraps err in the apperr kind the coordinator acts on: deadlines become
// operation_timeout, network failures become unavailable. Errors that already carry a
// kind are returned as they are.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(apperr.KindOperationTimeout, op+" timed out", err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return apperr.New(apperr.KindOperationTimeout, op+" timed out", err)
		}
		return apperr.New(apperr.KindUnavailable, op+" lost the connection", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// PartialReplaceError reports a non-transactional ReplaceAll that stopped midway.
// Stage is "delete" or "insert"; Kind is the collection being processed.
type PartialReplaceError struct {
	Stage string
	Kind  models.Kind
	Err   error
}

func (e *PartialReplaceError) Error() string {
	return fmt.Sprintf("replace stopped during %s of %s: %v", e.Stage, e.Kind.Collection(), e.Err)
}

func (e *PartialReplaceError) Unwrap() error { return e.Err }
