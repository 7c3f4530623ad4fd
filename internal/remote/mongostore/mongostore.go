// Package mongostore is the MongoDB remote adapter. Records are stored as plain documents
// in the clients, quotes and invoices collections, keyed by a unique "id" field.
package mongostore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/models"
	"github.com/diewo77/garage-records/internal/remote"
)

// DefaultDatabase is used when no database name is configured.
const DefaultDatabase = "garage"

// codeIllegalOperation is returned by standalone servers that cannot run transactions.
const codeIllegalOperation = 20

// Store implements remote.Store on a MongoDB database.
type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	opTimeout time.Duration
	log       zerolog.Logger

	// noTxn is set once the server has refused a transaction.
	noTxn atomic.Bool

	indexMu sync.Mutex
	indexed bool
}

var _ remote.Store = (*Store)(nil)

// Dial configures a client for opts.URI. The driver connects lazily, so an unreachable
// server surfaces on the first Ping, not here.
func Dial(ctx context.Context, opts remote.Options, logger zerolog.Logger) (*Store, error) {
	co := options.Client().ApplyURI(opts.URI)
	if opts.ConnectTimeout > 0 {
		co.SetConnectTimeout(opts.ConnectTimeout).SetServerSelectionTimeout(opts.ConnectTimeout)
	}
	client, err := mongo.Connect(ctx, co)
	if err != nil {
		return nil, apperr.New(apperr.KindUnavailable, "configuring mongo client", err)
	}
	name := opts.Database
	if name == "" {
		name = DefaultDatabase
	}
	return &Store{
		client:    client,
		db:        client.Database(name),
		opTimeout: opts.OpTimeout,
		log:       logger.With().Str("component", "mongostore").Str("database", name).Logger(),
	}, nil
}

func (s *Store) Name() string { return "mongo" }

func (s *Store) coll(kind models.Kind) *mongo.Collection {
	return s.db.Collection(kind.Collection())
}

// Ping checks the primary and creates the unique id indexes on first success.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return classify("ping", err)
	}
	return s.ensureIndexes(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if s.indexed {
		return nil
	}
	for _, kind := range models.Kinds {
		_, err := s.coll(kind).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("id_unique"),
		})
		if err != nil {
			return classify("create index on "+kind.Collection(), err)
		}
	}
	s.indexed = true
	return nil
}

func (s *Store) FindAll(ctx context.Context, kind models.Kind, dst any) error {
	ctx, cancel := remote.OpContext(ctx, s.opTimeout)
	defer cancel()

	cur, err := s.coll(kind).Find(ctx, bson.D{}, options.Find().SetProjection(bson.D{{Key: "_id", Value: 0}}))
	if err != nil {
		return classify("find "+kind.Collection(), err)
	}
	if err := cur.All(ctx, dst); err != nil {
		return classify("decode "+kind.Collection(), err)
	}
	return nil
}

// ReplaceAll runs the delete-then-insert sequence inside a transaction. Servers without
// transaction support get the same sequence without one; a failure midway is then
// reported as a *remote.PartialReplaceError.
func (s *Store) ReplaceAll(ctx context.Context, ds models.Dataset) error {
	ctx, cancel := remote.OpContext(ctx, s.opTimeout)
	defer cancel()

	if !s.noTxn.Load() {
		err := s.replaceInTxn(ctx, ds)
		if !isIllegalOperation(err) {
			return classify("replace all", err)
		}
		s.noTxn.Store(true)
		s.log.Warn().Msg("server does not support transactions, replacing without one")
	}
	return classify("replace all", s.replace(ctx, ds))
}

func (s *Store) replaceInTxn(ctx context.Context, ds models.Dataset) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, s.replace(sc, ds)
	})
	return err
}

func (s *Store) replace(ctx context.Context, ds models.Dataset) error {
	for _, kind := range models.Kinds {
		if _, err := s.coll(kind).DeleteMany(ctx, bson.D{}); err != nil {
			return &remote.PartialReplaceError{Stage: "delete", Kind: kind, Err: err}
		}
	}
	for _, kind := range models.Kinds {
		recs := ds.Records(kind)
		if len(recs) == 0 {
			continue
		}
		docs := make([]any, len(recs))
		for i, r := range recs {
			docs[i] = r
		}
		if _, err := s.coll(kind).InsertMany(ctx, docs); err != nil {
			return &remote.PartialReplaceError{Stage: "insert", Kind: kind, Err: err}
		}
	}
	return nil
}

func (s *Store) UpsertOne(ctx context.Context, rec models.Record) (models.Record, error) {
	ctx, cancel := remote.OpContext(ctx, s.opTimeout)
	defer cancel()

	kind := rec.RecordKind()
	opts := options.FindOneAndReplace().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: "_id", Value: 0}})
	res := s.coll(kind).FindOneAndReplace(ctx, bson.D{{Key: "id", Value: rec.RecordID()}}, rec, opts)
	stored := models.NewRecord(kind)
	if err := res.Decode(stored); err != nil {
		return nil, classify("upsert "+kind.Collection(), err)
	}
	stored.Normalize()
	return stored, nil
}

func (s *Store) InsertOne(ctx context.Context, rec models.Record) (bool, error) {
	ctx, cancel := remote.OpContext(ctx, s.opTimeout)
	defer cancel()

	kind := rec.RecordKind()
	res, err := s.coll(kind).UpdateOne(ctx,
		bson.D{{Key: "id", Value: rec.RecordID()}},
		bson.D{{Key: "$setOnInsert", Value: rec}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, classify("insert "+kind.Collection(), err)
	}
	return res.UpsertedCount == 1, nil
}

func (s *Store) DeleteOne(ctx context.Context, kind models.Kind, id int64) (bool, error) {
	ctx, cancel := remote.OpContext(ctx, s.opTimeout)
	defer cancel()

	res, err := s.coll(kind).DeleteOne(ctx, bson.D{{Key: "id", Value: id}})
	if err != nil {
		return false, classify("delete "+kind.Collection(), err)
	}
	return res.DeletedCount > 0, nil
}

func (s *Store) CountAll(ctx context.Context, kind models.Kind) (int64, error) {
	ctx, cancel := remote.OpContext(ctx, s.opTimeout)
	defer cancel()

	n, err := s.coll(kind).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, classify("count "+kind.Collection(), err)
	}
	return n, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func isIllegalOperation(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorCode(codeIllegalOperation)
}

// classify maps driver errors to apperr kinds before deferring to remote.Classify.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, mongo.ErrClientDisconnected), mongo.IsNetworkError(err):
		return apperr.New(apperr.KindUnavailable, op+" lost the connection", err)
	case mongo.IsTimeout(err):
		return apperr.New(apperr.KindOperationTimeout, op+" timed out", err)
	}
	return remote.Classify(op, err)
}
