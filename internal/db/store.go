// Package db is the relational remote adapter: each record kind lives in its own table
// of JSON documents (id, position, body), managed through GORM.
//
// Postgres is the production target; tests run the same code against in-memory SQLite.
package db

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/models"
	"github.com/diewo77/garage-records/internal/remote"
)

// document is one stored record. Body holds the record's JSON encoding.
type document struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"`
	Position  int64  `gorm:"not null;default:0;index"`
	Body      string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// Store implements remote.Store on a GORM connection.
type Store struct {
	db        *gorm.DB
	opTimeout time.Duration
	log       zerolog.Logger

	migrateMu sync.Mutex
	migrated  bool
}

var _ remote.Store = (*Store)(nil)

// OpenPostgres prepares a Postgres-backed store. No connection is made until Ping.
func OpenPostgres(opts remote.Options, logger zerolog.Logger) (*Store, error) {
	dsn := NormalizeDSN(opts.URI, opts.Database)
	if dsn == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "empty postgres DSN", nil)
	}
	logger.Debug().Str("dsn", RedactDSN(dsn)).Msg("configuring postgres remote")
	return Open(postgres.Open(dsn), opts, logger)
}

// Open wraps any GORM dialector.
func Open(dialector gorm.Dialector, opts remote.Options, logger zerolog.Logger) (*Store, error) {
	l := logger.With().Str("component", "db").Logger()
	gdb, err := gorm.Open(dialector, &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               newGormLogger(l),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Store{db: gdb, opTimeout: opts.OpTimeout, log: l}, nil
}

func (s *Store) Name() string { return s.db.Dialector.Name() }

// DB returns the underlying GORM handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Ping checks the connection and creates the tables on first success.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return classify("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return s.migrate(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	s.migrateMu.Lock()
	defer s.migrateMu.Unlock()
	if s.migrated {
		return nil
	}
	for _, kind := range models.Kinds {
		if err := s.db.WithContext(ctx).Table(kind.Collection()).AutoMigrate(&document{}); err != nil {
			return classify("migrate "+kind.Collection(), err)
		}
	}
	s.migrated = true
	return nil
}

func (s *Store) FindAll(ctx context.Context, kind models.Kind, dst any) error {
	ctx, cancel := remote.OpContext(ctx, s.opTimeout)
	defer cancel()

	var docs []document
	err := s.db.WithContext(ctx).Table(kind.Collection()).Order("position, id").Find(&docs).Error
	if err != nil {
		return classify("find "+kind.Collection(), err)
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, d := range docs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(d.Body)
	}
	buf.WriteByte(']')
	if err := json.Unmarshal(buf.Bytes(), dst); err != nil {
		return apperr.New(apperr.KindReadFailure, "decoding "+kind.Collection(), err)
	}
	return nil
}

// ReplaceAll empties and refills the three tables in one transaction.
func (s *Store) ReplaceAll(ctx context.Context, ds models.Dataset) error {
	ctx, cancel := remote.OpContext(ctx, s.opTimeout)
	defer cancel()

	batches := make(map[models.Kind][]document, len(models.Kinds))
	now := time.Now().UTC()
	for _, kind := range models.Kinds {
		for i, rec := range ds.Records(kind) {
			doc, err := toDocument(rec, int64(i), now)
			if err != nil {
				return err
			}
			batches[kind] = append(batches[kind], doc)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, kind := range models.Kinds {
			err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
				Table(kind.Collection()).Delete(&document{}).Error
			if err != nil {
				return err
			}
		}
		for _, kind := range models.Kinds {
			if len(batches[kind]) == 0 {
				continue
			}
			batch := batches[kind]
			if err := tx.Table(kind.Collection()).CreateInBatches(&batch, 200).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return classify("replace all", err)
}

func (s *Store) UpsertOne(ctx context.Context, rec models.Record) (models.Record, error) {
	ctx, cancel := remote.OpContext(ctx, s.opTimeout)
	defer cancel()

	table := rec.RecordKind().Collection()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := nextPosition(tx, table)
		if err != nil {
			return err
		}
		doc, err := toDocument(rec, n, time.Now().UTC())
		if err != nil {
			return err
		}
		return tx.Table(table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
		}).Create(&doc).Error
	})
	if err != nil {
		return nil, classify("upsert "+table, err)
	}
	return rec, nil
}

func (s *Store) InsertOne(ctx context.Context, rec models.Record) (bool, error) {
	ctx, cancel := remote.OpContext(ctx, s.opTimeout)
	defer cancel()

	table := rec.RecordKind().Collection()
	var inserted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := nextPosition(tx, table)
		if err != nil {
			return err
		}
		doc, err := toDocument(rec, n, time.Now().UTC())
		if err != nil {
			return err
		}
		res := tx.Table(table).Clauses(clause.OnConflict{DoNothing: true}).Create(&doc)
		inserted = res.RowsAffected == 1
		return res.Error
	})
	if err != nil {
		return false, classify("insert "+table, err)
	}
	return inserted, nil
}

func (s *Store) DeleteOne(ctx context.Context, kind models.Kind, id int64) (bool, error) {
	ctx, cancel := remote.OpContext(ctx, s.opTimeout)
	defer cancel()

	res := s.db.WithContext(ctx).Table(kind.Collection()).Where("id = ?", id).Delete(&document{})
	if res.Error != nil {
		return false, classify("delete "+kind.Collection(), res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) CountAll(ctx context.Context, kind models.Kind) (int64, error) {
	ctx, cancel := remote.OpContext(ctx, s.opTimeout)
	defer cancel()

	var n int64
	if err := s.db.WithContext(ctx).Table(kind.Collection()).Count(&n).Error; err != nil {
		return 0, classify("count "+kind.Collection(), err)
	}
	return n, nil
}

func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// nextPosition returns the position after the last document of table. Deleted rows
// leave gaps, so the row count can name a taken position.
func nextPosition(tx *gorm.DB, table string) (int64, error) {
	var next int64
	err := tx.Table(table).Select("COALESCE(MAX(position), -1) + 1").Row().Scan(&next)
	return next, err
}

func toDocument(rec models.Record, position int64, now time.Time) (document, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return document{}, apperr.New(apperr.KindInternal, "encoding record", err)
	}
	return document{ID: rec.RecordID(), Position: position, Body: string(body), UpdatedAt: now}, nil
}

// classify adds the driver-specific connection errors to remote.Classify.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *pgconn.ConnectError
	if errors.As(err, &ce) || errors.Is(err, driver.ErrBadConn) {
		return apperr.New(apperr.KindUnavailable, op+" lost the connection", err)
	}
	return remote.Classify(op, err)
}
