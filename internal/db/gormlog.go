package db

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQuery = 500 * time.Millisecond

// gormLogger routes GORM's logging into zerolog. Queries are logged at trace level,
// slow ones at warn.
type gormLogger struct {
	log   zerolog.Logger
	level gormlogger.LogLevel
}

func newGormLogger(l zerolog.Logger) gormLogger {
	return gormLogger{log: l, level: gormlogger.Warn}
}

func (g gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	g.level = level
	return g
}

func (g gormLogger) Info(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Info {
		g.log.Info().Msgf(msg, args...)
	}
}

func (g gormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Warn {
		g.log.Warn().Msgf(msg, args...)
	}
}

func (g gormLogger) Error(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Error {
		g.log.Error().Msgf(msg, args...)
	}
}

func (g gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= gormlogger.Error:
		sql, rows := fc()
		g.log.Error().Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query failed")
	case elapsed > slowQuery && g.level >= gormlogger.Warn:
		sql, rows := fc()
		g.log.Warn().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("slow query")
	case g.log.GetLevel() <= zerolog.TraceLevel:
		sql, rows := fc()
		g.log.Trace().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query")
	}
}
