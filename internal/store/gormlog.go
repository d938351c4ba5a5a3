package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slowQueryThreshold はスロークエリとして警告するしきい値。
const slowQueryThreshold = 200 * time.Millisecond

// gormLogger はGORMのログをzerologに流すアダプタ。
type gormLogger struct {
	logger zerolog.Logger
	level  gormlogger.LogLevel
}

func newGormLogger(logger zerolog.Logger) gormlogger.Interface {
	return &gormLogger{logger: logger, level: gormlogger.Warn}
}

// LogMode はgormlogger.Interfaceを実装する。
func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.logger.Info().Msg(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn().Msg(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.logger.Error().Msg(fmt.Sprintf(msg, data...))
	}
}

// Trace はクエリごとに呼ばれ、エラーとスロークエリのみを記録する。
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		query, rows := fc()
		l.logger.Error().Err(err).Str("sql", query).Int64("rows", rows).Dur("elapsed", elapsed).Msg("クエリの実行に失敗")
	case elapsed > slowQueryThreshold && l.level >= gormlogger.Warn:
		query, rows := fc()
		l.logger.Warn().Str("sql", query).Int64("rows", rows).Dur("elapsed", elapsed).Msg("スロークエリ")
	case l.level >= gormlogger.Info:
		query, rows := fc()
		l.logger.Debug().Str("sql", query).Int64("rows", rows).Dur("elapsed", elapsed).Msg("クエリ")
	}
}
