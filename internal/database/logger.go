package database

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/charlesng35/accountd/pkg/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// zapLogger routes gorm diagnostics into the service logger. Only slow queries and
// unexpected errors are reported; statements are never logged with their arguments
// because they carry password hashes and tokens.
type zapLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration
}

func newGormLogger() gormlogger.Interface {
	return &zapLogger{level: gormlogger.Warn, slow: slowQueryThreshold}
}

func (l *zapLogger) log() *zap.Logger {
	return logger.WithModule("database")
}

func (l *zapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *zapLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log().Sugar().Infof(msg, args...)
	}
}

func (l *zapLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log().Sugar().Warnf(msg, args...)
	}
}

func (l *zapLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log().Sugar().Errorf(msg, args...)
	}
}

func (l *zapLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error &&
		!errors.Is(err, gormlogger.ErrRecordNotFound) && !errors.Is(err, context.Canceled):
		_, rows := fc()
		l.log().Error("query failed", zap.Error(err), zap.Duration("elapsed", elapsed), zap.Int64("rows", rows))
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		_, rows := fc()
		l.log().Warn("slow query", zap.Duration("elapsed", elapsed), zap.Duration("threshold", l.slow), zap.Int64("rows", rows))
	}
}
