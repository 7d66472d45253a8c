package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Environment string

const (
	Production  Environment = "production"
	Development Environment = "development"
)

// Logger is the logging interface every component of the service takes. It is
// a thin facade over zap so call sites stay stable if the backend changes.
type Logger interface {
	Debug(msg string, tags ...interface{})
	Debugf(format string, args ...interface{})
	Info(msg string, tags ...interface{})
	Infof(format string, args ...interface{})
	Warn(msg string, tags ...interface{})
	Warnf(format string, args ...interface{})
	Error(msg string, tags ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(msg string, tags ...interface{})
	Fatalf(format string, args ...interface{})

	With(tags ...interface{}) Logger
	Sync() error
}

type ZapLogger struct {
	logger *zap.SugaredLogger
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger builds a logger for the given environment. Production uses
// json encoding at info level, development uses console encoding at debug.
func NewZapLogger(env Environment) (*ZapLogger, error) {
	var cfg zap.Config
	if env == Production {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &ZapLogger{logger: l.Sugar()}, nil
}

func (z *ZapLogger) Debug(msg string, tags ...interface{}) { z.logger.Debugw(msg, tags...) }
func (z *ZapLogger) Debugf(format string, args ...interface{}) {
	z.logger.Debugf(format, args...)
}
func (z *ZapLogger) Info(msg string, tags ...interface{}) { z.logger.Infow(msg, tags...) }
func (z *ZapLogger) Infof(format string, args ...interface{}) {
	z.logger.Infof(format, args...)
}
func (z *ZapLogger) Warn(msg string, tags ...interface{}) { z.logger.Warnw(msg, tags...) }
func (z *ZapLogger) Warnf(format string, args ...interface{}) {
	z.logger.Warnf(format, args...)
}
func (z *ZapLogger) Error(msg string, tags ...interface{}) { z.logger.Errorw(msg, tags...) }
func (z *ZapLogger) Errorf(format string, args ...interface{}) {
	z.logger.Errorf(format, args...)
}
func (z *ZapLogger) Fatal(msg string, tags ...interface{}) { z.logger.Fatalw(msg, tags...) }
func (z *ZapLogger) Fatalf(format string, args ...interface{}) {
	z.logger.Fatalf(format, args...)
}

func (z *ZapLogger) With(tags ...interface{}) Logger {
	return &ZapLogger{logger: z.logger.With(tags...)}
}

func (z *ZapLogger) Sync() error { return z.logger.Sync() }
