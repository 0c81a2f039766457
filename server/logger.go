package server

import (
	"go.uber.org/zap"
)

type Logger struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

func NewLogger(config *Config) *Logger {

	var logger *zap.Logger

	if config.DevelopmentEnabled {
		logger, _ = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		logger, _ = zap.NewProduction(zap.AddCallerSkip(1))
	}

	return wrapLogger(logger)

}

//NewNopLogger discards everything, used by tests
func NewNopLogger() *Logger {
	return wrapLogger(zap.NewNop())
}

func wrapLogger(logger *zap.Logger) *Logger {
	return &Logger{
		logger: logger,
		sugar:  logger.Sugar(),
	}
}

func (l Logger) Sync() {
	_ = l.logger.Sync()
}

func (l Logger) Debug(args ...interface{}) {
	l.sugar.Debug(args...)
}

func (l Logger) Info(args ...interface{}) {
	l.sugar.Info(args...)
}

func (l Logger) Warn(args ...interface{}) {
	l.sugar.Warn(args...)
}

func (l Logger) Error(args ...interface{}) {
	l.sugar.Error(args...)
}

func (l Logger) Fatal(args ...interface{}) {
	l.sugar.Fatal(args...)
}

func (l Logger) Debugw(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l Logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l Logger) Fatalw(msg string, keysAndValues ...interface{}) {
	l.sugar.Fatalw(msg, keysAndValues...)
}
