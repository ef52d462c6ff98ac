package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logger struct {
	logger *zap.SugaredLogger
}

var log logger

// Nop logger until main calls init, so tests and library use stay quiet.
func init() {
	log.logger = zap.NewNop().Sugar()
}

func logLevel(verbose, quiet bool) zapcore.Level {
	switch {
	case verbose:
		return zapcore.DebugLevel
	case quiet:
		return zapcore.WarnLevel
	}
	return zapcore.InfoLevel
}

func (l *logger) init(verbose, quiet bool) {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), logLevel(verbose, quiet))
	l.logger = zap.New(core).Sugar()
}

func (l *logger) sync() {
	_ = l.logger.Sync()
}

func (l *logger) Print(a ...interface{}) {
	l.logger.Info(a...)
}

func (l *logger) Printf(format string, a ...interface{}) {
	l.logger.Infof(format, a...)
}

func (l *logger) Debug(a ...interface{}) {
	l.logger.Debug(a...)
}

func (l *logger) Debugf(format string, a ...interface{}) {
	l.logger.Debugf(format, a...)
}

func (l *logger) Warn(a ...interface{}) {
	l.logger.Warn(a...)
}

func (l *logger) Warnf(format string, a ...interface{}) {
	l.logger.Warnf(format, a...)
}

func (l *logger) Error(a ...interface{}) {
	l.logger.Error(a...)
}

func (l *logger) Errorf(format string, a ...interface{}) {
	l.logger.Errorf(format, a...)
}
