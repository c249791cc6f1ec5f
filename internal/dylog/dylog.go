// Package dylog centralizes zap logger construction for the dypy packages.
// Components default to a no-op logger; callers opt into output by injecting
// a logger built here (or any *zap.Logger of their own).
package dylog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Nop returns a logger that discards everything. It is the default for every
// component in this module so that library users get silence unless they ask.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// New builds a production-encoded logger. With debug=true the level drops to
// Debug so resolution traces become visible.
func New(debug bool) *zap.Logger {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// Named returns l named after the given subsystem, tolerating nil.
func Named(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		return zap.NewNop().Named(name)
	}
	return l.Named(name)
}
