// Package corelog wires the core's logging through a single zap logger.
package corelog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

// Level mirrors the "-Xverify:log=LEVEL" style knob described in the
// core's config surface. Off disables verifier/class-loading trace
// entirely; the other levels map onto zap's.
type Level int

const (
	LevelOff Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelError:
		return zapcore.ErrorLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Init installs the process-wide logger at the given level. Off installs
// a no-op logger so call sites never need to guard on whether logging is
// enabled.
func Init(level Level) {
	mu.Lock()
	defer mu.Unlock()
	if level == LevelOff {
		log = zap.NewNop()
		return
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	l, err := cfg.Build()
	if err != nil {
		log = zap.NewNop()
		return
	}
	log = l
}

// L returns the current process-wide logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}
