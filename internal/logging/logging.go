// Package logging provides the structured logger used throughout the
// engine, wrapping go-kit/log the way a production storage engine
// wires up component-scoped loggers.
package logging

import (
	"os"
	"sync"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is a named, structured logger. Every component obtains its
// own instance via GetLogger so log lines carry a "module" field.
type Logger struct {
	kl kitlog.Logger
}

var (
	mu      sync.Mutex
	base    = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	loggers = map[string]*Logger{}
)

// GetLogger returns the (cached) logger for the given module name.
func GetLogger(module string) *Logger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[module]; ok {
		return l
	}
	l := &Logger{kl: kitlog.With(base, "module", module, "ts", kitlog.DefaultTimestampUTC)}
	loggers[module] = l
	return l
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	_ = level.Debug(l.kl).Log(append([]interface{}{"msg", msg}, keyvals...)...)
}

func (l *Logger) Info(msg string, keyvals ...interface{}) {
	_ = level.Info(l.kl).Log(append([]interface{}{"msg", msg}, keyvals...)...)
}

func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	_ = level.Warn(l.kl).Log(append([]interface{}{"msg", msg}, keyvals...)...)
}

func (l *Logger) Error(msg string, keyvals ...interface{}) {
	_ = level.Error(l.kl).Log(append([]interface{}{"msg", msg}, keyvals...)...)
}
