package logsvc

import (
	"sync"

	"github.com/trezcool/ripoti/core"
)

// Entry is a log event recorded by a RecorderLogger.
type Entry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// RecorderLogger keeps the events in memory. Used by tests.
type RecorderLogger struct {
	mu      sync.Mutex
	entries []Entry
}

var _ core.Logger = (*RecorderLogger)(nil)

func NewRecorderLogger() *RecorderLogger {
	return &RecorderLogger{}
}

func (l *RecorderLogger) record(level, msg string, args []interface{}) {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Level: level, Msg: msg, Args: args})
	l.mu.Unlock()
}

func (l *RecorderLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

func (l *RecorderLogger) Debug(msg string, args ...interface{}) { l.record("debug", msg, args) }
func (l *RecorderLogger) Info(msg string, args ...interface{})  { l.record("info", msg, args) }
func (l *RecorderLogger) Warn(msg string, args ...interface{})  { l.record("warn", msg, args) }
func (l *RecorderLogger) Error(msg string, args ...interface{}) { l.record("error", msg, args) }
func (l *RecorderLogger) Fatal(msg string, args ...interface{}) { l.record("fatal", msg, args) }
