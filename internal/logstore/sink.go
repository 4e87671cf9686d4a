package logstore

import "metamcp/pkg/logging"

// LoggingSink forwards warn and error entries from the process log into a
// Store, scoped under the emitting subsystem. Lower levels are dropped; the
// store surfaces operator-relevant events, not debug chatter.
type LoggingSink struct {
	store *Store
}

// NewLoggingSink creates a sink feeding the given store. Register it with
// logging.AddSink.
func NewLoggingSink(store *Store) *LoggingSink {
	return &LoggingSink{store: store}
}

// Consume implements logging.Sink.
func (s *LoggingSink) Consume(e logging.Entry) {
	var level Level
	switch e.Level {
	case logging.LevelWarn:
		level = LevelWarn
	case logging.LevelError:
		level = LevelError
	default:
		return
	}
	s.store.AddLog(e.Subsystem, level, e.Message, e.Err)
}
