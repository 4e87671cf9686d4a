package logstore

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level classifies a stored event. The store only distinguishes the levels
// surfaced to operators; debug output stays in the process log.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// DefaultMaxEntries bounds the ring when no explicit size is configured.
const DefaultMaxEntries = 1000

// Entry is one structured event scoped to a back-end server.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ServerName string    `json:"serverName"`
	Level      Level     `json:"level"`
	Message    string    `json:"message"`
	Error      string    `json:"error,omitempty"`
}

// Listener receives every entry added to the store, after it has been
// recorded. Listeners are invoked synchronously and must return quickly.
type Listener func(Entry)

// Store is a bounded in-memory ring of server-scoped events with listener
// fan-out. When the ring is full the oldest entry is evicted.
type Store struct {
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
	listeners  map[int]Listener
	nextID     int
}

// New creates a store bounded to maxEntries. Values below 1 fall back to
// DefaultMaxEntries.
func New(maxEntries int) *Store {
	if maxEntries < 1 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{
		maxEntries: maxEntries,
		listeners:  make(map[int]Listener),
	}
}

// AddLog records an event for the named server and notifies listeners.
func (s *Store) AddLog(serverName string, level Level, message string, err error) {
	entry := Entry{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		ServerName: serverName,
		Level:      level,
		Message:    message,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.maxEntries {
		// Drop the oldest entries; copy keeps the backing array from growing
		// without bound.
		overflow := len(s.entries) - s.maxEntries
		s.entries = append([]Entry(nil), s.entries[overflow:]...)
	}
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(entry)
	}
}

// Entries returns a snapshot of the stored entries, oldest first.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// EntriesForServer returns the stored entries for one server, oldest first.
func (s *Store) EntriesForServer(serverName string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.ServerName == serverName {
			out = append(out, e)
		}
	}
	return out
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Clear drops all stored entries. Listeners stay registered.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
