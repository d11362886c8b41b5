package gateway

import (
	"sync"
	"time"
)

// EntryKind tags diagnostic log entries.
type EntryKind string

const (
	EntryOpen  EntryKind = "open"
	EntryRecv  EntryKind = "recv"
	EntrySend  EntryKind = "send"
	EntryClose EntryKind = "close"
	EntryKill  EntryKind = "kill"
	EntryError EntryKind = "error"
)

// Entry is one diagnostic record.
type Entry struct {
	Kind   EntryKind `json:"kind"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// EventLog is an append-only log of recent gateway events for
// operational visibility. It grows until reset through the admin API;
// it is deliberately thin and holds no business state.
type EventLog struct {
	mu      sync.Mutex
	entries []Entry
}

// NewEventLog constructs an empty event log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Append records one entry.
func (l *EventLog) Append(kind EntryKind, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Kind: kind, Detail: detail, At: time.Now()})
}

// Entries returns a snapshot copy of the log.
func (l *EventLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Reset discards all entries.
func (l *EventLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
