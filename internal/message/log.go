package message

import (
	"sync"

	"github.com/google/uuid"
)

// Delivery status of an optimistic log entry.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Entry is one rendered line of a conversation. Outbound entries start
// pending and are reconciled by an ack; they are flagged on failure but
// never silently removed.
type Entry struct {
	LocalID string
	Message Message
	Status  string
	FromMe  bool
}

// Log holds one conversation's messages with explicit delivery status, so
// the UI can render optimistically and reconcile later.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	index   map[string]int
}

func NewLog() *Log {
	return &Log{index: make(map[string]int)}
}

// Append inserts an outbound message as pending and returns its local id
// for later reconciliation.
func (l *Log) Append(msg Message) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := uuid.NewString()
	l.index[id] = len(l.entries)
	l.entries = append(l.entries, Entry{LocalID: id, Message: msg, Status: StatusPending, FromMe: true})
	return id
}

// AddInbound records a message received from the server; inbound messages
// are confirmed by definition.
func (l *Log) AddInbound(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := uuid.NewString()
	l.index[id] = len(l.entries)
	l.entries = append(l.entries, Entry{LocalID: id, Message: msg, Status: StatusConfirmed})
}

// ApplyAck transitions a pending entry to confirmed or failed. It reports
// whether the local id was known and still pending.
func (l *Log) ApplyAck(localID string, ack Ack) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[localID]
	if !ok || l.entries[i].Status != StatusPending {
		return Entry{}, false
	}
	if ack.OK {
		l.entries[i].Status = StatusConfirmed
	} else {
		l.entries[i].Status = StatusFailed
	}
	return l.entries[i], true
}

// Entries returns a snapshot in insertion order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
