package devstub

import "sync/atomic"

// Metrics captures lightweight in-process counters for observability.
type Metrics struct {
	Requests        atomic.Uint64
	LoginAttempts   atomic.Uint64
	Uploads         atomic.Uint64
	SocketConnects  atomic.Uint64
	MessagesRelayed atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Requests        uint64
	LoginAttempts   uint64
	Uploads         uint64
	SocketConnects  uint64
	MessagesRelayed uint64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:        m.Requests.Load(),
		LoginAttempts:   m.LoginAttempts.Load(),
		Uploads:         m.Uploads.Load(),
		SocketConnects:  m.SocketConnects.Load(),
		MessagesRelayed: m.MessagesRelayed.Load(),
	}
}
