package session

import (
	"sync"
	"time"

	"sponsorlink/internal/message"
)

const trackerSweepInterval = time.Second

// SendFailure is delivered on the send-failure side channel when a
// dispatched message is rejected or never acknowledged.
type SendFailure struct {
	Message message.Message
	Reason  string
}

type pendingSend struct {
	msg      message.Message
	deadline time.Time
}

// sendTracker watches dispatched messages until their ack arrives. Sends
// are confirmed or failed after the fact; the sender never blocks on them.
type sendTracker struct {
	mu      sync.Mutex
	pending map[int64]pendingSend
	timeout time.Duration
	onFail  func(SendFailure)
	quit    chan struct{}
	once    sync.Once
}

func newSendTracker(timeout time.Duration, onFail func(SendFailure)) *sendTracker {
	tracker := &sendTracker{
		pending: make(map[int64]pendingSend),
		timeout: timeout,
		onFail:  onFail,
		quit:    make(chan struct{}),
	}
	go tracker.loop()
	return tracker
}

func (t *sendTracker) Track(seq int64, msg message.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[seq] = pendingSend{msg: msg, deadline: time.Now().Add(t.timeout)}
}

// Resolve consumes an ack for a tracked send. It reports whether the seq
// belonged to a send at all, so room acks can be routed elsewhere.
func (t *sendTracker) Resolve(payload message.AckPayload) bool {
	t.mu.Lock()
	entry, ok := t.pending[payload.Seq]
	if ok {
		delete(t.pending, payload.Seq)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	if ack := payload.Normalize(); !ack.OK {
		reason := ack.Reason
		if reason == "" {
			reason = "rejected by server"
		}
		t.onFail(SendFailure{Message: entry.msg, Reason: reason})
	}
	return true
}

// Fail drops a tracked send immediately, e.g. when the write itself failed.
func (t *sendTracker) Fail(seq int64, reason string) {
	t.mu.Lock()
	entry, ok := t.pending[seq]
	if ok {
		delete(t.pending, seq)
	}
	t.mu.Unlock()
	if ok {
		t.onFail(SendFailure{Message: entry.msg, Reason: reason})
	}
}

// FailAll flushes every tracked send, used on teardown.
func (t *sendTracker) FailAll(reason string) {
	t.mu.Lock()
	expired := make([]pendingSend, 0, len(t.pending))
	for seq, entry := range t.pending {
		expired = append(expired, entry)
		delete(t.pending, seq)
	}
	t.mu.Unlock()
	for _, entry := range expired {
		t.onFail(SendFailure{Message: entry.msg, Reason: reason})
	}
}

func (t *sendTracker) loop() {
	ticker := time.NewTicker(trackerSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.expire()
		case <-t.quit:
			return
		}
	}
}

func (t *sendTracker) expire() {
	now := time.Now()
	t.mu.Lock()
	var expired []pendingSend
	for seq, entry := range t.pending {
		if now.After(entry.deadline) {
			expired = append(expired, entry)
			delete(t.pending, seq)
		}
	}
	t.mu.Unlock()
	for _, entry := range expired {
		t.onFail(SendFailure{Message: entry.msg, Reason: "ack timeout"})
	}
}

func (t *sendTracker) Stop() {
	t.once.Do(func() { close(t.quit) })
}
