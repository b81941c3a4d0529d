package session

import (
	"sync"
	"testing"
	"time"

	"sponsorlink/internal/message"
)

type failureRecorder struct {
	mu  sync.Mutex
	got []SendFailure
}

func (r *failureRecorder) record(f SendFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, f)
}

func (r *failureRecorder) failures() []SendFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SendFailure, len(r.got))
	copy(out, r.got)
	return out
}

func TestSendTrackerResolveSuccess(t *testing.T) {
	rec := &failureRecorder{}
	tracker := newSendTracker(time.Minute, rec.record)
	defer tracker.Stop()

	msg, _ := message.New("a", "b", "hi", message.TypeText, "")
	tracker.Track(1, msg)

	if !tracker.Resolve(message.AckPayload{Seq: 1, ID: "srv-1"}) {
		t.Fatal("tracked seq should resolve")
	}
	if len(rec.failures()) != 0 {
		t.Fatal("successful ack must not report failure")
	}
	// Unknown seqs belong to someone else.
	if tracker.Resolve(message.AckPayload{Seq: 42, ID: "srv-2"}) {
		t.Fatal("unknown seq must not resolve here")
	}
}

func TestSendTrackerResolveFailure(t *testing.T) {
	rec := &failureRecorder{}
	tracker := newSendTracker(time.Minute, rec.record)
	defer tracker.Stop()

	msg, _ := message.New("a", "b", "hi", message.TypeText, "")
	tracker.Track(1, msg)
	tracker.Resolve(message.AckPayload{Seq: 1, Error: "nope"})

	failures := rec.failures()
	if len(failures) != 1 || failures[0].Reason != "nope" {
		t.Fatalf("unexpected failures: %+v", failures)
	}
}

func TestSendTrackerExpires(t *testing.T) {
	rec := &failureRecorder{}
	tracker := &sendTracker{
		pending: make(map[int64]pendingSend),
		timeout: 10 * time.Millisecond,
		onFail:  rec.record,
		quit:    make(chan struct{}),
	}

	msg, _ := message.New("a", "b", "hi", message.TypeText, "")
	tracker.Track(1, msg)
	time.Sleep(20 * time.Millisecond)
	tracker.expire()

	failures := rec.failures()
	if len(failures) != 1 || failures[0].Reason != "ack timeout" {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	// A late ack for the expired seq is a no-op.
	if tracker.Resolve(message.AckPayload{Seq: 1, ID: "late"}) {
		t.Fatal("expired seq must not resolve")
	}
}

func TestSendTrackerFailAll(t *testing.T) {
	rec := &failureRecorder{}
	tracker := newSendTracker(time.Minute, rec.record)
	defer tracker.Stop()

	msg, _ := message.New("a", "b", "hi", message.TypeText, "")
	tracker.Track(1, msg)
	tracker.Track(2, msg)
	tracker.FailAll("disconnected")

	if len(rec.failures()) != 2 {
		t.Fatalf("expected both sends flushed, got %d", len(rec.failures()))
	}
}
