package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sponsorlink/internal/message"
)

func TestConnectIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	c := newTestClient(t, h, nil)

	if err := c.Connect(); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if !c.Connected() {
		t.Fatal("client should be connected")
	}
	// Give a second dial, if any, time to land on the server.
	time.Sleep(50 * time.Millisecond)
	if got := h.Conns(); got != 1 {
		t.Fatalf("expected exactly one live connection, got %d", got)
	}
}

func TestConnectWithoutCredentialsIsLocalFailure(t *testing.T) {
	h := newHarness(t, nil)
	c := NewClient(Options{URL: h.URL(), Source: staticSource{}})
	defer c.Close()

	if err := c.Connect(); err != ErrNoCredentials {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if h.Conns() != 0 {
		t.Fatal("no network action expected without credentials")
	}
}

func TestConnectRegistersOwnInbox(t *testing.T) {
	var mu sync.Mutex
	var registered message.RegisterRequest
	h := newHarness(t, func(conn *websocket.Conn, env message.Envelope) {
		if env.Event == message.EventRegister {
			mu.Lock()
			_ = json.Unmarshal(env.Data, &registered)
			mu.Unlock()
		}
	})
	c := newTestClient(t, h, nil)
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return registered.UserID == "athlete-1" && registered.Role == "athlete"
	})
}

func TestDisconnectClearsMembership(t *testing.T) {
	h := newHarness(t, func(conn *websocket.Conn, env message.Envelope) {
		if env.Event == message.EventJoinRoom {
			writeAck(t, conn, message.AckPayload{Seq: env.Seq, Status: "joined"})
		}
	})
	c := newTestClient(t, h, nil)
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !c.JoinRoom("brand-7") {
		t.Fatal("join should succeed")
	}
	if c.CurrentRoom() != "brand-7" {
		t.Fatalf("focused room = %q", c.CurrentRoom())
	}

	c.Disconnect()
	if c.Connected() {
		t.Fatal("still connected after disconnect")
	}
	if len(c.JoinedRooms()) != 0 || c.CurrentRoom() != "" {
		t.Fatal("membership must be cleared on disconnect")
	}
	// Idempotent on an already-disconnected session.
	c.Disconnect()
}

func TestInboundMessageFanOut(t *testing.T) {
	h := newHarness(t, nil)
	c := newTestClient(t, h, nil)
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var mu sync.Mutex
	var got []message.Message
	c.OnMessage(func(m message.Message) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})

	inbound, _ := message.New("brand-7", "athlete-1", "offer attached", message.TypeDocument, "http://files/contract.pdf")
	env, _ := message.NewEnvelope(message.EventReceive, 0, inbound)
	if err := h.LastConn().WriteJSON(env); err != nil {
		t.Fatalf("server push: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0].Content == "offer attached"
	})
}

func TestListenerIsolation(t *testing.T) {
	b := newBus()
	var mu sync.Mutex
	countA, countB := 0, 0
	unsubA := b.onMessage(func(message.Message) {
		mu.Lock()
		countA++
		mu.Unlock()
	})
	b.onMessage(func(message.Message) {
		mu.Lock()
		countB++
		mu.Unlock()
	})

	b.emitMessage(message.Message{Content: "one"})
	unsubA()
	b.emitMessage(message.Message{Content: "two"})

	mu.Lock()
	defer mu.Unlock()
	if countA != 1 {
		t.Fatalf("unsubscribed listener fired %d times, want 1", countA)
	}
	if countB != 2 {
		t.Fatalf("remaining listener fired %d times, want 2", countB)
	}
}

func TestConnectionChangeOnServerClose(t *testing.T) {
	h := newHarness(t, nil)
	c := newTestClient(t, h, func(o *Options) {
		o.ReconnectBase = 20 * time.Millisecond
	})

	var mu sync.Mutex
	var transitions []bool
	c.OnConnectionChange(func(online bool) {
		mu.Lock()
		transitions = append(transitions, online)
		mu.Unlock()
	})

	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h.LastConn().Close()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) >= 2 && transitions[0] == true && transitions[1] == false
	})
	// The automatic retry should bring the session back up.
	waitFor(t, func() bool { return h.Conns() >= 2 && c.Connected() })
	if got := c.ReconnectAttempts(); got != 0 {
		t.Fatalf("attempts not reset after reconnect, got %d", got)
	}
}

func TestBackoffStopsAfterMaxAttempts(t *testing.T) {
	c := NewClient(Options{
		URL:           "ws://127.0.0.1:1", // nothing listens here
		Source:        staticSource{creds: testCreds()},
		ReconnectBase: 10 * time.Millisecond,
		MaxReconnects: 2,
	})
	defer c.Close()

	if err := c.Connect(); err == nil {
		t.Fatal("expected dial error")
	}
	waitFor(t, func() bool { return c.ReconnectAttempts() == 2 })
	time.Sleep(100 * time.Millisecond)
	if got := c.ReconnectAttempts(); got != 2 {
		t.Fatalf("retries continued past the limit: %d", got)
	}
	if c.Connected() {
		t.Fatal("client cannot be connected")
	}
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	h := newHarness(t, nil)
	c := newTestClient(t, h, func(o *Options) {
		o.ReconnectBase = 200 * time.Millisecond
	})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Server-side drop arms an automatic retry.
	h.LastConn().Close()
	waitFor(t, func() bool { return c.ReconnectAttempts() == 1 })

	// An explicit teardown must win over the armed retry even though the
	// server is still reachable.
	c.Disconnect()
	time.Sleep(500 * time.Millisecond)
	if got := h.Conns(); got != 1 {
		t.Fatalf("session came back after explicit disconnect: %d dials", got)
	}
	if c.Connected() {
		t.Fatal("client reconnected itself after explicit disconnect")
	}
	if got := c.ReconnectAttempts(); got != 0 {
		t.Fatalf("retries continued after explicit disconnect: attempts=%d", got)
	}
}

func TestBackoffDelaysGrowLinearly(t *testing.T) {
	const base = 40 * time.Millisecond
	var mu sync.Mutex
	var dials []time.Time
	// Every dial lands here and is refused, so each retry leaves a timestamp.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials = append(dials, time.Now())
		mu.Unlock()
		http.Error(w, "upgrade refused", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Options{
		URL:           "ws" + strings.TrimPrefix(srv.URL, "http"),
		Source:        staticSource{creds: testCreds()},
		ReconnectBase: base,
		MaxReconnects: 3,
	})
	defer c.Close()

	if err := c.Connect(); err == nil {
		t.Fatal("expected dial error")
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dials) == 4 // initial dial plus three retries
	})

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(dials); i++ {
		want := time.Duration(i) * base
		if gap := dials[i].Sub(dials[i-1]); gap < want {
			t.Fatalf("retry %d fired %s after the previous failure, want at least %s", i, gap, want)
		}
	}
}

func TestManualReconnect(t *testing.T) {
	h := newHarness(t, nil)
	c := newTestClient(t, h, nil)
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Reconnect(); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if !c.Connected() {
		t.Fatal("expected connected after manual reconnect")
	}
	waitFor(t, func() bool { return h.Conns() == 2 })
}
