package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sponsorlink/internal/message"
)

type staticSource struct {
	creds Credentials
	err   error
}

func (s staticSource) Load() (Credentials, error) {
	return s.creds, s.err
}

func testCreds() Credentials {
	return Credentials{Token: "tok", UserID: "athlete-1", Role: "athlete"}
}

// wsHarness runs a websocket endpoint that feeds every inbound envelope to
// the configured handler on the connection's read goroutine.
type wsHarness struct {
	srv *httptest.Server

	mu     sync.Mutex
	conns  int
	last   *websocket.Conn
	handle func(*websocket.Conn, message.Envelope)
}

func newHarness(t *testing.T, handle func(*websocket.Conn, message.Envelope)) *wsHarness {
	t.Helper()
	h := &wsHarness{handle: handle}
	upgrader := websocket.Upgrader{}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.mu.Lock()
		h.conns++
		h.last = conn
		h.mu.Unlock()
		defer conn.Close()
		for {
			var env message.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			h.mu.Lock()
			fn := h.handle
			h.mu.Unlock()
			if fn != nil {
				fn(conn, env)
			}
		}
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *wsHarness) URL() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

func (h *wsHarness) Conns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns
}

func (h *wsHarness) LastConn() *websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func writeAck(t *testing.T, conn *websocket.Conn, payload message.AckPayload) {
	t.Helper()
	env, err := message.NewEnvelope(message.EventAck, payload.Seq, payload)
	if err != nil {
		t.Fatalf("build ack: %v", err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write ack: %v", err)
	}
}

func newTestClient(t *testing.T, h *wsHarness, mutate func(*Options)) *Client {
	t.Helper()
	opts := Options{
		URL:    h.URL(),
		Source: staticSource{creds: testCreds()},
	}
	if mutate != nil {
		mutate(&opts)
	}
	c := NewClient(opts)
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
