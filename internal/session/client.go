package session

import (
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sponsorlink/internal/message"
)

// Connection lifecycle states.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	defaultJoinTimeout   = 5 * time.Second
	defaultSendTimeout   = 5 * time.Second
	defaultReconnectBase = 2 * time.Second
	defaultMaxReconnects = 5
	reconnectPause       = 500 * time.Millisecond
)

var (
	ErrNoCredentials = errors.New("session: no stored credentials")
	ErrNotConnected  = errors.New("session: not connected")
)

// Credentials identify this client to the realtime backend.
type Credentials struct {
	Token  string
	UserID string
	Role   string
}

// Valid reports whether the credentials are usable for a handshake.
func (c Credentials) Valid() bool {
	return c.Token != "" && c.UserID != ""
}

// CredentialSource resolves stored credentials at connect time.
type CredentialSource interface {
	Load() (Credentials, error)
}

// Options configures a Client. Zero durations and counts fall back to the
// defaults above.
type Options struct {
	URL           string
	Source        CredentialSource
	JoinTimeout   time.Duration
	SendTimeout   time.Duration
	ReconnectBase time.Duration
	MaxReconnects int
	Dialer        *websocket.Dialer
}

// Client owns the single realtime connection for this process. All
// consumers share it through the listener bus instead of opening their own.
type Client struct {
	opts  Options
	bus   *bus
	sends *sendTracker

	writeMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	epoch    int
	attempts int
	retry    *time.Timer
	seq      int64
	userID   string
	role     string
	joined   map[string]bool
	current  string
	pending  map[int64]chan message.AckPayload
	manual   bool
}

// NewClient wires a client around the given options. The connection is not
// opened until Connect.
func NewClient(opts Options) *Client {
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoinTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = defaultReconnectBase
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = defaultMaxReconnects
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	c := &Client{
		opts:    opts,
		bus:     newBus(),
		joined:  make(map[string]bool),
		pending: make(map[int64]chan message.AckPayload),
	}
	c.sends = newSendTracker(opts.SendTimeout, c.bus.emitSendFailure)
	return c
}

// Connect opens the connection, authenticating with the stored token,
// user id and role. Calling it while connected is a no-op on the existing
// connection. Missing credentials fail locally before any network action.
func (c *Client) Connect() error {
	return c.connect(false)
}

// connect is the shared dial path. Automatic retries pass auto=true so a
// session the user explicitly tore down stays down.
func (c *Client) connect(auto bool) error {
	c.mu.Lock()
	if auto && c.manual {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateConnected && c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	if c.opts.Source == nil {
		c.mu.Unlock()
		return ErrNoCredentials
	}
	creds, err := c.opts.Source.Load()
	if err != nil || !creds.Valid() {
		c.mu.Unlock()
		return ErrNoCredentials
	}
	c.state = StateConnecting
	if !auto {
		c.manual = false
		c.stopRetryLocked()
	}
	c.mu.Unlock()

	endpoint, err := handshakeURL(c.opts.URL, creds)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}
	conn, resp, err := c.opts.Dialer.Dial(endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.scheduleRetry()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.epoch++
	epoch := c.epoch
	c.state = StateConnected
	c.attempts = 0
	c.userID = creds.UserID
	c.role = creds.Role
	c.mu.Unlock()

	go c.readLoop(conn, epoch)
	c.registerInbox(conn, creds)
	c.bus.emitConnection(true)
	return nil
}

// registerInbox tells the server this client is reachable, right after the
// low-level connect succeeds.
func (c *Client) registerInbox(conn *websocket.Conn, creds Credentials) {
	env, err := message.NewEnvelope(message.EventRegister, 0, message.RegisterRequest{
		UserID: creds.UserID,
		Role:   creds.Role,
	})
	if err != nil {
		return
	}
	if err := c.write(conn, env); err != nil {
		log.Printf("session: inbox register failed: %v", err)
	}
}

// Disconnect tears the connection down, clears room membership and resets
// the retry counter. Safe to call on an already-disconnected client.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manual = true
	c.stopRetryLocked()
	conn := c.conn
	c.conn = nil
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	c.attempts = 0
	c.joined = make(map[string]bool)
	c.current = ""
	c.epoch++
	waiters := c.pending
	c.pending = make(map[int64]chan message.AckPayload)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	for _, ch := range waiters {
		close(ch)
	}
	c.sends.FailAll("disconnected")
	if wasConnected {
		c.bus.emitConnection(false)
	}
}

// Reconnect is the manual recovery path: tear down, pause briefly, dial
// again. Distinct from the automatic backoff.
func (c *Client) Reconnect() error {
	c.Disconnect()
	time.Sleep(reconnectPause)
	return c.Connect()
}

// Close releases background resources. The client is unusable afterwards.
func (c *Client) Close() {
	c.Disconnect()
	c.sends.Stop()
}

func (c *Client) readLoop(conn *websocket.Conn, epoch int) {
	for {
		var env message.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.connectionLost(epoch, err)
			return
		}
		c.dispatch(env)
	}
}

func (c *Client) connectionLost(epoch int, err error) {
	c.mu.Lock()
	if epoch != c.epoch {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	manual := c.manual
	wasConnected := c.state == StateConnected
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	if wasConnected {
		c.bus.emitConnection(false)
	}
	if manual {
		return
	}
	log.Printf("session: connection lost: %v", err)
	c.scheduleRetry()
}

// scheduleRetry arms the next automatic reconnect with linear backoff.
// After MaxReconnects consecutive failures the client stays disconnected
// until an explicit Reconnect.
func (c *Client) scheduleRetry() {
	c.mu.Lock()
	if c.manual {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.opts.MaxReconnects {
		c.mu.Unlock()
		log.Printf("session: giving up after %d reconnect attempts", c.opts.MaxReconnects)
		return
	}
	c.attempts++
	attempt := c.attempts
	delay := time.Duration(attempt) * c.opts.ReconnectBase
	c.stopRetryLocked()
	c.retry = time.AfterFunc(delay, func() {
		if err := c.connect(true); err != nil && !errors.Is(err, ErrNoCredentials) {
			log.Printf("session: reconnect failed: %v", err)
		}
	})
	c.mu.Unlock()

	log.Printf("session: reconnect attempt %d in %s", attempt, delay)
}

// stopRetryLocked cancels a pending automatic reconnect. Callers hold c.mu.
func (c *Client) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Client) dispatch(env message.Envelope) {
	switch env.Event {
	case message.EventAck:
		var payload message.AckPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			log.Printf("session: bad ack payload: %v", err)
			return
		}
		if payload.Seq == 0 {
			payload.Seq = env.Seq
		}
		if c.sends.Resolve(payload) {
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[payload.Seq]
		if ok {
			delete(c.pending, payload.Seq)
		}
		c.mu.Unlock()
		if ok {
			ch <- payload
		}
	case message.EventReceive:
		var msg message.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			log.Printf("session: bad message payload: %v", err)
			return
		}
		// Inbound messages are not room-scoped; routing to the focused
		// conversation or a notification is the consumer's call.
		c.bus.emitMessage(msg)
	case message.EventChatList:
		var list []message.ConversationSummary
		if err := json.Unmarshal(env.Data, &list); err != nil {
			log.Printf("session: bad chat list payload: %v", err)
			return
		}
		c.bus.emitChatList(list)
	case message.EventStartCall, message.EventAcceptCall, message.EventEndCall:
		var sig message.CallSignal
		if err := json.Unmarshal(env.Data, &sig); err != nil {
			log.Printf("session: bad call payload: %v", err)
			return
		}
		sig.Kind = env.Event
		c.bus.emitCall(sig)
	default:
		log.Printf("session: unhandled event %q", env.Event)
	}
}

func (c *Client) write(conn *websocket.Conn, env message.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(env)
}

// ReconnectAttempts returns the number of consecutive automatic reconnect
// attempts since the last successful connection.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// OnMessage subscribes to inbound chat messages from any room.
func (c *Client) OnMessage(fn func(message.Message)) func() {
	return c.bus.onMessage(fn)
}

// OnConnectionChange subscribes to transitions into and out of the
// connected state. This is the sole online/offline signal.
func (c *Client) OnConnectionChange(fn func(bool)) func() {
	return c.bus.onConnection(fn)
}

// OnChatListUpdate subscribes to server-pushed sidebar refreshes.
func (c *Client) OnChatListUpdate(fn func([]message.ConversationSummary)) func() {
	return c.bus.onChatList(fn)
}

// OnSendFailure subscribes to the side channel reporting rejected or
// unacknowledged sends.
func (c *Client) OnSendFailure(fn func(SendFailure)) func() {
	return c.bus.onSendFailure(fn)
}

// OnCallSignal subscribes to call signaling events.
func (c *Client) OnCallSignal(fn func(message.CallSignal)) func() {
	return c.bus.onCall(fn)
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the connection is live.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// UserID returns the authenticated user id, empty before first connect.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Role returns the authenticated user role, empty before first connect.
func (c *Client) Role() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func handshakeURL(raw string, creds Credentials) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", creds.Token)
	q.Set("userId", creds.UserID)
	if creds.Role != "" {
		q.Set("userRole", creds.Role)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
