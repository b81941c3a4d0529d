package call

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"sponsorlink/internal/message"
)

// Phase tracks where a call sits in its lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRinging
	PhaseIncoming
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRinging:
		return "ringing"
	case PhaseIncoming:
		return "incoming"
	case PhaseActive:
		return "active"
	default:
		return "unknown"
	}
}

var (
	ErrBusy   = errors.New("call: another call is in progress")
	ErrNoCall = errors.New("call: no call in progress")
)

// Signaler is the slice of the realtime client the manager needs.
type Signaler interface {
	SignalCall(event string, sig message.CallSignal) bool
	OnCallSignal(fn func(message.CallSignal)) func()
	UserID() string
}

// Call is the current call's state as seen locally. The media token is
// opaque; joining the actual media channel is the embedder's concern.
type Call struct {
	Phase      Phase
	PeerID     string
	Channel    string
	MediaToken string
	Outgoing   bool
	Muted      bool
	VideoOff   bool
}

// Manager runs one call at a time over the realtime signaling events.
type Manager struct {
	mu       sync.Mutex
	client   Signaler
	current  Call
	onChange []func(Call)
	stop     func()
}

func NewManager(client Signaler) *Manager {
	m := &Manager{client: client}
	m.stop = client.OnCallSignal(m.handleSignal)
	return m
}

// Close detaches the manager from the signaling stream.
func (m *Manager) Close() {
	if m.stop != nil {
		m.stop()
	}
}

// OnChange registers a listener for call state transitions and returns an
// unsubscribe func.
func (m *Manager) OnChange(fn func(Call)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
	idx := len(m.onChange) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if idx < len(m.onChange) {
			m.onChange[idx] = nil
		}
	}
}

// Start rings a peer. The channel name is generated here so both sides
// agree on it from the first signal.
func (m *Manager) Start(calleeID string) (Call, error) {
	m.mu.Lock()
	if m.current.Phase != PhaseIdle {
		m.mu.Unlock()
		return Call{}, ErrBusy
	}
	sig := message.CallSignal{
		CallerID: m.client.UserID(),
		CalleeID: calleeID,
		Channel:  "call-" + uuid.NewString(),
	}
	m.current = Call{Phase: PhaseRinging, PeerID: calleeID, Channel: sig.Channel, Outgoing: true}
	snapshot := m.current
	m.mu.Unlock()

	if !m.client.SignalCall(message.EventStartCall, sig) {
		m.reset()
		return Call{}, ErrNoCall
	}
	m.notify(snapshot)
	return snapshot, nil
}

// Accept answers the pending incoming call.
func (m *Manager) Accept() (Call, error) {
	m.mu.Lock()
	if m.current.Phase != PhaseIncoming {
		m.mu.Unlock()
		return Call{}, ErrNoCall
	}
	sig := message.CallSignal{
		CallerID: m.current.PeerID,
		CalleeID: m.client.UserID(),
		Channel:  m.current.Channel,
	}
	m.current.Phase = PhaseActive
	snapshot := m.current
	m.mu.Unlock()

	m.client.SignalCall(message.EventAcceptCall, sig)
	m.notify(snapshot)
	return snapshot, nil
}

// End hangs up whatever call is in progress, ringing or active.
func (m *Manager) End() error {
	m.mu.Lock()
	if m.current.Phase == PhaseIdle {
		m.mu.Unlock()
		return ErrNoCall
	}
	sig := message.CallSignal{
		CallerID: m.client.UserID(),
		CalleeID: m.current.PeerID,
		Channel:  m.current.Channel,
	}
	m.mu.Unlock()

	m.client.SignalCall(message.EventEndCall, sig)
	m.reset()
	return nil
}

// ToggleMute flips the local mute flag and reports the new value.
func (m *Manager) ToggleMute() bool {
	m.mu.Lock()
	m.current.Muted = !m.current.Muted
	snapshot := m.current
	m.mu.Unlock()
	m.notify(snapshot)
	return snapshot.Muted
}

// ToggleVideo flips the local camera flag and reports whether video is off.
func (m *Manager) ToggleVideo() bool {
	m.mu.Lock()
	m.current.VideoOff = !m.current.VideoOff
	snapshot := m.current
	m.mu.Unlock()
	m.notify(snapshot)
	return snapshot.VideoOff
}

// Current returns a snapshot of the call state.
func (m *Manager) Current() Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) handleSignal(sig message.CallSignal) {
	m.mu.Lock()
	switch sig.Kind {
	case message.EventStartCall:
		if m.current.Phase != PhaseIdle {
			// Already on a call; the caller's ring times out on their side.
			m.mu.Unlock()
			return
		}
		m.current = Call{
			Phase:      PhaseIncoming,
			PeerID:     sig.CallerID,
			Channel:    sig.Channel,
			MediaToken: sig.MediaToken,
		}
	case message.EventAcceptCall:
		if m.current.Phase != PhaseRinging || sig.Channel != m.current.Channel {
			m.mu.Unlock()
			return
		}
		m.current.Phase = PhaseActive
		if sig.MediaToken != "" {
			m.current.MediaToken = sig.MediaToken
		}
	case message.EventEndCall:
		if m.current.Phase == PhaseIdle || sig.Channel != m.current.Channel {
			m.mu.Unlock()
			return
		}
		m.current = Call{}
	default:
		m.mu.Unlock()
		return
	}
	snapshot := m.current
	m.mu.Unlock()
	m.notify(snapshot)
}

func (m *Manager) reset() {
	m.mu.Lock()
	m.current = Call{}
	snapshot := m.current
	m.mu.Unlock()
	m.notify(snapshot)
}

func (m *Manager) notify(c Call) {
	m.mu.Lock()
	listeners := make([]func(Call), 0, len(m.onChange))
	for _, fn := range m.onChange {
		if fn != nil {
			listeners = append(listeners, fn)
		}
	}
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(c)
	}
}
