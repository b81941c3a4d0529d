package session

import (
	"time"

	"sponsorlink/internal/message"
)

// JoinRoom asks the server to establish the peer room and waits for a
// single acknowledgement. It returns false on explicit failure or after the
// join timeout so callers never hang on a silent server. On success the
// peer is recorded as joined and becomes the focused room.
//
// Joining a new room while another is focused does not leave the old one;
// that is the caller's responsibility.
func (c *Client) JoinRoom(otherUserID string) bool {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil || otherUserID == "" {
		c.mu.Unlock()
		return false
	}
	c.seq++
	seq := c.seq
	ch := make(chan message.AckPayload, 1)
	c.pending[seq] = ch
	userID := c.userID
	conn := c.conn
	c.mu.Unlock()

	env, err := message.NewEnvelope(message.EventJoinRoom, seq, message.RoomRequest{
		UserID:      userID,
		OtherUserID: otherUserID,
	})
	if err != nil {
		c.dropWaiter(seq)
		return false
	}
	if err := c.write(conn, env); err != nil {
		c.dropWaiter(seq)
		return false
	}

	timer := time.NewTimer(c.opts.JoinTimeout)
	defer timer.Stop()
	select {
	case payload, ok := <-ch:
		if !ok || !payload.Normalize().OK {
			return false
		}
		c.mu.Lock()
		c.joined[otherUserID] = true
		c.current = otherUserID
		c.mu.Unlock()
		return true
	case <-timer.C:
		c.dropWaiter(seq)
		return false
	}
}

// LeaveRoom releases the peer room without blocking the caller. Membership
// is cleared once the server acknowledges.
func (c *Client) LeaveRoom(otherUserID string) {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil || otherUserID == "" {
		c.mu.Unlock()
		return
	}
	c.seq++
	seq := c.seq
	ch := make(chan message.AckPayload, 1)
	c.pending[seq] = ch
	userID := c.userID
	conn := c.conn
	c.mu.Unlock()

	env, err := message.NewEnvelope(message.EventLeaveRoom, seq, message.RoomRequest{
		UserID:      userID,
		OtherUserID: otherUserID,
	})
	if err != nil {
		c.dropWaiter(seq)
		return
	}
	if err := c.write(conn, env); err != nil {
		c.dropWaiter(seq)
		return
	}

	go func() {
		timer := time.NewTimer(c.opts.JoinTimeout)
		defer timer.Stop()
		select {
		case payload, ok := <-ch:
			if ok && payload.Normalize().OK {
				c.forgetRoom(otherUserID)
			}
		case <-timer.C:
			c.dropWaiter(seq)
		}
	}()
}

// SendMessage builds a message from the current user to receiverID and
// dispatches it. It returns true as soon as the request is on the wire;
// delivery confirmation is a side effect reported through OnSendFailure,
// not the return value, so callers render optimistically.
func (c *Client) SendMessage(receiverID, content, typ, mediaURL string) bool {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return false
	}
	c.seq++
	seq := c.seq
	userID := c.userID
	conn := c.conn
	c.mu.Unlock()

	msg, err := message.New(userID, receiverID, content, typ, mediaURL)
	if err != nil {
		return false
	}
	env, err := message.NewEnvelope(message.EventSend, seq, msg)
	if err != nil {
		return false
	}
	c.sends.Track(seq, msg)
	if err := c.write(conn, env); err != nil {
		c.sends.Fail(seq, "write failed")
		return false
	}
	return true
}

// SignalCall dispatches a call signaling event (start, accept or end) to
// the peer via the shared connection.
func (c *Client) SignalCall(event string, sig message.CallSignal) bool {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return false
	}
	conn := c.conn
	c.mu.Unlock()

	env, err := message.NewEnvelope(event, 0, sig)
	if err != nil {
		return false
	}
	return c.write(conn, env) == nil
}

// CurrentRoom returns the focused peer id, empty when none.
func (c *Client) CurrentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// JoinedRooms returns a snapshot of the membership set.
func (c *Client) JoinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.joined))
	for peer := range c.joined {
		out = append(out, peer)
	}
	return out
}

func (c *Client) forgetRoom(otherUserID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.joined, otherUserID)
	if c.current == otherUserID {
		c.current = ""
	}
}

func (c *Client) dropWaiter(seq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, seq)
}
