package devstub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sponsorlink/internal/message"
)

// wsConn wraps one client socket. Writes are serialized; gorilla allows a
// single concurrent writer.
type wsConn struct {
	userID  string
	role    string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) send(env message.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

func (s *Server) socketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := s.verifyToken(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.metrics.SocketConnects.Add(1)
		client := &wsConn{userID: userID, role: role, conn: conn}
		s.attach(client)
		defer s.detach(client)

		for {
			var env message.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			s.handleEnvelope(client, env)
		}
	}
}

func (s *Server) attach(c *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.userID] = c
}

func (s *Server) detach(c *wsConn) {
	s.mu.Lock()
	if s.conns[c.userID] == c {
		delete(s.conns, c.userID)
	}
	s.mu.Unlock()
	_ = c.conn.Close()
}

func (s *Server) peer(userID string) *wsConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[userID]
}

func (s *Server) handleEnvelope(c *wsConn, env message.Envelope) {
	switch env.Event {
	case message.EventRegister:
		// Identity already comes from the token; register is a no-op ping.
	case message.EventJoinRoom:
		var req message.RoomRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.OtherUserID == "" {
			s.ack(c, env.Seq, message.AckPayload{Seq: env.Seq, Error: "missing peer"})
			return
		}
		s.ack(c, env.Seq, message.AckPayload{Seq: env.Seq, Status: "joined"})
	case message.EventLeaveRoom:
		s.ack(c, env.Seq, message.AckPayload{Seq: env.Seq, Status: "ok"})
	case message.EventSend:
		s.handleSend(c, env)
	case message.EventStartCall, message.EventAcceptCall, message.EventEndCall:
		s.relayCall(c, env)
	default:
		log.Printf("devstub: unhandled event %q from %s", env.Event, c.userID)
	}
}

func (s *Server) handleSend(c *wsConn, env message.Envelope) {
	var msg message.Message
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		s.ack(c, env.Seq, message.AckPayload{Seq: env.Seq, Error: "bad message payload"})
		return
	}
	msg.SenderID = c.userID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.ReceiverID == "" {
		s.ack(c, env.Seq, message.AckPayload{Seq: env.Seq, Error: "receiver required"})
		return
	}
	s.metrics.MessagesRelayed.Add(1)

	s.mu.Lock()
	s.history = append(s.history, msg)
	s.mu.Unlock()

	// Acks carry the assigned id; clients accept that as success evidence.
	s.ack(c, env.Seq, message.AckPayload{Seq: env.Seq, ID: uuid.NewString()})

	if receiver := s.peer(msg.ReceiverID); receiver != nil {
		if fwd, err := message.NewEnvelope(message.EventReceive, 0, msg); err == nil {
			_ = receiver.send(fwd)
		}
	}
	s.pushChatList(msg.SenderID)
	s.pushChatList(msg.ReceiverID)
}

func (s *Server) relayCall(c *wsConn, env message.Envelope) {
	var sig message.CallSignal
	if err := json.Unmarshal(env.Data, &sig); err != nil {
		return
	}
	target := sig.CalleeID
	if target == c.userID || target == "" {
		target = sig.CallerID
	}
	if receiver := s.peer(target); receiver != nil {
		if fwd, err := message.NewEnvelope(env.Event, 0, sig); err == nil {
			_ = receiver.send(fwd)
		}
	}
}

func (s *Server) ack(c *wsConn, seq int64, payload message.AckPayload) {
	env, err := message.NewEnvelope(message.EventAck, seq, payload)
	if err != nil {
		return
	}
	_ = c.send(env)
}

// pushChatList rebuilds the user's full sidebar from the message history
// and pushes it if they are online. The stub keeps no read state, so
// unread counts every inbound message in the conversation.
func (s *Server) pushChatList(to string) {
	receiver := s.peer(to)
	if receiver == nil {
		return
	}

	s.mu.Lock()
	byPeer := make(map[string]*message.ConversationSummary)
	var order []string
	for _, m := range s.history {
		var peer string
		switch {
		case m.SenderID == to:
			peer = m.ReceiverID
		case m.ReceiverID == to:
			peer = m.SenderID
		default:
			continue
		}
		sum, ok := byPeer[peer]
		if !ok {
			sum = &message.ConversationSummary{PeerID: peer}
			byPeer[peer] = sum
			order = append(order, peer)
		}
		sum.LastMessage = m.Content
		sum.LastType = m.Type
		sum.UpdatedAt = m.Timestamp
		if m.ReceiverID == to {
			sum.Unread++
		}
	}
	s.mu.Unlock()

	list := make([]message.ConversationSummary, 0, len(order))
	for _, peer := range order {
		list = append(list, *byPeer[peer])
	}
	if env, err := message.NewEnvelope(message.EventChatList, 0, list); err == nil {
		_ = receiver.send(env)
	}
}
