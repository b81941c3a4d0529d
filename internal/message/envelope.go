package message

import (
	"encoding/json"
	"strings"
)

// Event names carried on the realtime connection.
const (
	EventRegister   = "register"
	EventJoinRoom   = "join_room"
	EventLeaveRoom  = "leave_room"
	EventSend       = "send_message"
	EventAck        = "ack"
	EventReceive    = "receive_message"
	EventChatList   = "chat_list_update"
	EventStartCall  = "start_call"
	EventAcceptCall = "accept_call"
	EventEndCall    = "end_call"
)

// Envelope is the frame every realtime event travels in. Seq correlates a
// request with its ack; events that expect no ack leave it zero.
type Envelope struct {
	Event string          `json:"event"`
	Seq   int64           `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into a frame for the given event.
func NewEnvelope(event string, seq int64, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Seq: seq, Data: data}, nil
}

// RoomRequest is the payload of join_room and leave_room.
type RoomRequest struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

// RegisterRequest announces the client's own inbox after connecting.
type RegisterRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"userRole,omitempty"`
}

// CallSignal rides start_call, accept_call and end_call. The media token is
// issued out of band by the backend and is opaque to this client.
type CallSignal struct {
	Kind       string `json:"kind,omitempty"`
	CallerID   string `json:"callerId"`
	CalleeID   string `json:"calleeId"`
	Channel    string `json:"channel"`
	MediaToken string `json:"mediaToken,omitempty"`
}

// AckPayload is the wire shape of an acknowledgement. Backends disagree on
// how success is expressed: a boolean flag, a status string, or simply an
// assigned id. Normalize collapses the three.
type AckPayload struct {
	Seq     int64  `json:"seq"`
	Success *bool  `json:"success,omitempty"`
	Status  string `json:"status,omitempty"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Ack is the single normalized acknowledgement shape used past the
// transport boundary.
type Ack struct {
	OK     bool
	ID     string
	Reason string
}

// Normalize maps any accepted success evidence to Ack{OK: true}. An explicit
// error always wins.
func (a AckPayload) Normalize() Ack {
	ack := Ack{ID: a.ID, Reason: a.Error}
	if a.Error != "" {
		return ack
	}
	switch {
	case a.Success != nil:
		ack.OK = *a.Success
	case a.Status != "":
		switch strings.ToLower(a.Status) {
		case "ok", "success", "delivered", "joined":
			ack.OK = true
		default:
			ack.Reason = a.Status
		}
	case a.ID != "":
		ack.OK = true
	}
	return ack
}
