package message

import (
	"errors"
	"time"
)

// Message content types. Meeting messages carry a call invitation link in
// their MediaURL.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeDocument = "document"
	TypeMeeting  = "meeting"
)

var (
	ErrMissingParty = errors.New("message: sender and receiver required")
	ErrBadType      = errors.New("message: unknown content type")
	ErrMediaURL     = errors.New("message: media url present iff type is not text")
)

// Message is one unit of chat content between two users. Messages are
// immutable once constructed; edits are not supported.
type Message struct {
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	MediaURL   string    `json:"mediaUrl,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// New validates and builds a message. A media URL must be present exactly
// when the type is not plain text.
func New(senderID, receiverID, content, typ, mediaURL string) (Message, error) {
	if senderID == "" || receiverID == "" {
		return Message{}, ErrMissingParty
	}
	if typ == "" {
		typ = TypeText
	}
	switch typ {
	case TypeText, TypeImage, TypeVideo, TypeDocument, TypeMeeting:
	default:
		return Message{}, ErrBadType
	}
	if (typ == TypeText) != (mediaURL == "") {
		return Message{}, ErrMediaURL
	}
	return Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Type:       typ,
		MediaURL:   mediaURL,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// IsMedia reports whether the message references an uploaded payload.
func (m Message) IsMedia() bool {
	return m.Type != TypeText
}

// ConversationSummary is one row of the chat sidebar, pushed by the server
// whenever any conversation changes.
type ConversationSummary struct {
	PeerID      string    `json:"peerId"`
	PeerName    string    `json:"peerName,omitempty"`
	LastMessage string    `json:"lastMessage"`
	LastType    string    `json:"lastType"`
	Unread      int       `json:"unread"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Attachment describes a media message surfaced by the attachment query,
// the source of signable documents.
type Attachment struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	MediaURL  string    `json:"mediaUrl"`
	FileName  string    `json:"fileName,omitempty"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	CreatedAt time.Time `json:"createdAt"`
}

// Signable reports whether the attachment is eligible for the signing
// workflow. Videos and meeting links are excluded.
func (a Attachment) Signable() bool {
	return a.Type == TypeImage || a.Type == TypeDocument
}
