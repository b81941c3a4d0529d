package ui

import (
	"strings"
	"testing"
	"time"

	"sponsorlink/internal/message"
)

type recordingSink struct {
	messages []message.Message
	systems  []string
	lists    [][]message.ConversationSummary
	notices  []Notification
}

func (r *recordingSink) ShowMessage(m message.Message) { r.messages = append(r.messages, m) }
func (r *recordingSink) ShowSystem(s string)           { r.systems = append(r.systems, s) }
func (r *recordingSink) UpdateConversations(l []message.ConversationSummary) {
	r.lists = append(r.lists, l)
}
func (r *recordingSink) ShowNotification(n Notification) { r.notices = append(r.notices, n) }

func TestMultiSinkFansOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	sink := NewMultiSink(a, nil, b)

	sink.ShowMessage(message.Message{SenderID: "athlete-1", Content: "hi"})
	sink.ShowSystem("connected")
	sink.UpdateConversations([]message.ConversationSummary{{PeerID: "brand-7"}})
	sink.ShowNotification(Notification{Text: "send failed", Level: "error"})

	for _, r := range []*recordingSink{a, b} {
		if len(r.messages) != 1 || len(r.systems) != 1 || len(r.lists) != 1 || len(r.notices) != 1 {
			t.Fatalf("sink missed events: %+v", r)
		}
	}
}

func TestCLIFormatLine(t *testing.T) {
	c := NewCLIDisplay(false)
	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	line := c.formatLine(message.Message{
		SenderID:  "athlete-1",
		Content:   "morning",
		Type:      message.TypeText,
		Timestamp: ts,
	})
	if line != "[09:30:00] athlete-1: morning" {
		t.Fatalf("line = %q", line)
	}

	line = c.formatLine(message.Message{
		SenderID:  "brand-7",
		Content:   "contract attached",
		Type:      message.TypeDocument,
		MediaURL:  "https://cdn.test/files/contract.pdf",
		Timestamp: ts,
	})
	if !strings.Contains(line, "(document: contract.pdf)") {
		t.Fatalf("media label missing: %q", line)
	}
}

func TestShouldUseColorRespectsNoColor(t *testing.T) {
	if ShouldUseColor(true) {
		t.Fatal("explicit disable must win")
	}
	t.Setenv("NO_COLOR", "1")
	if ShouldUseColor(false) {
		t.Fatal("NO_COLOR must disable coloring")
	}
}
