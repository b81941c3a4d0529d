package ui

import (
	"time"

	"sponsorlink/internal/message"
)

// Notification is used for system level alerts such as send failures or
// incoming calls.
type Notification struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from"`
}

// Sink is the unified interface every UI surface must satisfy.
type Sink interface {
	ShowMessage(message.Message)
	ShowSystem(string)
	UpdateConversations([]message.ConversationSummary)
	ShowNotification(Notification)
}

type multiSink struct {
	sinks []Sink
}

// NewMultiSink fans chat events out to each registered sink.
func NewMultiSink(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) ShowMessage(msg message.Message) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.ShowMessage(msg)
		}
	}
}

func (m *multiSink) ShowSystem(text string) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.ShowSystem(text)
		}
	}
}

func (m *multiSink) UpdateConversations(list []message.ConversationSummary) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.UpdateConversations(list)
		}
	}
}

func (m *multiSink) ShowNotification(n Notification) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.ShowNotification(n)
		}
	}
}
