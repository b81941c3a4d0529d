package session

import (
	"sync"

	"sponsorlink/internal/message"
)

// bus fans inbound events out to independently registered listeners.
// Registration is append-only; each subscribe call returns a closure that
// removes exactly that listener. Listeners for one event type fire in
// registration order; no ordering holds across event types.
type bus struct {
	mu     sync.Mutex
	nextID int

	message  []msgListener
	conn     []connListener
	chatList []chatListener
	sendFail []failListener
	call     []callListener
}

type msgListener struct {
	id int
	fn func(message.Message)
}

type connListener struct {
	id int
	fn func(bool)
}

type chatListener struct {
	id int
	fn func([]message.ConversationSummary)
}

type failListener struct {
	id int
	fn func(SendFailure)
}

type callListener struct {
	id int
	fn func(message.CallSignal)
}

func newBus() *bus {
	return &bus{}
}

func (b *bus) onMessage(fn func(message.Message)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.message = append(b.message, msgListener{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, l := range b.message {
			if l.id == id {
				b.message = append(b.message[:i], b.message[i+1:]...)
				return
			}
		}
	}
}

func (b *bus) onConnection(fn func(bool)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.conn = append(b.conn, connListener{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, l := range b.conn {
			if l.id == id {
				b.conn = append(b.conn[:i], b.conn[i+1:]...)
				return
			}
		}
	}
}

func (b *bus) onChatList(fn func([]message.ConversationSummary)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.chatList = append(b.chatList, chatListener{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, l := range b.chatList {
			if l.id == id {
				b.chatList = append(b.chatList[:i], b.chatList[i+1:]...)
				return
			}
		}
	}
}

func (b *bus) onSendFailure(fn func(SendFailure)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.sendFail = append(b.sendFail, failListener{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, l := range b.sendFail {
			if l.id == id {
				b.sendFail = append(b.sendFail[:i], b.sendFail[i+1:]...)
				return
			}
		}
	}
}

func (b *bus) onCall(fn func(message.CallSignal)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.call = append(b.call, callListener{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, l := range b.call {
			if l.id == id {
				b.call = append(b.call[:i], b.call[i+1:]...)
				return
			}
		}
	}
}

func (b *bus) emitMessage(msg message.Message) {
	b.mu.Lock()
	listeners := make([]msgListener, len(b.message))
	copy(listeners, b.message)
	b.mu.Unlock()
	for _, l := range listeners {
		l.fn(msg)
	}
}

func (b *bus) emitConnection(online bool) {
	b.mu.Lock()
	listeners := make([]connListener, len(b.conn))
	copy(listeners, b.conn)
	b.mu.Unlock()
	for _, l := range listeners {
		l.fn(online)
	}
}

func (b *bus) emitChatList(list []message.ConversationSummary) {
	b.mu.Lock()
	listeners := make([]chatListener, len(b.chatList))
	copy(listeners, b.chatList)
	b.mu.Unlock()
	for _, l := range listeners {
		l.fn(list)
	}
}

func (b *bus) emitSendFailure(f SendFailure) {
	b.mu.Lock()
	listeners := make([]failListener, len(b.sendFail))
	copy(listeners, b.sendFail)
	b.mu.Unlock()
	for _, l := range listeners {
		l.fn(f)
	}
}

func (b *bus) emitCall(sig message.CallSignal) {
	b.mu.Lock()
	listeners := make([]callListener, len(b.call))
	copy(listeners, b.call)
	b.mu.Unlock()
	for _, l := range listeners {
		l.fn(sig)
	}
}
