package ui

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"sponsorlink/internal/message"
)

// TUIDisplay renders chat data using tview.
type TUIDisplay struct {
	app      *tview.Application
	messages *tview.TextView
	input    *tview.InputField
	chats    *tview.List
	send     func(string)
	once     sync.Once
}

func NewTUIDisplay(send func(string)) *TUIDisplay {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(false).
		SetScrollable(true)
	messages.SetBorder(true).SetTitle("Messages")

	chats := tview.NewList()
	chats.SetBorder(true).SetTitle("Conversations")

	input := tview.NewInputField().
		SetLabel("> ").
		SetFieldTextColor(tcell.ColorWhite)

	td := &TUIDisplay{
		app:      tview.NewApplication(),
		messages: messages,
		input:    input,
		chats:    chats,
		send:     send,
	}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			text := strings.TrimSpace(input.GetText())
			if text != "" {
				go td.send(text)
			}
			input.SetText("")
		}
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 5, false).
		AddItem(chats, 10, 1, false).
		AddItem(input, 3, 1, true)

	td.app.SetRoot(layout, true).EnableMouse(true)
	return td
}

func (t *TUIDisplay) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.once.Do(func() {
			t.app.Stop()
		})
	}()
	return t.app.Run()
}

func (t *TUIDisplay) ShowMessage(msg message.Message) {
	ts := msg.Timestamp.Format("15:04:05")
	content := fmt.Sprintf("[yellow][%s][-] [lightgreen]%s[-]: %s", ts, msg.SenderID, msg.Content)
	if msg.IsMedia() {
		content += fmt.Sprintf(" [orange](%s: %s)[-]", msg.Type, path.Base(msg.MediaURL))
	}
	content += "\n"
	t.app.QueueUpdateDraw(func() {
		fmt.Fprint(t.messages, content)
	})
}

func (t *TUIDisplay) ShowSystem(text string) {
	content := fmt.Sprintf("[green]>>> %s[-]\n", text)
	t.app.QueueUpdateDraw(func() {
		fmt.Fprint(t.messages, content)
	})
}

func (t *TUIDisplay) UpdateConversations(list []message.ConversationSummary) {
	t.app.QueueUpdateDraw(func() {
		t.chats.Clear()
		for _, conv := range list {
			label := conv.PeerID
			if conv.PeerName != "" {
				label = conv.PeerName
			}
			detail := conv.LastMessage
			if conv.Unread > 0 {
				detail = fmt.Sprintf("(%d) %s", conv.Unread, detail)
			}
			t.chats.AddItem(label, detail, 0, nil)
		}
	})
}

func (t *TUIDisplay) ShowNotification(n Notification) {
	content := fmt.Sprintf("[orange]** %s [-] %s\n", strings.ToUpper(n.Level), n.Text)
	t.app.QueueUpdateDraw(func() {
		fmt.Fprint(t.messages, content)
	})
}
