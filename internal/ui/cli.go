package ui

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	"sponsorlink/internal/message"
)

const (
	ansiReset = "\x1b[0m"
	ansiTime  = "\x1b[36m"
	ansiName  = "\x1b[33m"
	ansiMedia = "\x1b[35m"
	ansiSys   = "\x1b[32m"
)

// CLIDisplay renders chat events to stdout.
type CLIDisplay struct {
	color bool
	mu    sync.Mutex
}

func NewCLIDisplay(color bool) *CLIDisplay {
	return &CLIDisplay{color: color}
}

func (c *CLIDisplay) ShowMessage(msg message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Println(c.formatLine(msg))
}

func (c *CLIDisplay) ShowSystem(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	if c.color {
		fmt.Printf("%s[%s]%s %sSYSTEM%s: %s\n", ansiTime, ts, ansiReset, ansiSys, ansiReset, text)
		return
	}
	fmt.Printf("[%s] SYSTEM: %s\n", ts, text)
}

func (c *CLIDisplay) UpdateConversations(list []message.ConversationSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(list) == 0 {
		return
	}
	rows := make([]string, 0, len(list))
	for _, conv := range list {
		row := conv.PeerID
		if conv.Unread > 0 {
			row = fmt.Sprintf("%s (%d unread)", row, conv.Unread)
		}
		rows = append(rows, row)
	}
	msg := fmt.Sprintf("chats: %s", strings.Join(rows, ", "))
	if c.color {
		fmt.Printf("%s[chats]%s %s\n", ansiSys, ansiReset, msg)
		return
	}
	fmt.Printf("[chats] %s\n", msg)
}

func (c *CLIDisplay) ShowNotification(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := n.Timestamp.Format("15:04:05")
	prefix := "NOTIFY"
	if n.Level != "" {
		prefix = strings.ToUpper(n.Level)
	}
	line := fmt.Sprintf("[%s] %s: %s", ts, prefix, n.Text)
	if c.color {
		fmt.Printf("%s%s%s\n", ansiSys, line, ansiReset)
		return
	}
	fmt.Println(line)
}

func (c *CLIDisplay) formatLine(msg message.Message) string {
	ts := msg.Timestamp.Format("15:04:05")
	label := mediaLabel(msg)
	if c.color {
		nameColor := ansiName
		if msg.IsMedia() {
			nameColor = ansiMedia
		}
		return fmt.Sprintf("%s[%s]%s %s%s%s%s: %s", ansiTime, ts, ansiReset, nameColor, msg.SenderID, label, ansiReset, msg.Content)
	}
	return fmt.Sprintf("[%s] %s%s: %s", ts, msg.SenderID, label, msg.Content)
}

func mediaLabel(msg message.Message) string {
	if !msg.IsMedia() {
		return ""
	}
	name := path.Base(msg.MediaURL)
	return fmt.Sprintf(" (%s: %s)", msg.Type, name)
}

// ShouldUseColor determines if ANSI coloring should be enabled for CLI output.
func ShouldUseColor(disable bool) bool {
	if disable {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if runtime.GOOS == "windows" {
		if os.Getenv("WT_SESSION") != "" || os.Getenv("ANSICON") != "" || strings.EqualFold(os.Getenv("ConEmuANSI"), "ON") {
			return true
		}
		return false
	}
	return true
}
