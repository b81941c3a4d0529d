package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"sponsorlink/internal/backend"
	"sponsorlink/internal/call"
	"sponsorlink/internal/config"
	"sponsorlink/internal/message"
	"sponsorlink/internal/seal"
	"sponsorlink/internal/session"
	"sponsorlink/internal/signature"
	"sponsorlink/internal/signflow"
	"sponsorlink/internal/signing"
	"sponsorlink/internal/store"
	"sponsorlink/internal/ui"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	keeper, err := seal.New(cfg.SealSecret)
	if err != nil {
		log.Fatalf("init seal: %v", err)
	}
	creds, err := store.OpenCredStore(cfg.CredsDB, keeper)
	if err != nil {
		log.Fatalf("open credential store: %v", err)
	}
	defer creds.Close()

	artifacts, err := store.OpenArtifactStore(cfg.ArtifactsDB, cfg.ArtifactsDir)
	if err != nil {
		log.Fatalf("open artifact store: %v", err)
	}
	defer artifacts.Close()

	api := backend.NewClient(cfg.BackendURL, nil, func() string {
		c, err := creds.Load()
		if err != nil {
			return ""
		}
		return c.Token
	})
	if err := ensureCredentials(cfg, creds, api); err != nil {
		log.Fatalf("authenticate: %v", err)
	}

	client := session.NewClient(session.Options{
		URL:         cfg.SocketURL,
		Source:      creds,
		JoinTimeout: cfg.JoinTimeout,
	})
	defer client.Close()

	app := &app{
		cfg:       cfg,
		client:    client,
		api:       api,
		artifacts: artifacts,
		signer:    signing.NewSigner(nil),
		flow:      signflow.New(),
		calls:     call.NewManager(client),
	}
	defer app.calls.Close()

	var tui *ui.TUIDisplay
	if cfg.UseTUI {
		tui = ui.NewTUIDisplay(app.handleLine)
		app.sink = ui.NewMultiSink(tui)
	} else {
		app.sink = ui.NewMultiSink(ui.NewCLIDisplay(ui.ShouldUseColor(false)))
	}
	app.subscribe()

	if err := client.Connect(); err != nil {
		log.Printf("initial connect failed: %v (retrying in background)", err)
	}

	if tui != nil {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := tui.Run(ctx); err != nil {
			log.Fatalf("tui: %v", err)
		}
		client.Disconnect()
		return
	}

	go app.commandLoop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")
	client.Disconnect()
}

// ensureCredentials makes sure the store holds a usable token: an explicit
// -token flag wins, then the stored token, then a password login.
func ensureCredentials(cfg *config.Config, creds *store.CredStore, api *backend.Client) error {
	if cfg.Token != "" {
		return creds.Save(cfg.Token, "", "")
	}
	existing, err := creds.Load()
	if err == nil && existing.Valid() {
		return nil
	}
	if cfg.Email == "" || cfg.Password == "" {
		return fmt.Errorf("no stored credentials; pass -token or -email/-password")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	token, err := api.Login(ctx, cfg.Email, cfg.Password)
	if err != nil {
		return err
	}
	return creds.Save(token, "", "")
}

type app struct {
	cfg       *config.Config
	client    *session.Client
	api       *backend.Client
	artifacts *store.ArtifactStore
	signer    *signing.Signer
	flow      *signflow.Flow
	calls     *call.Manager
	sink      ui.Sink

	docs []message.Attachment
}

func (a *app) subscribe() {
	a.client.OnMessage(func(msg message.Message) {
		a.sink.ShowMessage(msg)
	})
	a.client.OnConnectionChange(func(online bool) {
		if online {
			a.sink.ShowSystem("connected as " + a.client.UserID())
			return
		}
		a.sink.ShowSystem("disconnected")
	})
	a.client.OnChatListUpdate(func(list []message.ConversationSummary) {
		a.sink.UpdateConversations(list)
	})
	a.client.OnSendFailure(func(f session.SendFailure) {
		a.sink.ShowNotification(ui.Notification{
			Text:      fmt.Sprintf("message to %s failed: %s", f.Message.ReceiverID, f.Reason),
			Level:     "error",
			Timestamp: time.Now(),
		})
	})
	a.calls.OnChange(func(c call.Call) {
		switch c.Phase {
		case call.PhaseIncoming:
			a.sink.ShowNotification(ui.Notification{
				Text:      fmt.Sprintf("incoming call from %s (/accept or /hangup)", c.PeerID),
				Level:     "call",
				Timestamp: time.Now(),
				From:      c.PeerID,
			})
		case call.PhaseActive:
			a.sink.ShowSystem("call active on channel " + c.Channel)
		case call.PhaseIdle:
			a.sink.ShowSystem("call ended")
		}
	})
}

func (a *app) commandLoop() {
	reader := bufio.NewReader(os.Stdin)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		a.handleLine(line)
	}
}

func (a *app) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if !strings.HasPrefix(line, "/") {
		a.sendText(line)
		return
	}
	a.handleCommand(line)
}

func (a *app) handleCommand(line string) {
	parts := strings.SplitN(line, " ", 2)
	cmd := parts[0]
	arg := ""
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	switch cmd {
	case "/join":
		if arg == "" {
			a.sink.ShowSystem("usage: /join <peer-id>")
			return
		}
		if a.client.JoinRoom(arg) {
			a.sink.ShowSystem("joined room with " + arg)
		} else {
			a.sink.ShowSystem("could not join room with " + arg)
		}
	case "/leave":
		peer := a.client.CurrentRoom()
		if peer == "" {
			a.sink.ShowSystem("no room focused")
			return
		}
		a.client.LeaveRoom(peer)
		a.sink.ShowSystem("leaving room with " + peer)
	case "/msg":
		a.sendText(arg)
	case "/docs":
		a.listDocs()
	case "/sign":
		a.signDoc(arg)
	case "/share":
		a.shareArtifact()
	case "/call":
		if arg == "" {
			a.sink.ShowSystem("usage: /call <peer-id>")
			return
		}
		if _, err := a.calls.Start(arg); err != nil {
			a.sink.ShowSystem("call failed: " + err.Error())
		}
	case "/accept":
		if _, err := a.calls.Accept(); err != nil {
			a.sink.ShowSystem("accept failed: " + err.Error())
		}
	case "/hangup":
		if err := a.calls.End(); err != nil {
			a.sink.ShowSystem("hangup failed: " + err.Error())
		}
	case "/mute":
		if a.calls.ToggleMute() {
			a.sink.ShowSystem("muted")
		} else {
			a.sink.ShowSystem("unmuted")
		}
	case "/reconnect":
		if err := a.client.Reconnect(); err != nil {
			a.sink.ShowSystem("reconnect failed: " + err.Error())
		}
	case "/state":
		a.sink.ShowSystem(fmt.Sprintf("state=%s room=%q attempts=%d",
			a.client.State(), a.client.CurrentRoom(), a.client.ReconnectAttempts()))
	case "/quit":
		a.client.Disconnect()
		os.Exit(0)
	default:
		a.sink.ShowSystem("unknown command " + cmd)
	}
}

func (a *app) sendText(text string) {
	if text == "" {
		return
	}
	peer := a.client.CurrentRoom()
	if peer == "" {
		a.sink.ShowSystem("join a room first: /join <peer-id>")
		return
	}
	if !a.client.SendMessage(peer, text, message.TypeText, "") {
		a.sink.ShowSystem("send did not dispatch")
	}
}

func (a *app) listDocs() {
	peer := a.client.CurrentRoom()
	if peer == "" {
		a.sink.ShowSystem("join a room first: /join <peer-id>")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	docs, err := a.api.SignableAttachments(ctx, peer)
	if err != nil {
		a.sink.ShowSystem("attachment query failed: " + err.Error())
		return
	}
	a.docs = docs
	if len(docs) == 0 {
		a.sink.ShowSystem("no signable documents in this conversation")
		return
	}
	for i, doc := range docs {
		a.sink.ShowSystem(fmt.Sprintf("[%d] %s (%s)", i, doc.FileName, doc.Type))
	}
}

// signDoc walks the whole signing flow for the chosen attachment: select,
// preview, sign with a scripted signature, review, then save locally.
func (a *app) signDoc(arg string) {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 || idx >= len(a.docs) {
		a.sink.ShowSystem("usage: /sign <index> (run /docs first)")
		return
	}
	att := a.docs[idx]
	a.flow.Reset()

	doc := signing.Document{
		ID:   att.ID,
		Name: att.FileName,
		URL:  a.absoluteURL(att.MediaURL),
		Type: att.Type,
	}
	if err := a.flow.SelectDocument(doc); err != nil {
		a.sink.ShowSystem("select failed: " + err.Error())
		return
	}
	a.sink.ShowSystem("previewing " + doc.Name)
	if err := a.flow.ConfirmPreview(); err != nil {
		a.sink.ShowSystem("preview failed: " + err.Error())
		return
	}

	raster, err := scriptedSignature(a.client.UserID())
	if err != nil {
		a.sink.ShowSystem("signature failed: " + err.Error())
		return
	}
	if err := a.flow.AttachSignature(raster); err != nil {
		a.sink.ShowSystem("signature rejected: " + err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	artifact, err := a.signer.Sign(ctx, a.flow.Document(), a.flow.Raster(), signing.Options{})
	if err != nil {
		a.sink.ShowSystem("signing failed: " + err.Error())
		return
	}
	if err := a.flow.Finalize(artifact); err != nil {
		a.sink.ShowSystem("finalize failed: " + err.Error())
		return
	}

	path, err := a.artifacts.SaveLocal(artifact.FileName, artifact.Data)
	if err != nil {
		a.sink.ShowSystem("save failed: " + err.Error())
		return
	}
	_ = a.flow.MarkDownloaded()
	a.sink.ShowSystem("signed document saved to " + path + " (/share to send it)")
}

// shareArtifact uploads the finished artifact and sends it into the focused
// conversation.
func (a *app) shareArtifact() {
	artifact := a.flow.Artifact()
	if artifact == nil {
		a.sink.ShowSystem("nothing to share; run /sign first")
		return
	}
	peer := a.client.CurrentRoom()
	if peer == "" {
		a.sink.ShowSystem("join a room first: /join <peer-id>")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := a.api.UploadFile(ctx, artifact.FileName, artifact.Mime, bytes.NewReader(artifact.Data))
	if err != nil {
		a.sink.ShowSystem("upload failed: " + err.Error())
		return
	}
	if !a.client.SendMessage(peer, "signed: "+artifact.FileName, res.Type, res.MediaURL) {
		a.sink.ShowSystem("share send did not dispatch")
		return
	}
	if err := a.flow.MarkShared(); err != nil {
		a.sink.ShowSystem("share bookkeeping failed: " + err.Error())
		return
	}
	a.sink.ShowSystem("shared " + artifact.FileName + " with " + peer)
}

// absoluteURL resolves backend-relative media paths against the configured
// backend base.
func (a *app) absoluteURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return strings.TrimRight(a.cfg.BackendURL, "/") + "/" + strings.TrimLeft(raw, "/")
}

// scriptedSignature draws a deterministic squiggle seeded by the user id.
// A terminal has no pen input; the point of the flow here is exercising the
// pipeline end to end.
func scriptedSignature(seed string) (image.Image, error) {
	pad := signature.NewPad(240, 80)
	offset := 0
	for _, r := range seed {
		offset += int(r)
	}
	pad.Begin(20, 40+(offset%11))
	for x := 25; x <= 220; x += 5 {
		y := 40 + ((x*7 + offset) % 23) - 11
		pad.Extend(x, y)
	}
	pad.End()
	return pad.Raster()
}
