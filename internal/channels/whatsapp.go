package channels

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	watypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"

	"github.com/heraldlabs/herald/internal/types"

	. "github.com/heraldlabs/herald/internal/logging"
)

// WhatsAppConfig configures the WhatsApp adapter.
type WhatsAppConfig struct {
	Enabled     bool     `json:"enabled"`
	DBPath      string   `json:"dbPath"`      // device store, e.g. ~/.herald/whatsapp.db
	AllowedJIDs []string `json:"allowedJids"` // empty = allow all
	Verbose     bool     `json:"verbose"`
}

// WhatsApp is the WhatsApp surface built on whatsmeow with a sqlite
// device store. The device must already be paired.
type WhatsApp struct {
	cfg     WhatsAppConfig
	client  *whatsmeow.Client
	store   *sqlstore.Container
	inbound InboundFunc
}

// heraldLogger bridges whatsmeow's waLog.Logger to our L_* functions.
type heraldLogger struct {
	module string
}

func (l *heraldLogger) Debugf(msg string, args ...interface{}) {
	L_debug(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *heraldLogger) Infof(msg string, args ...interface{}) {
	L_info(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *heraldLogger) Warnf(msg string, args ...interface{}) {
	L_warn(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *heraldLogger) Errorf(msg string, args ...interface{}) {
	L_error(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *heraldLogger) Sub(module string) waLog.Logger {
	return &heraldLogger{module: l.module + "/" + module}
}

// NewWhatsApp opens the device store and prepares the client.
func NewWhatsApp(cfg WhatsAppConfig, inbound InboundFunc) (*WhatsApp, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("whatsapp: failed to open device store: %w", err)
	}

	container := sqlstore.NewWithDB(db, "sqlite3", &heraldLogger{module: "store"})
	if err := container.Upgrade(context.Background()); err != nil {
		return nil, fmt.Errorf("whatsapp: failed to upgrade device store: %w", err)
	}

	device, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("whatsapp: failed to get device: %w", err)
	}
	if device == nil {
		return nil, fmt.Errorf("whatsapp: no device paired")
	}

	client := whatsmeow.NewClient(device, &heraldLogger{module: "client"})
	return &WhatsApp{cfg: cfg, client: client, store: container, inbound: inbound}, nil
}

// Name returns "whatsapp".
func (w *WhatsApp) Name() string { return "whatsapp" }

// Start connects and begins handling inbound messages.
func (w *WhatsApp) Start(_ context.Context) error {
	w.client.AddEventHandler(w.handleEvent)
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("whatsapp: failed to connect: %w", err)
	}
	L_info("whatsapp: connected", "jid", w.client.Store.ID)
	return nil
}

// Stop disconnects the client.
func (w *WhatsApp) Stop() error {
	w.client.Disconnect()
	L_info("whatsapp: disconnected")
	return nil
}

func (w *WhatsApp) handleEvent(evt interface{}) {
	msg, ok := evt.(*events.Message)
	if !ok || msg.Info.IsFromMe {
		return
	}

	text := msg.Message.GetConversation()
	if text == "" {
		if ext := msg.Message.GetExtendedTextMessage(); ext != nil {
			text = ext.GetText()
		}
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	jid := msg.Info.Chat.String()
	if !w.jidAllowed(jid) {
		L_debug("whatsapp: ignoring message from disallowed chat", "jid", jid)
		return
	}

	w.inbound(&types.FollowupRun{
		SessionKey: "whatsapp:" + jid,
		Prompt:     text,
		AgentID:    "main",
		Verbose:    w.cfg.Verbose,
	})
}

func (w *WhatsApp) jidAllowed(jid string) bool {
	if len(w.cfg.AllowedJIDs) == 0 {
		return true
	}
	for _, allowed := range w.cfg.AllowedJIDs {
		if allowed == jid {
			return true
		}
	}
	return false
}

// Deliver sends a payload as a conversation message. Media references go
// out as trailing lines; WhatsApp unfurls URLs natively.
func (w *WhatsApp) Deliver(ctx context.Context, conversationID string, payload *types.ReplyPayload, meta types.Delivery) error {
	jid, err := watypes.ParseJID(conversationID)
	if err != nil {
		return fmt.Errorf("whatsapp: bad jid %q: %w", conversationID, err)
	}

	text := payload.Text
	if media := payload.AllMedia(); len(media) > 0 {
		if text != "" {
			text += "\n"
		}
		text += strings.Join(media, "\n")
	}

	_, err = w.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("whatsapp: send failed: %w", err)
	}
	_ = w.client.SendChatPresence(ctx, jid, watypes.ChatPresencePaused, watypes.ChatPresenceMediaText)
	L_debug("whatsapp: delivered", "jid", conversationID, "kind", meta.Kind)
	return nil
}

// SendTyping emits a composing presence.
func (w *WhatsApp) SendTyping(ctx context.Context, conversationID string) error {
	jid, err := watypes.ParseJID(conversationID)
	if err != nil {
		return fmt.Errorf("whatsapp: bad jid %q: %w", conversationID, err)
	}
	return w.client.SendChatPresence(ctx, jid, watypes.ChatPresenceComposing, watypes.ChatPresenceMediaText)
}
