package channels

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/heraldlabs/herald/internal/types"

	. "github.com/heraldlabs/herald/internal/logging"
)

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token"`
	AllowedChats []int64 `json:"allowedChats"` // empty = allow all
	Verbose      bool    `json:"verbose"`      // surface compaction notices
}

// Telegram is the Telegram surface built on telebot long polling.
type Telegram struct {
	cfg     TelegramConfig
	bot     *tele.Bot
	inbound InboundFunc
}

// NewTelegram creates the adapter. inbound receives one run per user
// message.
func NewTelegram(cfg TelegramConfig, inbound InboundFunc) (*Telegram, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("telegram: failed to create bot: %w", err)
	}
	return &Telegram{cfg: cfg, bot: bot, inbound: inbound}, nil
}

// Name returns "telegram".
func (t *Telegram) Name() string { return "telegram" }

// Start registers handlers and begins long polling.
func (t *Telegram) Start(ctx context.Context) error {
	t.bot.Handle(tele.OnText, t.handleText)
	go t.bot.Start()
	L_info("telegram: started", "bot", t.bot.Me.Username)

	go func() {
		<-ctx.Done()
		t.bot.Stop()
	}()
	return nil
}

// Stop halts polling.
func (t *Telegram) Stop() error {
	t.bot.Stop()
	L_info("telegram: stopped")
	return nil
}

func (t *Telegram) handleText(c tele.Context) error {
	chatID := c.Chat().ID
	if !t.chatAllowed(chatID) {
		L_debug("telegram: ignoring message from disallowed chat", "chat", chatID)
		return nil
	}

	t.inbound(&types.FollowupRun{
		SessionKey: fmt.Sprintf("telegram:%d", chatID),
		Prompt:     c.Text(),
		AgentID:    "main",
		Verbose:    t.cfg.Verbose,
	})
	return nil
}

func (t *Telegram) chatAllowed(chatID int64) bool {
	if len(t.cfg.AllowedChats) == 0 {
		return true
	}
	for _, id := range t.cfg.AllowedChats {
		if id == chatID {
			return true
		}
	}
	return false
}

// Deliver sends text and media to a chat. Media URLs go out as photos;
// the first carries the text as caption when possible.
func (t *Telegram) Deliver(_ context.Context, conversationID string, payload *types.ReplyPayload, meta types.Delivery) error {
	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", conversationID, err)
	}
	chat := &tele.Chat{ID: chatID}

	opts := &tele.SendOptions{}
	if payload.ReplyToID != "" {
		if msgID, err := strconv.Atoi(payload.ReplyToID); err == nil {
			opts.ReplyTo = &tele.Message{ID: msgID, Chat: chat}
		}
	}

	media := payload.AllMedia()
	if len(media) == 0 {
		_, err := t.bot.Send(chat, payload.Text, opts)
		if err != nil {
			return fmt.Errorf("telegram: send failed: %w", err)
		}
		L_debug("telegram: delivered", "chat", chatID, "kind", meta.Kind)
		return nil
	}

	for i, url := range media {
		photo := &tele.Photo{File: tele.FromURL(url)}
		if i == 0 {
			photo.Caption = payload.Text
		}
		if _, err := t.bot.Send(chat, photo, opts); err != nil {
			return fmt.Errorf("telegram: photo send failed: %w", err)
		}
	}
	L_debug("telegram: delivered media", "chat", chatID, "count", len(media), "kind", meta.Kind)
	return nil
}

// SendTyping emits a typing chat action.
func (t *Telegram) SendTyping(_ context.Context, conversationID string) error {
	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", conversationID, err)
	}
	return t.bot.Notify(&tele.Chat{ID: chatID}, tele.Typing)
}
