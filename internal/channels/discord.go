package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/heraldlabs/herald/internal/types"

	. "github.com/heraldlabs/herald/internal/logging"
)

// DiscordConfig configures the Discord adapter.
type DiscordConfig struct {
	Enabled         bool     `json:"enabled"`
	Token           string   `json:"token"`
	AllowedChannels []string `json:"allowedChannels"` // empty = allow all
	Verbose         bool     `json:"verbose"`
}

// Discord is the Discord surface.
type Discord struct {
	cfg     DiscordConfig
	session *discordgo.Session
	inbound InboundFunc
}

// NewDiscord creates the adapter.
func NewDiscord(cfg DiscordConfig, inbound InboundFunc) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: failed to create session: %w", err)
	}
	d := &Discord{cfg: cfg, session: session, inbound: inbound}
	session.AddHandler(d.handleMessage)
	return d, nil
}

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// Start opens the gateway connection.
func (d *Discord) Start(_ context.Context) error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord: failed to connect: %w", err)
	}
	L_info("discord: connected", "user", d.session.State.User.Username)
	return nil
}

// Stop closes the gateway connection.
func (d *Discord) Stop() error {
	if err := d.session.Close(); err != nil {
		return fmt.Errorf("discord: close failed: %w", err)
	}
	L_info("discord: disconnected")
	return nil
}

func (d *Discord) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}
	if strings.TrimSpace(m.Content) == "" {
		return
	}
	if !d.channelAllowed(m.ChannelID) {
		L_debug("discord: ignoring message from disallowed channel", "channel", m.ChannelID)
		return
	}

	d.inbound(&types.FollowupRun{
		SessionKey: "discord:" + m.ChannelID,
		Prompt:     m.Content,
		AgentID:    "main",
		Verbose:    d.cfg.Verbose,
	})
}

func (d *Discord) channelAllowed(channelID string) bool {
	if len(d.cfg.AllowedChannels) == 0 {
		return true
	}
	for _, id := range d.cfg.AllowedChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

// Deliver sends a payload to a channel, threading a MessageReference when
// the payload targets a prior message. Media URLs ride in the content;
// Discord embeds them client-side.
func (d *Discord) Deliver(_ context.Context, conversationID string, payload *types.ReplyPayload, meta types.Delivery) error {
	content := payload.Text
	if media := payload.AllMedia(); len(media) > 0 {
		if content != "" {
			content += "\n"
		}
		content += strings.Join(media, "\n")
	}

	send := &discordgo.MessageSend{Content: content}
	if payload.ReplyToID != "" {
		send.Reference = &discordgo.MessageReference{
			MessageID: payload.ReplyToID,
			ChannelID: conversationID,
		}
	}

	if _, err := d.session.ChannelMessageSendComplex(conversationID, send); err != nil {
		return fmt.Errorf("discord: send failed: %w", err)
	}
	L_debug("discord: delivered", "channel", conversationID, "kind", meta.Kind)
	return nil
}

// SendTyping emits a typing indicator for the channel.
func (d *Discord) SendTyping(_ context.Context, conversationID string) error {
	return d.session.ChannelTyping(conversationID)
}
