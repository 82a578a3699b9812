// Package channels holds the chat-surface adapters. Each adapter turns
// inbound platform messages into FollowupRuns and delivers sanitized
// reply payloads back out.
package channels

import (
	"context"

	"github.com/heraldlabs/herald/internal/types"
)

// InboundFunc receives one inbound message already shaped as a run. The
// adapter sets SessionKey to "<surface>:<conversation-id>".
type InboundFunc func(run *types.FollowupRun)

// Adapter is a chat surface: Telegram, WhatsApp or Discord.
type Adapter interface {
	// Name is the surface name used as the session-key prefix.
	Name() string

	// Start connects and begins handling inbound traffic.
	Start(ctx context.Context) error

	// Stop disconnects. Safe to call when not started.
	Stop() error

	// Deliver sends one payload to a conversation. conversationID is the
	// platform-native identifier (chat ID, JID, channel ID).
	Deliver(ctx context.Context, conversationID string, payload *types.ReplyPayload, meta types.Delivery) error

	// SendTyping emits one typing signal for the conversation.
	SendTyping(ctx context.Context, conversationID string) error
}

// ConversationID extracts the platform identifier from a session key of
// the form "<surface>:<conversation-id>".
func ConversationID(sessionKey string) string {
	for i := 0; i < len(sessionKey); i++ {
		if sessionKey[i] == ':' {
			return sessionKey[i+1:]
		}
	}
	return sessionKey
}
