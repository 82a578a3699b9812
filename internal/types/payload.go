// Package types contains shared types used across multiple packages.
package types

import "strings"

// ReplyPayload is a unit of outbound content destined for a chat surface.
// Created by the agent execution step, sanitized by the followup runner,
// consumed exactly once by the reply dispatcher.
type ReplyPayload struct {
	Text      string   // Message text (may be empty if only media)
	MediaURL  string   // Single media reference
	MediaURLs []string // Ordered media references (albums, galleries)
	ReplyToID string   // Channel-specific message ID this reply addresses
}

// HasMedia returns true if the payload carries any media reference.
func (p *ReplyPayload) HasMedia() bool {
	return p.MediaURL != "" || len(p.MediaURLs) > 0
}

// AllMedia returns every media reference in delivery order.
func (p *ReplyPayload) AllMedia() []string {
	if p.MediaURL == "" {
		return p.MediaURLs
	}
	return append([]string{p.MediaURL}, p.MediaURLs...)
}

// IsEmpty returns true if the payload has no deliverable content:
// blank-after-trim text and no media. Empty payloads are never delivered.
func (p *ReplyPayload) IsEmpty() bool {
	return strings.TrimSpace(p.Text) == "" && !p.HasMedia()
}

// ReplyKind classifies a payload by its origin within an agent turn.
type ReplyKind string

const (
	ReplyKindTool  ReplyKind = "tool"  // tool-result replies
	ReplyKindBlock ReplyKind = "block" // mid-run block replies
	ReplyKindFinal ReplyKind = "final" // the turn's final reply
)

// Delivery is the classification metadata handed to the delivery callback
// alongside the sanitized payload.
type Delivery struct {
	Kind ReplyKind
}
