// Package tokens holds the sentinel strings the agent may emit and the pure
// routines that strip or extract them. Everything here is deterministic and
// side-effect free; downstream delivery text depends on these staying
// byte-stable.
package tokens

import (
	"regexp"
	"strings"
)

const (
	// HeartbeatToken is the liveness marker the agent emits when a
	// heartbeat prompt needs no real reply.
	HeartbeatToken = "HEARTBEAT_OK"

	// SilentReplyToken means "intentionally no reply".
	SilentReplyToken = "NO_REPLY"
)

var (
	heartbeatRe = regexp.MustCompile(`\s*` + HeartbeatToken + `\s*`)

	// replyTagRe matches the structured [reply_to:<id>] annotation the agent
	// may embed to address a specific prior message.
	replyTagRe = regexp.MustCompile(`\[reply_to:\s*([^\[\]\s]+)\s*\]`)
)

// IsSilentReply reports whether text is exactly the silent-reply sentinel
// after trimming.
func IsSilentReply(text string) bool {
	return strings.TrimSpace(text) == SilentReplyToken
}

// StripHeartbeat removes every heartbeat marker from text. It returns the
// cleaned text and a skip recommendation: skip is true when the text carried
// nothing but the marker, so a medialess payload should be dropped.
func StripHeartbeat(text string) (string, bool) {
	if !strings.Contains(text, HeartbeatToken) {
		return text, false
	}
	clean := heartbeatRe.ReplaceAllString(text, " ")
	clean = strings.TrimSpace(clean)
	return clean, clean == ""
}

// ExtractReplyTag finds the first [reply_to:<id>] annotation in text,
// removes it, and returns the cleaned text plus the extracted id. A text
// without a well-formed tag is returned unchanged with ok=false; malformed
// tags are never an error, just plain text.
func ExtractReplyTag(text string) (clean string, id string, ok bool) {
	m := replyTagRe.FindStringSubmatchIndex(text)
	if m == nil {
		return text, "", false
	}
	id = text[m[2]:m[3]]
	clean = text[:m[0]] + text[m[1]:]
	clean = strings.TrimSpace(clean)
	return clean, id, true
}
