package tokens

import "testing"

func TestIsSilentReply(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"NO_REPLY", true},
		{"  NO_REPLY\n", true},
		{"NO_REPLY thanks", false},
		{"no_reply", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsSilentReply(c.text); got != c.want {
			t.Errorf("IsSilentReply(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestStripHeartbeat(t *testing.T) {
	cases := []struct {
		text     string
		want     string
		wantSkip bool
	}{
		{"HEARTBEAT_OK", "", true},
		{"  HEARTBEAT_OK  ", "", true},
		{"HEARTBEAT_OK all quiet", "all quiet", false},
		{"done HEARTBEAT_OK", "done", false},
		{"a HEARTBEAT_OK b", "a b", false},
		{"no marker here", "no marker here", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, skip := StripHeartbeat(c.text)
		if got != c.want || skip != c.wantSkip {
			t.Errorf("StripHeartbeat(%q) = (%q, %v), want (%q, %v)",
				c.text, got, skip, c.want, c.wantSkip)
		}
	}
}

func TestExtractReplyTag(t *testing.T) {
	clean, id, ok := ExtractReplyTag("sure thing [reply_to:msg-42]")
	if !ok || id != "msg-42" || clean != "sure thing" {
		t.Errorf("got (%q, %q, %v)", clean, id, ok)
	}

	// Tag in the middle of the text
	clean, id, ok = ExtractReplyTag("before [reply_to:abc] after")
	if !ok || id != "abc" {
		t.Errorf("got (%q, %q, %v)", clean, id, ok)
	}
	if clean != "before  after" && clean != "before after" {
		t.Errorf("unexpected clean text %q", clean)
	}

	// Only the first tag is extracted
	clean, id, ok = ExtractReplyTag("[reply_to:one] [reply_to:two]")
	if !ok || id != "one" {
		t.Errorf("got (%q, %q, %v)", clean, id, ok)
	}

	// Malformed tags are plain text, not errors
	for _, text := range []string{"[reply_to:]", "[reply_to ", "reply_to:x", ""} {
		clean, id, ok = ExtractReplyTag(text)
		if ok || id != "" || clean != text {
			t.Errorf("ExtractReplyTag(%q) = (%q, %q, %v), want passthrough", text, clean, id, ok)
		}
	}

	// Tag-only text leaves nothing
	clean, _, ok = ExtractReplyTag("[reply_to:x9]")
	if !ok || clean != "" {
		t.Errorf("got (%q, %v)", clean, ok)
	}
}
