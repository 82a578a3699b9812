package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heraldlabs/herald/internal/types"
)

// recorder collects deliveries in order.
type recorder struct {
	mu    sync.Mutex
	kinds []types.ReplyKind
	texts []string
	media [][]string
}

func (r *recorder) deliver(delay map[types.ReplyKind]time.Duration) DeliverFunc {
	return func(_ context.Context, p *types.ReplyPayload, meta types.Delivery) error {
		if d := delay[meta.Kind]; d > 0 {
			time.Sleep(d)
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		r.kinds = append(r.kinds, meta.Kind)
		r.texts = append(r.texts, p.Text)
		r.media = append(r.media, append([]string{p.MediaURL}, p.MediaURLs...))
		return nil
	}
}

func (r *recorder) snapshot() ([]types.ReplyKind, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ReplyKind(nil), r.kinds...), append([]string(nil), r.texts...)
}

func TestEmptyPayloadsAreSuppressed(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(context.Background(), Options{}, rec.deliver(nil))
	defer d.Close()

	empty := func() *types.ReplyPayload { return &types.ReplyPayload{Text: "   \n"} }
	if d.SendToolResult(empty()) || d.SendBlockReply(empty()) || d.SendFinalReply(empty()) {
		t.Fatal("empty payloads must be rejected")
	}
	if d.SendFinalReply(nil) {
		t.Fatal("nil payload must be rejected")
	}

	if err := d.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle: %v", err)
	}
	kinds, _ := rec.snapshot()
	if len(kinds) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(kinds))
	}
}

func TestSilentReplySuppression(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(context.Background(), Options{}, rec.deliver(nil))
	defer d.Close()

	if d.SendFinalReply(&types.ReplyPayload{Text: "  NO_REPLY "}) {
		t.Fatal("silent medialess payload must be suppressed")
	}
	// Silent token with media still delivers.
	if !d.SendFinalReply(&types.ReplyPayload{Text: "NO_REPLY", MediaURL: "https://x/pic.png"}) {
		t.Fatal("silent payload with media must be accepted")
	}
	if err := d.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle: %v", err)
	}
	kinds, _ := rec.snapshot()
	if len(kinds) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(kinds))
	}
}

func TestHeartbeatStrippingKeepsMedia(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(context.Background(), Options{}, rec.deliver(nil))
	defer d.Close()

	if d.SendBlockReply(&types.ReplyPayload{Text: "HEARTBEAT_OK"}) {
		t.Fatal("heartbeat-only medialess payload must be suppressed")
	}
	if !d.SendBlockReply(&types.ReplyPayload{Text: "HEARTBEAT_OK", MediaURL: "https://x/chart.png"}) {
		t.Fatal("heartbeat-only payload with media must be accepted")
	}
	if !d.SendBlockReply(&types.ReplyPayload{Text: "HEARTBEAT_OK all good"}) {
		t.Fatal("heartbeat with trailing text must be accepted")
	}
	if err := d.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle: %v", err)
	}

	_, texts := rec.snapshot()
	if len(texts) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(texts))
	}
	if texts[0] != "" {
		t.Errorf("media payload text = %q, want stripped empty", texts[0])
	}
	if texts[1] != "all good" {
		t.Errorf("text = %q, want %q", texts[1], "all good")
	}
}

func TestResponsePrefix(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(context.Background(), Options{ResponsePrefix: "PFX"}, rec.deliver(nil))
	defer d.Close()

	d.SendFinalReply(&types.ReplyPayload{Text: "hello"})
	d.SendFinalReply(&types.ReplyPayload{Text: "PFX already"})
	if err := d.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle: %v", err)
	}

	_, texts := rec.snapshot()
	if texts[0] != "PFX hello" {
		t.Errorf("text = %q, want %q", texts[0], "PFX hello")
	}
	if texts[1] != "PFX already" {
		t.Errorf("text = %q, want %q (no double prefix)", texts[1], "PFX already")
	}
}

func TestStrictFIFOAcrossKinds(t *testing.T) {
	rec := &recorder{}
	// The tool delivery is slow; ordering must hold anyway.
	d := NewDispatcher(context.Background(), Options{},
		rec.deliver(map[types.ReplyKind]time.Duration{types.ReplyKindTool: 50 * time.Millisecond}))
	defer d.Close()

	d.SendToolResult(&types.ReplyPayload{Text: "tool"})
	d.SendBlockReply(&types.ReplyPayload{Text: "block"})
	d.SendFinalReply(&types.ReplyPayload{Text: "final"})
	if err := d.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle: %v", err)
	}

	kinds, _ := rec.snapshot()
	want := []types.ReplyKind{types.ReplyKindTool, types.ReplyKindBlock, types.ReplyKindFinal}
	if len(kinds) != len(want) {
		t.Fatalf("got %d deliveries, want %d", len(kinds), len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("delivery order %v, want %v", kinds, want)
		}
	}
}

func TestOnIdleFiresOncePerDrain(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(context.Background(), Options{}, rec.deliver(nil))
	defer d.Close()

	var mu sync.Mutex
	idles := 0
	d.SetOnIdle(func() {
		mu.Lock()
		idles++
		mu.Unlock()
	})

	d.SendBlockReply(&types.ReplyPayload{Text: "one"})
	d.SendBlockReply(&types.ReplyPayload{Text: "two"})
	if err := d.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle: %v", err)
	}

	mu.Lock()
	got := idles
	mu.Unlock()
	if got != 1 {
		t.Fatalf("onIdle fired %d times for one drain, want 1", got)
	}

	// A second batch is a second drain.
	d.SendFinalReply(&types.ReplyPayload{Text: "three"})
	if err := d.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle: %v", err)
	}
	mu.Lock()
	got = idles
	mu.Unlock()
	if got != 2 {
		t.Fatalf("onIdle fired %d times after two drains, want 2", got)
	}
}

func TestDeliveryErrorSurfacesFromWaitForIdle(t *testing.T) {
	boom := errors.New("surface rejected message")
	release := make(chan struct{})
	var calls int32
	d := NewDispatcher(context.Background(), Options{},
		func(context.Context, *types.ReplyPayload, types.Delivery) error {
			atomic.AddInt32(&calls, 1)
			<-release
			return boom
		})
	defer d.Close()

	idle := make(chan struct{}, 1)
	d.SetIdleObserver(func() {
		select {
		case idle <- struct{}{}:
		default:
		}
	})

	// Both payloads are queued before the first delivery settles, so the
	// failure abandons a non-empty remainder.
	d.SendBlockReply(&types.ReplyPayload{Text: "first"})
	d.SendBlockReply(&types.ReplyPayload{Text: "second"})
	close(release)

	err := d.WaitForIdle(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("WaitForIdle error = %v, want %v", err, boom)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("delivery attempted %d times, want 1 (rest of turn abandoned)", n)
	}

	// The idle observer must still fire so the typing indicator releases.
	select {
	case <-idle:
	case <-time.After(2 * time.Second):
		t.Fatal("idle observer never fired after delivery failure")
	}
}

func TestSettledDeliveryErrorSurvivesLaterEnqueue(t *testing.T) {
	boom := errors.New("surface rejected message")
	rec := &recorder{}
	deliver := rec.deliver(nil)
	d := NewDispatcher(context.Background(), Options{},
		func(ctx context.Context, p *types.ReplyPayload, meta types.Delivery) error {
			if p.Text == "first" {
				return boom
			}
			return deliver(ctx, p, meta)
		})
	defer d.Close()

	idle := make(chan struct{}, 2)
	d.SetOnIdle(func() { idle <- struct{}{} })

	// The failure settles (queue drains) before the turn's next payload is
	// enqueued; the error must still reach WaitForIdle.
	d.SendBlockReply(&types.ReplyPayload{Text: "first"})
	select {
	case <-idle:
	case <-time.After(2 * time.Second):
		t.Fatal("queue never drained after failure")
	}
	d.SendBlockReply(&types.ReplyPayload{Text: "second"})

	if err := d.WaitForIdle(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("WaitForIdle error = %v, want %v", err, boom)
	}

	// Reading the error clears it; a clean follow-up cycle reports nil.
	d.SendFinalReply(&types.ReplyPayload{Text: "third"})
	if err := d.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle after clean cycle = %v, want nil", err)
	}
}
