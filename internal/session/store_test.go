package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/heraldlabs/herald/internal/types"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqlite, err := NewSQLiteStore(StoreConfig{Path: filepath.Join(dir, "herald.db"), WALMode: true})
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	jsonStore, err := NewJSONStore(StoreConfig{Path: filepath.Join(dir, "sessions")})
	if err != nil {
		t.Fatalf("json store: %v", err)
	}

	stores := map[string]Store{"sqlite": sqlite, "json": jsonStore}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.GetSession(ctx, "telegram:1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("missing session error = %v, want ErrNotFound", err)
			}

			sess := NewSession("telegram:1")
			sess.Model = "claude-sonnet-4"
			sess.Provider = "anthropic"
			sess.ContextTokens = 200000
			sess.CompactionCount = 3
			sess.InputTokens = 1200
			sess.OutputTokens = 340
			sess.CacheReadTokens = 900
			sess.CacheWriteTokens = 100
			sess.TotalTokens = 2540

			if err := store.PutSession(ctx, sess); err != nil {
				t.Fatalf("put: %v", err)
			}

			got, err := store.GetSession(ctx, "telegram:1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.ID != sess.ID || got.Model != sess.Model || got.Provider != sess.Provider {
				t.Errorf("metadata mismatch: got %+v", got)
			}
			if got.CompactionCount != 3 || got.TotalTokens != 2540 ||
				got.CacheReadTokens != 900 || got.CacheWriteTokens != 100 {
				t.Errorf("counters mismatch: got %+v", got)
			}

			// Reload must not invent changes.
			again, err := store.GetSession(ctx, "telegram:1")
			if err != nil {
				t.Fatalf("second get: %v", err)
			}
			if *again != *got {
				t.Errorf("reload drifted: %+v vs %+v", again, got)
			}
		})
	}
}

func TestStoreUpdateAndList(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			a := NewSession("telegram:10")
			b := NewSession("whatsapp:20")
			b.TotalTokens = 99
			for _, s := range []*Session{a, b} {
				if err := store.PutSession(ctx, s); err != nil {
					t.Fatalf("put: %v", err)
				}
			}

			// Second put with the same key is an update, not a duplicate.
			a.CompactionCount = 1
			if err := store.PutSession(ctx, a); err != nil {
				t.Fatalf("update: %v", err)
			}

			infos, err := store.ListSessions(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(infos) != 2 {
				t.Fatalf("got %d sessions, want 2", len(infos))
			}
			byKey := map[string]SessionInfo{}
			for _, info := range infos {
				byKey[info.Key] = info
			}
			if byKey["telegram:10"].CompactionCount != 1 {
				t.Errorf("updated session not reflected: %+v", byKey["telegram:10"])
			}
			if byKey["whatsapp:20"].TotalTokens != 99 {
				t.Errorf("list dropped counters: %+v", byKey["whatsapp:20"])
			}
		})
	}
}

func TestManagerGetOrCreate(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(StoreConfig{Path: filepath.Join(t.TempDir(), "herald.db"), WALMode: true})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	m := NewManager(store)
	defer m.Close()

	first, err := m.GetOrCreate(ctx, "discord:7")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := m.GetOrCreate(ctx, "discord:7")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if first != second {
		t.Fatal("same key must return the same live session")
	}

	first.IncrementCompactions()
	if err := m.Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	persisted, err := store.GetSession(ctx, "discord:7")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if persisted.CompactionCount != 1 {
		t.Errorf("CompactionCount = %d, want 1", persisted.CompactionCount)
	}
}

func TestApplyResultUsageRules(t *testing.T) {
	s := NewSession("telegram:5")

	// Prompt tokens are the sum of input + cache read + cache write.
	changed := s.ApplyResult("m1", "anthropic", 200000, types.TokenUsage{
		Input: 100, Output: 50, CacheRead: 400, CacheWrite: 20, Total: 9999,
	})
	if !changed {
		t.Fatal("usage must mark the session changed")
	}
	if s.InputTokens != 520 || s.TotalTokens != 570 {
		t.Errorf("got input=%d total=%d, want 520/570 (provider total ignored when sum > 0)",
			s.InputTokens, s.TotalTokens)
	}

	// Counters snapshot the latest run, they do not accumulate.
	s.ApplyResult("m1", "anthropic", 200000, types.TokenUsage{Input: 10, Output: 5})
	if s.InputTokens != 10 || s.TotalTokens != 15 {
		t.Errorf("got input=%d total=%d, want 10/15 (overwrite, not accumulate)",
			s.InputTokens, s.TotalTokens)
	}

	// Zero component sum falls back to the provider-reported total.
	s2 := NewSession("telegram:6")
	s2.ApplyResult("m1", "openai", 0, types.TokenUsage{Output: 10, Total: 300})
	if s2.InputTokens != 300 || s2.TotalTokens != 310 {
		t.Errorf("got input=%d total=%d, want 300/310 (fallback to reported total)",
			s2.InputTokens, s2.TotalTokens)
	}

	// Metadata-only update still counts as a change to persist.
	s3 := NewSession("telegram:7")
	if !s3.ApplyResult("m2", "anthropic", 100000, types.TokenUsage{}) {
		t.Error("model/context refresh without usage must still report changed")
	}
	if s3.Model != "m2" || s3.ContextTokens != 100000 {
		t.Errorf("metadata not applied: %+v", s3)
	}

	// No-op application reports unchanged.
	if s3.ApplyResult("m2", "anthropic", 100000, types.TokenUsage{}) {
		t.Error("identical metadata with no usage must report unchanged")
	}
}
