// Command herald bridges chat surfaces (Telegram, WhatsApp, Discord) to
// an LLM assistant with per-conversation reply orchestration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/heraldlabs/herald/internal/agent"
	"github.com/heraldlabs/herald/internal/channels"
	"github.com/heraldlabs/herald/internal/config"
	"github.com/heraldlabs/herald/internal/cron"
	"github.com/heraldlabs/herald/internal/llm"
	"github.com/heraldlabs/herald/internal/session"

	. "github.com/heraldlabs/herald/internal/logging"
)

const version = "0.1.0"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("herald %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "herald: %v\n", err)
		os.Exit(1)
	}

	Init(&Config{
		Level:      ParseLevel(cfg.Logging.Level),
		TimeFormat: "15:04:05",
		ShowCaller: cfg.Logging.ShowCaller,
	})
	L_info("herald %s starting", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		L_fatal("herald failed: %v", err)
	}
	L_info("herald stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := session.NewStore(cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	sessions := session.NewManager(store)
	defer sessions.Close()

	providers, chain, err := buildLLM(cfg.LLM)
	if err != nil {
		return err
	}

	executor := agent.NewExecutor(agent.Options{
		SystemPrompt:   cfg.Agent.SystemPrompt,
		CompactPercent: cfg.Agent.CompactPercent,
	})

	h := newHub(ctx, cfg, sessions, executor, chain, providers)

	adapters, err := buildAdapters(cfg, h.Submit)
	if err != nil {
		return err
	}
	for _, a := range adapters {
		h.addAdapter(a)
	}
	for _, a := range adapters {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s: %w", a.Name(), err)
		}
	}

	heartbeat := cron.NewScheduler(cfg.Heartbeat, h.Submit)
	if err := heartbeat.Start(); err != nil {
		return err
	}

	L_info("herald ready", "adapters", len(adapters), "chain", len(chain))
	<-ctx.Done()

	SetShuttingDown()
	heartbeat.Stop()
	for _, a := range adapters {
		if err := a.Stop(); err != nil {
			L_warn("adapter stop failed", "adapter", a.Name(), "error", err)
		}
	}
	h.Wait()
	return nil
}

// buildLLM instantiates the named providers and resolves the fallback
// chain against them.
func buildLLM(cfg config.LLMConfig) (map[string]llm.Provider, []llm.Candidate, error) {
	providers := make(map[string]llm.Provider, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		p, err := llm.NewProvider(name, pc)
		if err != nil {
			return nil, nil, fmt.Errorf("provider %s: %w", name, err)
		}
		providers[name] = p
	}

	var chain []llm.Candidate
	for _, entry := range cfg.Chain {
		p, ok := providers[entry.Provider]
		if !ok {
			return nil, nil, fmt.Errorf("chain references unknown provider %q", entry.Provider)
		}
		chain = append(chain, llm.Candidate{Provider: p, Model: entry.Model})
	}
	if len(chain) == 0 {
		return nil, nil, fmt.Errorf("no model chain configured")
	}
	return providers, chain, nil
}

// buildAdapters creates every enabled surface.
func buildAdapters(cfg *config.Config, inbound channels.InboundFunc) ([]channels.Adapter, error) {
	var adapters []channels.Adapter

	if cfg.Telegram.Enabled {
		tg, err := channels.NewTelegram(cfg.Telegram, inbound)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, tg)
	}
	if cfg.WhatsApp.Enabled {
		wa, err := channels.NewWhatsApp(cfg.WhatsApp, inbound)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, wa)
	}
	if cfg.Discord.Enabled {
		dc, err := channels.NewDiscord(cfg.Discord, inbound)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, dc)
	}

	if len(adapters) == 0 {
		L_warn("no chat surfaces enabled; only heartbeat sessions will run")
	}
	return adapters, nil
}
