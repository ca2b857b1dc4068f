package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/coopco/molebot/internal/agent"
	"github.com/coopco/molebot/internal/bus"
	"github.com/coopco/molebot/internal/channels"
	"github.com/coopco/molebot/internal/config"
	"github.com/coopco/molebot/internal/extract"
	"github.com/coopco/molebot/internal/gateway"
	"github.com/coopco/molebot/internal/prompt"
	"github.com/coopco/molebot/internal/providers"
	"github.com/coopco/molebot/internal/ratelimit"
	"github.com/coopco/molebot/internal/search"
	"github.com/coopco/molebot/internal/session"
	"github.com/coopco/molebot/internal/status"
	"github.com/coopco/molebot/internal/urlsniff"
)

const busBuffer = 100

// serve wires every component and blocks until ctx is done or one of them fails.
func serve(ctx context.Context, cfg *config.Config) error {
	factory, err := memoryFactory(ctx, cfg)
	if err != nil {
		return err
	}

	store := session.NewStore(session.ModelKey(strings.ToUpper(cfg.Models.Default)), factory)
	if path := cfg.Sessions.SnapshotFile; path != "" {
		n, err := store.LoadFile(path)
		if err != nil {
			slog.Warn("failed to load sessions", "path", path, "err", err)
		} else if n > 0 {
			slog.Info("sessions restored", "count", n, "path", path)
		}
	}

	limits, closeLimits := rateStore(ctx, cfg.RateLimit)
	defer closeLimits()

	msgBus := bus.NewMessageBus(busBuffer)
	defer msgBus.Close()
	outbox := bus.NewOutbox(msgBus)
	humanizer := agent.NewHumanizer(outbox,
		agent.Range{Min: cfg.Humanize.ReplyMin.Duration, Max: cfg.Humanize.ReplyMax.Duration},
		agent.Range{Min: cfg.Humanize.ProcessMin.Duration, Max: cfg.Humanize.ProcessMax.Duration},
	)

	loc := prompt.LoadLocation(cfg.Bot.Timezone)
	dispatcher, err := agent.New(agent.Config{
		Bus:       msgBus,
		Transport: outbox,
		Humanizer: humanizer,
		Sessions:  store,
		Gate:      ratelimit.NewGate(limits, cfg.RateLimit.Window.Duration, cfg.RateLimit.Threshold),
		Sniffer:   urlsniff.New(nil),
		Extractor: extract.New(extract.WithLimits(extract.Limits{
			Document: cfg.Limits.DocumentMB << 20,
			Media:    cfg.Limits.MediaMB << 20,
		})),
		Assembler: prompt.NewAssembler(prompt.Config{
			Location: loc,
			Persona:  cfg.Bot.Persona,
			Defaults: prompt.DefaultSentences(cfg.Bot.Prefix),
		}),
		Searcher:   searcher(cfg.Search),
		Images:     imageGenerator(ctx, cfg),
		Prefix:     cfg.Bot.Prefix,
		ImageModel: cfg.Models.Image,
		Models: map[session.ModelKey]string{
			session.ModelFast:  cfg.Models.Fast.Model,
			session.ModelSmart: cfg.Models.Smart.Model,
		},
		ModeLabels: modeLabels(cfg.Models),
		AssetPath:  cfg.Bot.AssetPath,
		Texts:      agent.Texts{Onboarding: cfg.Bot.Onboarding, Menu: cfg.Bot.Menu},
	})
	if err != nil {
		return err
	}

	mgr := channels.NewManager(msgBus)
	for name, raw := range cfg.Channels {
		if err := mgr.AddChannel(name, raw); err != nil {
			return fmt.Errorf("channel %s: %w", name, err)
		}
	}
	if len(mgr.Names()) == 0 {
		slog.Warn("no channels configured", "available", channels.RegisteredNames())
	}

	var reporter *status.Service
	if cfg.Status.Enabled {
		target, ok := bus.ParseConversationID(cfg.Status.Target)
		if !ok {
			return fmt.Errorf("status.target %q is not a conversation key", cfg.Status.Target)
		}
		reporter, err = status.NewService(status.Config{
			Target:      target,
			Schedule:    cfg.Status.Schedule,
			Sender:      humanizer,
			Sessions:    store,
			DefaultMode: modeLabels(cfg.Models)[store.DefaultModel()],
			Location:    loc,
			SendOnStart: true,
		})
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error {
		msgBus.DispatchOutbound(gctx)
		return nil
	})
	g.Go(func() error {
		if err := mgr.StartAll(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return mgr.StopAll()
	})
	g.Go(func() error {
		return gateway.New(cfg.Gateway.Host, cfg.Gateway.Port, health{mgr, store}).Run(gctx)
	})
	if reporter != nil {
		g.Go(func() error { return reporter.Run(gctx) })
	}
	if path := cfg.Sessions.SnapshotFile; path != "" {
		g.Go(func() error {
			snapshotLoop(gctx, store, path, cfg.Sessions.SnapshotInterval.Duration)
			return nil
		})
	}

	slog.Info("molebot started",
		"channels", mgr.Names(),
		"default_model", cfg.Models.Default,
		"search", cfg.Search.Enabled,
	)
	err = g.Wait()
	if path := cfg.Sessions.SnapshotFile; path != "" {
		if serr := store.SaveFile(path); serr != nil {
			slog.Error("failed to save sessions", "path", path, "err", serr)
		}
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	slog.Info("molebot stopped")
	return err
}

// memoryFactory resolves the FAST and SMART backends.
func memoryFactory(ctx context.Context, cfg *config.Config) (session.MemoryFactory, error) {
	transcriber := newTranscriber(cfg.Providers.Groq)
	lookup := credentials(cfg.Providers)

	bindings := make(map[session.ModelKey]agent.Binding, 2)
	for key, mc := range map[session.ModelKey]config.ModelConfig{
		session.ModelFast:  cfg.Models.Fast,
		session.ModelSmart: cfg.Models.Smart,
	} {
		backend, err := providers.Resolve(ctx, mc.Provider, mc.Model, lookup, transcriber)
		if err != nil {
			return nil, fmt.Errorf("%s model: %w", key, err)
		}
		instruction := mc.SystemInstruction
		if instruction == "" {
			instruction = agent.DefaultFastInstruction
			if key == session.ModelSmart {
				instruction = agent.DefaultSmartInstruction
			}
		}
		bindings[key] = agent.Binding{
			Provider:          backend.Provider,
			Model:             mc.Model,
			SystemInstruction: instruction,
			Search:            mc.Search,
		}
		slog.Info("model bound", "key", key, "provider", backend.Name, "model", mc.Model)
	}
	return agent.NewMemoryFactory(bindings), nil
}

func credentials(p config.ProvidersConfig) providers.Lookup {
	return func(name string) providers.Credential {
		pc := p.Get(name)
		return providers.Credential{APIKey: pc.APIKey, APIBase: pc.BaseURL}
	}
}

// newTranscriber returns nil when no Groq key is configured.
func newTranscriber(groq config.ProviderConfig) providers.Transcriber {
	if groq.APIKey == "" {
		return nil
	}
	return providers.NewTranscriptionProvider(groq.APIKey, groq.BaseURL)
}

func imageGenerator(ctx context.Context, cfg *config.Config) providers.ImageGenerator {
	if cfg.Models.Image == "" {
		return nil
	}
	backend, err := providers.Resolve(ctx, cfg.Models.ImageProvider, cfg.Models.Image, credentials(cfg.Providers), nil)
	if err != nil {
		slog.Warn("image generation disabled", "model", cfg.Models.Image, "err", err)
		return nil
	}
	if backend.Images == nil {
		slog.Warn("image generation disabled", "model", cfg.Models.Image, "provider", backend.Name)
	}
	return backend.Images
}

func searcher(cfg config.SearchConfig) agent.Searcher {
	if !cfg.Enabled {
		return nil
	}
	s, err := search.New(search.Config{
		Endpoint: cfg.Endpoint,
		Proxy:    cfg.Proxy,
		Timeout:  cfg.Timeout.Duration,
		MaxLinks: cfg.MaxLinks,
	})
	if err != nil {
		slog.Warn("search disabled", "err", err)
		return nil
	}
	return s
}

// rateStore picks Redis when an address is configured and reachable.
func rateStore(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Store, func()) {
	if cfg.Redis.Addr == "" {
		return ratelimit.NewMemoryStore(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, rate limiting in memory", "addr", cfg.Redis.Addr, "err", err)
		client.Close()
		return ratelimit.NewMemoryStore(), func() {}
	}
	return ratelimit.NewRedisStore(client, cfg.Redis.Prefix), func() { client.Close() }
}

func modeLabels(m config.ModelsConfig) map[session.ModelKey]string {
	return map[session.ModelKey]string{
		session.ModelFast:  m.Fast.Label,
		session.ModelSmart: m.Smart.Label,
	}
}

func snapshotLoop(ctx context.Context, store *session.Store, path string, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.SaveFile(path); err != nil {
				slog.Error("failed to save sessions", "path", path, "err", err)
			}
		}
	}
}

type health struct {
	mgr   *channels.Manager
	store *session.Store
}

func (h health) Channels() []string { return h.mgr.Names() }
func (h health) Sessions() int      { return h.store.Len() }
