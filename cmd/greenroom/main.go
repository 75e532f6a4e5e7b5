// Command greenroom is the main entry point for the Greenroom interview server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/greenroom-ai/greenroom/internal/config"
	"github.com/greenroom-ai/greenroom/internal/gateway"
	"github.com/greenroom-ai/greenroom/internal/health"
	"github.com/greenroom-ai/greenroom/internal/observe"
	"github.com/greenroom-ai/greenroom/internal/resilience"
	"github.com/greenroom-ai/greenroom/pkg/provider/chat"
	chatbackend "github.com/greenroom-ai/greenroom/pkg/provider/chat/backend"
	chatopenai "github.com/greenroom-ai/greenroom/pkg/provider/chat/openai"
	"github.com/greenroom-ai/greenroom/pkg/provider/transcribe"
	"github.com/greenroom-ai/greenroom/pkg/provider/transcribe/httpapi"
	"github.com/greenroom-ai/greenroom/pkg/provider/voice"
	"github.com/greenroom-ai/greenroom/pkg/provider/voice/elevenlabs"
)

func main() {
	os.Exit(run())
}

// logLevel is mutable at runtime so a config reload can change verbosity
// without a restart.
var logLevel = new(slog.LevelVar)

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "greenroom: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "greenroom: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("greenroom starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	chatProvider, transcriber, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, onConfigChange)
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Gateway ───────────────────────────────────────────────────────────────
	deps := gateway.Deps{
		Config:      cfg,
		Chat:        chatProvider,
		Transcriber: transcriber,
		NewRenderer: rendererFactory(cfg, reg),
		Health:      health.New(readinessCheckers(cfg)...),
	}
	if watcher != nil {
		// New sessions pick up reloaded interview and rating tuning.
		deps.ConfigSource = watcher.Current
	}
	srv, err := gateway.NewServer(deps)
	if err != nil {
		slog.Error("failed to initialise gateway", "err", err)
		return 1
	}

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Chat ──────────────────────────────────────────────────────────────────

	reg.RegisterChat("backend", func(entry config.ProviderEntry) (chat.Provider, error) {
		return chatbackend.New(entry.BaseURL)
	})

	reg.RegisterChat("openai", func(entry config.ProviderEntry) (chat.Provider, error) {
		var opts []chatopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, chatopenai.WithBaseURL(entry.BaseURL))
		}
		return chatopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Transcription ─────────────────────────────────────────────────────────

	reg.RegisterTranscribe("httpapi", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		return httpapi.New(entry.BaseURL)
	})

	// ── Voice ─────────────────────────────────────────────────────────────────

	reg.RegisterVoice("elevenlabs", func(entry config.ProviderEntry, sink voice.AudioSink) (voice.Renderer, error) {
		profile := voice.Profile{
			ID:   optString(entry.Options, "voice_id"),
			Name: optString(entry.Options, "voice_name"),
		}
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		return elevenlabs.New(entry.APIKey, profile, sink, opts...)
	})
}

// buildProviders instantiates the chat and transcription collaborators named
// in cfg. Both are required for the server to run.
func buildProviders(cfg *config.Config, reg *config.Registry) (chat.Provider, transcribe.Provider, error) {
	cp, err := reg.CreateChat(cfg.Providers.Chat)
	if err != nil {
		return nil, nil, fmt.Errorf("create chat provider %q: %w", cfg.Providers.Chat.Name, err)
	}
	slog.Info("provider created", "kind", "chat", "name", cfg.Providers.Chat.Name)

	if name := cfg.Providers.ChatFallback.Name; name != "" {
		fb, err := reg.CreateChat(cfg.Providers.ChatFallback)
		if err != nil {
			return nil, nil, fmt.Errorf("create chat fallback %q: %w", name, err)
		}
		group := resilience.NewChatFallback(cp, cfg.Providers.Chat.Name, resilience.FallbackConfig{})
		group.AddFallback(name, fb)
		cp = group
		slog.Info("chat fallback registered", "name", name)
	}

	tp, err := reg.CreateTranscribe(cfg.Providers.Transcribe)
	if err != nil {
		return nil, nil, fmt.Errorf("create transcribe provider %q: %w", cfg.Providers.Transcribe.Name, err)
	}
	slog.Info("provider created", "kind", "transcribe", "name", cfg.Providers.Transcribe.Name)

	if name := cfg.Providers.TranscribeFallback.Name; name != "" {
		fb, err := reg.CreateTranscribe(cfg.Providers.TranscribeFallback)
		if err != nil {
			return nil, nil, fmt.Errorf("create transcribe fallback %q: %w", name, err)
		}
		group := resilience.NewTranscribeFallback(tp, cfg.Providers.Transcribe.Name, resilience.FallbackConfig{})
		group.AddFallback(name, fb)
		tp = group
		slog.Info("transcribe fallback registered", "name", name)
	}

	return cp, tp, nil
}

// rendererFactory builds the per-connection voice renderer. When no voice
// provider is configured, or construction fails, the interview runs text-only
// behind a renderer that reports itself not ready.
func rendererFactory(cfg *config.Config, reg *config.Registry) gateway.RendererFactory {
	return func(emit gateway.SpeechEmit) voice.Renderer {
		entry := cfg.Providers.Voice
		if entry.Name == "" {
			return unreadyRenderer{}
		}
		r, err := reg.CreateVoice(entry, emitSink{emit: emit})
		if err != nil {
			slog.Error("failed to create voice renderer, running text-only", "name", entry.Name, "err", err)
			return unreadyRenderer{}
		}
		return r
	}
}

// emitSink adapts the gateway's audio emit callback to voice.AudioSink.
type emitSink struct {
	emit gateway.SpeechEmit
}

func (s emitSink) Speak(text string, pcm []byte, duration time.Duration) {
	s.emit(text, pcm, duration)
}

func (s emitSink) Flush()   {}
func (s emitSink) Discard() {}

// unreadyRenderer never accepts speech; the playback scheduler drops every
// fragment and the transcript remains the only output channel.
type unreadyRenderer struct{}

func (unreadyRenderer) StartSession(context.Context) error { return nil }
func (unreadyRenderer) EnqueueText(context.Context, string) (time.Duration, error) {
	return 0, voice.ErrNotReady
}
func (unreadyRenderer) EndSession(context.Context) error { return nil }
func (unreadyRenderer) HardStop()                        {}
func (unreadyRenderer) Ready() bool                      { return false }

// ── Config reload ─────────────────────────────────────────────────────────────

// onConfigChange applies what can be applied at runtime and reports the rest.
func onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Any() {
		return
	}
	if d.LogLevelChanged {
		logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level updated", "level", d.NewLogLevel)
	}
	if d.InterviewChanged || d.RatingChanged {
		slog.Info("interview tuning updated, applies to new sessions")
	}
	if d.ProvidersChanged {
		slog.Warn("provider configuration changed, restart required to apply")
	}
}

// ── Readiness ─────────────────────────────────────────────────────────────────

// readinessCheckers probes the configured HTTP collaborators.
func readinessCheckers(cfg *config.Config) []health.Checker {
	var checks []health.Checker
	if url := cfg.Providers.Chat.BaseURL; url != "" {
		checks = append(checks, health.HTTPChecker("chat", url))
	}
	if url := cfg.Providers.Transcribe.BaseURL; url != "" {
		checks = append(checks, health.HTTPChecker("transcribe", url))
	}
	return checks
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Greenroom — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Chat", cfg.Providers.Chat.Name, cfg.Providers.Chat.Model)
	printProvider("Transcribe", cfg.Providers.Transcribe.Name, cfg.Providers.Transcribe.Model)
	printProvider("Voice", cfg.Providers.Voice.Name, cfg.Providers.Voice.Model)
	printProvider("Biometric", cfg.Providers.Biometric.Name, "")
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
