// Command kotoba is the main entry point for the kotoba Japanese practice server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/kotoba/internal/app"
	"github.com/MrWong99/kotoba/internal/config"
	"github.com/MrWong99/kotoba/internal/observe"
	"github.com/MrWong99/kotoba/pkg/provider/dictionary"
	"github.com/MrWong99/kotoba/pkg/provider/dictionary/jisho"
	"github.com/MrWong99/kotoba/pkg/provider/dictionary/jmdict"
	"github.com/MrWong99/kotoba/pkg/provider/dictionary/kagome"
	"github.com/MrWong99/kotoba/pkg/provider/llm"
	"github.com/MrWong99/kotoba/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/kotoba/pkg/provider/llm/openai"
	"github.com/MrWong99/kotoba/pkg/provider/stt"
	oaistt "github.com/MrWong99/kotoba/pkg/provider/stt/openai"
	"github.com/MrWong99/kotoba/pkg/provider/stt/whisper"
	"github.com/MrWong99/kotoba/pkg/provider/tts"
	"github.com/MrWong99/kotoba/pkg/provider/tts/elevenlabs"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	forget := flag.String("forget", "", "remove a cached reading (a kanji run or a whole text) and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kotoba: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kotoba: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var logLevel slog.LevelVar
	logLevel.Set(app.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(&logLevel))

	slog.Info("kotoba starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"version", version,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "kotoba",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	analyzer := sync.OnceValues(kagome.New)
	registerBuiltinProviders(reg, analyzer)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := app.BuildProviders(reg, cfg, observe.DefaultMetrics())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if a, err := analyzer(); err != nil {
		slog.Warn("morphological analyser unavailable, romaji particles use the word list only", "err", err)
	} else {
		providers.Tokenizer = a.Tokenizer()
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(&logLevel))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Cache admin ───────────────────────────────────────────────────────────
	if *forget != "" {
		return forgetAndExit(application, *forget)
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
		go reloadOnHangup(ctx, watcher)
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, providers)

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// forgetAndExit drops key from the reading cache and releases the app.
func forgetAndExit(application *app.App, key string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	code := 0
	if err := application.Forget(ctx, key); err != nil {
		slog.Error("forget failed", "key", key, "err", err)
		code = 1
	} else {
		fmt.Printf("kotoba: forgot %q\n", key)
	}
	if err := application.Shutdown(ctx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}
	return code
}

// reloadOnHangup forces a config reload on SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			changed, err := w.Reload()
			if err != nil {
				slog.Warn("config: reload failed, keeping previous config", "err", err)
				continue
			}
			slog.Info("SIGHUP received, config reloaded", "changed", changed)
		}
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages. analyzer shares one kagome
// dictionary between the kagome lookup backend and the romanizer.
func registerBuiltinProviders(reg *config.Registry, analyzer func() (*kagome.Analyzer, error)) {
	// ── Dictionary ────────────────────────────────────────────────────────────

	reg.RegisterDictionary("jisho", func(entry config.ProviderEntry) (dictionary.Lookuper, error) {
		var opts []jisho.Option
		if entry.BaseURL != "" {
			opts = append(opts, jisho.WithBaseURL(entry.BaseURL))
		}
		if d, err := optDuration(entry.Options, "min_interval"); err != nil {
			return nil, err
		} else if d > 0 {
			opts = append(opts, jisho.WithMinInterval(d))
		}
		return jisho.New(opts...), nil
	})

	reg.RegisterDictionary("jmdict", func(entry config.ProviderEntry) (dictionary.Lookuper, error) {
		path := optString(entry.Options, "path")
		if path == "" {
			return nil, errors.New("jmdict: options.path is required")
		}
		return jmdict.LoadFile(path)
	})

	reg.RegisterDictionary("kagome", func(config.ProviderEntry) (dictionary.Lookuper, error) {
		return analyzer()
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []oaistt.Option
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other chat backend goes through any-llm. Its openai adapter is
	// shadowed by the native client above.
	for _, providerName := range anyllm.Backends() {
		if providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if voice := optString(entry.Options, "voice_id"); voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voice))
		}
		if lang := optString(entry.Options, "language_code"); lang != "" {
			opts = append(opts, elevenlabs.WithLanguage(lang))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	for _, kind := range []string{"dictionary", "stt", "llm", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, providers *app.Providers) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         kotoba · startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printChain("Dictionary", providers.Names["dictionary"])
	printChain("STT", providers.Names["stt"])
	printChain("LLM", providers.Names["llm"])
	printChain("TTS", providers.Names["tts"])
	backend := string(cfg.Cache.Backend)
	if backend == "" {
		backend = string(config.CacheMemory)
	}
	fmt.Printf("║  Cache           : %-19s ║\n", backend)
	fmt.Printf("║  Score markers   : %-19d ║\n", len(cfg.Scoring.Markers))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printChain(kind string, names []string) {
	value := "(not configured)"
	if len(names) > 0 {
		value = names[0]
		if len(names) > 1 {
			value = fmt.Sprintf("%s +%d", names[0], len(names)-1)
		}
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration option such as "1s". An absent key yields 0.
func optDuration(opts map[string]any, key string) (time.Duration, error) {
	s := optString(opts, key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("options.%s: %w", key, err)
	}
	return d, nil
}
