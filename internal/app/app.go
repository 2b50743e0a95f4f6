// Package app wires all kotoba subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject test doubles via functional options (WithStore,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/kotoba/internal/api"
	"github.com/MrWong99/kotoba/internal/config"
	"github.com/MrWong99/kotoba/internal/conversation"
	"github.com/MrWong99/kotoba/internal/health"
	"github.com/MrWong99/kotoba/internal/observe"
	"github.com/MrWong99/kotoba/internal/practice"
	"github.com/MrWong99/kotoba/pkg/cache"
	"github.com/MrWong99/kotoba/pkg/cache/memory"
	"github.com/MrWong99/kotoba/pkg/cache/postgres"
	"github.com/MrWong99/kotoba/pkg/cache/redis"
	"github.com/MrWong99/kotoba/pkg/cache/sqlite"
	"github.com/MrWong99/kotoba/pkg/furigana"
	"github.com/MrWong99/kotoba/pkg/romaji"
)

// DefaultMemoryCacheSize is the LRU size of the memory backend when
// cache.lru_size is unset.
const DefaultMemoryCacheSize = 4096

// App owns all subsystem lifetimes and serves the practice API.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar
	injected  cache.Store

	// Subsystems, initialised in New and torn down in Shutdown.
	store     *observe.MeteredStore
	annotator *furigana.Annotator
	romanizer *romaji.Converter
	practice  *practice.Service
	partner   *conversation.Partner
	handler   http.Handler
	server    *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a reading cache instead of creating one from config.
// The caller keeps ownership of the store.
func WithStore(s cache.Store) Option {
	return func(a *App) { a.injected = s }
}

// WithMetrics records telemetry on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets configuration reloads adjust the level of the process
// logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via [BuildProviders]). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: cache connection and
// migration, annotator, romanizer, practice service, conversation partner
// and HTTP routing. The providers are owned by the App from here on and are
// closed by Shutdown.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.closers = append(a.closers, providers.Close)

	// ── 1. Reading cache ─────────────────────────────────────────────────
	if err := a.initCache(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init cache: %w", err)
	}

	// ── 2. Furigana annotator ────────────────────────────────────────────
	if providers.Dictionary == nil {
		a.closeAll()
		return nil, errors.New("app: a dictionary provider is required")
	}
	a.annotator = furigana.New(providers.Dictionary, a.store,
		furigana.WithMaxConcurrentLookups(cfg.Furigana.MaxConcurrentLookups),
		furigana.WithSentenceCache(cfg.Furigana.CacheSentences),
	)

	// ── 3. Romanizer ─────────────────────────────────────────────────────
	if providers.Tokenizer != nil {
		a.romanizer = romaji.New(romaji.WithTagger(romaji.NewKagomeTagger(providers.Tokenizer)))
	} else {
		a.romanizer = romaji.New()
	}

	// ── 4. Practice service ──────────────────────────────────────────────
	a.practice = practice.New(providers.STT, practice.NewScorer(cfg.Scoring), practice.WithMetrics(a.metrics))

	// ── 5. Conversation partner ──────────────────────────────────────────
	if providers.LLM != nil {
		c := cfg.Conversation
		var popts []conversation.Option
		if c.SystemPrompt != "" {
			popts = append(popts, conversation.WithSystemPrompt(c.SystemPrompt))
		}
		a.partner = conversation.New(providers.LLM, a.annotator, a.romanizer, append(popts,
			conversation.WithLevel(c.Level),
			conversation.WithTemperature(orDefaultFloat(c.Temperature, conversation.DefaultTemperature)),
			conversation.WithMaxTokens(c.MaxTokens),
			conversation.WithMaxHistory(c.MaxHistory),
			conversation.WithMaxPromptTokens(c.MaxPromptTokens),
		)...)
	}

	// ── 6. HTTP routing ──────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initCache opens the configured backend, layers the in-process LRU in front
// of persistent backends, and meters the result.
func (a *App) initCache(ctx context.Context) error {
	if a.injected != nil {
		a.store = observe.NewMeteredStore(a.injected, "injected", a.metrics)
		return nil
	}

	c := a.cfg.Cache
	backend := c.Backend
	if backend == "" {
		backend = config.CacheMemory
	}

	var back cache.Store
	switch backend {
	case config.CacheMemory:
		size := c.LRUSize
		if size == 0 {
			size = DefaultMemoryCacheSize
		}
		s, err := memory.New(size)
		if err != nil {
			return err
		}
		a.store = observe.NewMeteredStore(s, string(backend), a.metrics)
		slog.Info("reading cache ready", "backend", backend, "size", size)
		return nil

	case config.CacheSQLite:
		s, err := sqlite.Open(ctx, c.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, s.Close)
		back = s

	case config.CachePostgres:
		s, err := postgres.NewStore(ctx, c.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			s.Close()
			return nil
		})
		back = s

	case config.CacheRedis:
		var opts []redis.Option
		if c.KeyPrefix != "" {
			opts = append(opts, redis.WithPrefix(c.KeyPrefix))
		}
		s, err := redis.New(c.DSN, opts...)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, s.Close)
		if err := s.Ping(ctx); err != nil {
			return fmt.Errorf("redis cache: %w", err)
		}
		back = s

	default:
		return fmt.Errorf("unknown cache backend %q", backend)
	}

	if c.LRUSize > 0 {
		front, err := memory.New(c.LRUSize)
		if err != nil {
			return err
		}
		back = cache.NewTiered(front, back)
	}
	a.store = observe.NewMeteredStore(back, string(backend), a.metrics)
	slog.Info("reading cache ready", "backend", backend, "front_lru", c.LRUSize)
	return nil
}

// initHTTP builds the routed, instrumented handler and the server.
func (a *App) initHTTP() {
	mux := http.NewServeMux()

	api.New(api.Deps{
		Annotator:      a.annotator,
		Romanizer:      a.romanizer,
		Practice:       a.practice,
		Partner:        a.partner,
		Synthesizer:    a.providers.TTS,
		DefaultVoice:   a.cfg.Conversation.VoiceID,
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
	}).Register(mux)

	checkers := []health.Checker{health.PingCheck("cache", a.store)}
	for _, kind := range []string{observe.KindDictionary, observe.KindSTT, observe.KindLLM, observe.KindTTS} {
		if statuses, ok := a.providers.Breakers[kind]; ok {
			checkers = append(checkers, health.BreakerCheck(kind, statuses))
		}
	}
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.handler = observe.Middleware(a.metrics)(mux)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the instrumented HTTP handler serving every route.
func (a *App) Handler() http.Handler { return a.handler }

// Annotator returns the furigana annotator.
func (a *App) Annotator() *furigana.Annotator { return a.annotator }

// Practice returns the pronunciation practice service.
func (a *App) Practice() *practice.Service { return a.practice }

// Forget removes a cached reading or annotated text.
func (a *App) Forget(ctx context.Context, key string) error {
	if err := a.annotator.Forget(ctx, key); err != nil {
		return fmt.Errorf("app: forget %q: %w", key, err)
	}
	return nil
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of a new configuration and
// logs the sections that only take effect after a restart. It is meant as
// the callback of a [config.Watcher].
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(ParseLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ScoringChanged {
		a.practice.SetScorer(practice.NewScorer(d.NewScoring))
		slog.Info("pronunciation scoring updated",
			"forgiveness", d.NewScoring.Forgiveness,
			"length_tolerance", d.NewScoring.LengthTolerance,
			"markers", len(d.NewScoring.Markers),
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ParseLevel maps a config log level to its slog level. Unknown values map
// to info.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
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

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and blocks until ctx is
// cancelled or the listener fails. When ctx is done, Run returns
// context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is [App.Run] on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		errCh <- err
	}()

	slog.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown drains in-flight requests and tears down all subsystems in
// init order. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop accepting requests first.
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
			}
		}

		// Run closers in order.
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what New acquired before failing.
func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func orDefaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
