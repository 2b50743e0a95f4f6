package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/MrWong99/kotoba/internal/config"
	"github.com/MrWong99/kotoba/internal/observe"
	"github.com/MrWong99/kotoba/internal/resilience"
	"github.com/MrWong99/kotoba/pkg/provider/dictionary"
	"github.com/MrWong99/kotoba/pkg/provider/llm"
	"github.com/MrWong99/kotoba/pkg/provider/stt"
	"github.com/MrWong99/kotoba/pkg/provider/tts"
)

// DefaultDictionary is the provider used when no dictionary is configured.
// It needs no network and ships with the binary.
const DefaultDictionary = "kagome"

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via [BuildProviders] or
// directly in tests.
type Providers struct {
	Dictionary dictionary.Lookuper
	STT        stt.Transcriber
	LLM        llm.Provider
	TTS        tts.Synthesizer

	// Tokenizer, when set, lets the romanizer tell particles from word
	// syllables by morphological analysis.
	Tokenizer *tokenizer.Tokenizer

	// Breakers reports the circuit breakers of each fallback chain in
	// failover order, keyed by provider kind.
	Breakers map[string]func() []resilience.BreakerStatus

	// Names lists the backends of each chain in failover order, keyed by
	// provider kind.
	Names map[string][]string

	// closers release backends that hold connections or files.
	closers []func() error
}

// Close releases every backend that needs it.
func (p *Providers) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type named[T any] struct {
	name  string
	value T
}

// chainBuilder turns provider entries into metered, breaker-guarded,
// retried chains.
type chainBuilder struct {
	reg     *config.Registry
	metrics *observe.Metrics
	retry   resilience.RetryConfig
	fbCfg   resilience.FallbackConfig
	out     *Providers
}

// BuildProviders creates every configured provider chain from cfg using the
// factories in reg. Each backend is wrapped in a metered decorator, grouped
// with its fallbacks behind per-backend circuit breakers, and the group is
// wrapped in a retry decorator.
//
// An unset dictionary falls back to [DefaultDictionary]. Other unset kinds
// stay nil.
func BuildProviders(reg *config.Registry, cfg *config.Config, m *observe.Metrics) (*Providers, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	b := &chainBuilder{
		reg:     reg,
		metrics: m,
		retry:   retryConfig(cfg.Retry),
		fbCfg:   fallbackConfig(cfg.Retry.CircuitBreaker, m),
		out: &Providers{
			Breakers: make(map[string]func() []resilience.BreakerStatus),
			Names:    make(map[string][]string),
		},
	}
	p := cfg.Providers

	dictEntry := p.Dictionary
	if dictEntry.Name == "" {
		dictEntry = config.ProviderEntry{Name: DefaultDictionary}
	}
	if err := b.dictionary(dictEntry, p.DictionaryFallbacks); err != nil {
		b.out.Close()
		return nil, err
	}
	if p.STT.Name != "" {
		if err := b.stt(p.STT, p.STTFallbacks); err != nil {
			b.out.Close()
			return nil, err
		}
	}
	if p.LLM.Name != "" {
		if err := b.llm(p.LLM, p.LLMFallbacks); err != nil {
			b.out.Close()
			return nil, err
		}
	}
	if p.TTS.Name != "" {
		if err := b.tts(p.TTS, p.TTSFallbacks); err != nil {
			b.out.Close()
			return nil, err
		}
	}
	return b.out, nil
}

// createAll instantiates primary and fallbacks in order. Backends that
// implement io.Closer are registered for release.
func createAll[T any](b *chainBuilder, kind string, primary config.ProviderEntry, fallbacks []config.ProviderEntry, create func(config.ProviderEntry) (T, error)) ([]named[T], error) {
	entries := append([]config.ProviderEntry{primary}, fallbacks...)
	out := make([]named[T], 0, len(entries))
	seen := make(map[string]int, len(entries))
	for _, e := range entries {
		v, err := create(e)
		if err != nil {
			return nil, fmt.Errorf("app: create %s provider %q: %w", kind, e.Name, err)
		}
		if c, ok := any(v).(io.Closer); ok {
			b.out.closers = append(b.out.closers, c.Close)
		}
		// The same backend may appear twice with different settings; breaker
		// names must stay unique.
		name := e.Name
		if n := seen[e.Name]; n > 0 {
			name = fmt.Sprintf("%s#%d", e.Name, n+1)
		}
		seen[e.Name]++
		out = append(out, named[T]{name: name, value: v})
		b.out.Names[kind] = append(b.out.Names[kind], name)
	}
	slog.Info("provider chain ready", "kind", kind, "backends", b.out.Names[kind])
	return out, nil
}

func (b *chainBuilder) dictionary(primary config.ProviderEntry, fallbacks []config.ProviderEntry) error {
	all, err := createAll(b, observe.KindDictionary, primary, fallbacks, b.reg.CreateDictionary)
	if err != nil {
		return err
	}
	meter := func(n named[dictionary.Lookuper]) dictionary.Lookuper {
		return observe.NewMeteredLookuper(n.value, n.name, b.metrics)
	}
	fb := resilience.NewDictionaryFallback(meter(all[0]), all[0].name, b.fbCfg)
	for _, n := range all[1:] {
		fb.AddFallback(n.name, meter(n))
	}
	b.out.Breakers[observe.KindDictionary] = fb.Statuses
	b.out.Dictionary = resilience.NewRetryLookuper(fb, b.retry)
	return nil
}

func (b *chainBuilder) stt(primary config.ProviderEntry, fallbacks []config.ProviderEntry) error {
	all, err := createAll(b, observe.KindSTT, primary, fallbacks, b.reg.CreateSTT)
	if err != nil {
		return err
	}
	meter := func(n named[stt.Transcriber]) stt.Transcriber {
		return observe.NewMeteredTranscriber(n.value, n.name, b.metrics)
	}
	fb := resilience.NewSTTFallback(meter(all[0]), all[0].name, b.fbCfg)
	for _, n := range all[1:] {
		fb.AddFallback(n.name, meter(n))
	}
	b.out.Breakers[observe.KindSTT] = fb.Statuses
	b.out.STT = resilience.NewRetryTranscriber(fb, b.retry)
	return nil
}

func (b *chainBuilder) llm(primary config.ProviderEntry, fallbacks []config.ProviderEntry) error {
	all, err := createAll(b, observe.KindLLM, primary, fallbacks, b.reg.CreateLLM)
	if err != nil {
		return err
	}
	meter := func(n named[llm.Provider]) llm.Provider {
		return observe.NewMeteredProvider(n.value, n.name, b.metrics)
	}
	fb := resilience.NewLLMFallback(meter(all[0]), all[0].name, b.fbCfg)
	for _, n := range all[1:] {
		fb.AddFallback(n.name, meter(n))
	}
	b.out.Breakers[observe.KindLLM] = fb.Statuses
	b.out.LLM = resilience.NewRetryProvider(fb, b.retry)
	return nil
}

func (b *chainBuilder) tts(primary config.ProviderEntry, fallbacks []config.ProviderEntry) error {
	all, err := createAll(b, observe.KindTTS, primary, fallbacks, b.reg.CreateTTS)
	if err != nil {
		return err
	}
	meter := func(n named[tts.Synthesizer]) tts.Synthesizer {
		return observe.NewMeteredSynthesizer(n.value, n.name, b.metrics)
	}
	fb := resilience.NewTTSFallback(meter(all[0]), all[0].name, b.fbCfg)
	for _, n := range all[1:] {
		fb.AddFallback(n.name, meter(n))
	}
	b.out.Breakers[observe.KindTTS] = fb.Statuses
	b.out.TTS = resilience.NewRetrySynthesizer(fb, b.retry)
	return nil
}

func retryConfig(c config.RetryConfig) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    c.MaxAttempts,
		BaseDelay:      c.BaseDelay,
		MaxDelay:       c.MaxDelay,
		AttemptTimeout: c.AttemptTimeout,
	}
}

func fallbackConfig(c config.CircuitBreakerConfig, m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  c.MaxFailures,
			ResetTimeout: c.ResetTimeout,
			HalfOpenMax:  c.HalfOpenMax,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed", "backend", name, "from", from, "to", to)
				m.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
			},
		},
	}
}
