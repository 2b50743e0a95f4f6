package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/kotoba/pkg/cache"
	"github.com/MrWong99/kotoba/pkg/provider/dictionary"
	"github.com/MrWong99/kotoba/pkg/provider/llm"
	"github.com/MrWong99/kotoba/pkg/provider/stt"
	"github.com/MrWong99/kotoba/pkg/provider/tts"
)

// observeCall opens a client span around a backend call and returns the
// function that records its outcome. The returned function must be called
// exactly once.
func (m *Metrics) observeCall(ctx context.Context, kind, provider string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := StartSpan(ctx, kind+"."+provider,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
	return ctx, func(err error) {
		defer span.End()
		m.Duration(kind).Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("provider", provider)),
		)
		status := "ok"
		if err != nil {
			status = "error"
			m.RecordProviderError(ctx, provider, kind)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		m.RecordProviderRequest(ctx, provider, kind, status)
	}
}

// MeteredLookuper records latency and outcome of every dictionary lookup.
type MeteredLookuper struct {
	next dictionary.Lookuper
	name string
	m    *Metrics
}

var _ dictionary.Lookuper = (*MeteredLookuper)(nil)

// NewMeteredLookuper wraps next. name is reported as the provider attribute.
func NewMeteredLookuper(next dictionary.Lookuper, name string, m *Metrics) *MeteredLookuper {
	return &MeteredLookuper{next: next, name: name, m: m}
}

// Lookup implements [dictionary.Lookuper].
func (l *MeteredLookuper) Lookup(ctx context.Context, word string) ([]dictionary.Candidate, error) {
	ctx, done := l.m.observeCall(ctx, KindDictionary, l.name)
	cands, err := l.next.Lookup(ctx, word)
	done(err)
	return cands, err
}

// MeteredTranscriber records latency and outcome of every transcription.
type MeteredTranscriber struct {
	next stt.Transcriber
	name string
	m    *Metrics
}

var _ stt.Transcriber = (*MeteredTranscriber)(nil)

// NewMeteredTranscriber wraps next.
func NewMeteredTranscriber(next stt.Transcriber, name string, m *Metrics) *MeteredTranscriber {
	return &MeteredTranscriber{next: next, name: name, m: m}
}

// Transcribe implements [stt.Transcriber].
func (t *MeteredTranscriber) Transcribe(ctx context.Context, audio stt.Audio, language string) (string, error) {
	ctx, done := t.m.observeCall(ctx, KindSTT, t.name)
	text, err := t.next.Transcribe(ctx, audio, language)
	done(err)
	return text, err
}

// MeteredProvider records latency, outcome and token usage of every
// completion.
type MeteredProvider struct {
	next llm.Provider
	name string
	m    *Metrics
}

var _ llm.Provider = (*MeteredProvider)(nil)

// NewMeteredProvider wraps next.
func NewMeteredProvider(next llm.Provider, name string, m *Metrics) *MeteredProvider {
	return &MeteredProvider{next: next, name: name, m: m}
}

// Complete implements [llm.Provider].
func (p *MeteredProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, done := p.m.observeCall(ctx, KindLLM, p.name)
	resp, err := p.next.Complete(ctx, req)
	done(err)
	if resp != nil {
		p.m.RecordTokens(ctx, p.name, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return resp, err
}

// CountTokens implements [llm.Provider].
func (p *MeteredProvider) CountTokens(messages []llm.Message) (int, error) {
	return p.next.CountTokens(messages)
}

// MeteredSynthesizer records latency and outcome of every synthesis.
type MeteredSynthesizer struct {
	next tts.Synthesizer
	name string
	m    *Metrics
}

var _ tts.Synthesizer = (*MeteredSynthesizer)(nil)

// NewMeteredSynthesizer wraps next.
func NewMeteredSynthesizer(next tts.Synthesizer, name string, m *Metrics) *MeteredSynthesizer {
	return &MeteredSynthesizer{next: next, name: name, m: m}
}

// Synthesize implements [tts.Synthesizer].
func (s *MeteredSynthesizer) Synthesize(ctx context.Context, text, voiceID string) (*tts.Speech, error) {
	ctx, done := s.m.observeCall(ctx, KindTTS, s.name)
	speech, err := s.next.Synthesize(ctx, text, voiceID)
	done(err)
	return speech, err
}

// ListVoices implements [tts.Synthesizer].
func (s *MeteredSynthesizer) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return s.next.ListVoices(ctx)
}

// MeteredStore counts hits and misses of a reading cache.
type MeteredStore struct {
	next cache.Store
	name string
	m    *Metrics
}

var _ cache.Store = (*MeteredStore)(nil)

// NewMeteredStore wraps next. name is reported as the store attribute.
func NewMeteredStore(next cache.Store, name string, m *Metrics) *MeteredStore {
	return &MeteredStore{next: next, name: name, m: m}
}

// Get implements [cache.Store]. Store failures are counted as neither hit
// nor miss.
func (s *MeteredStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.next.Get(ctx, key)
	if err == nil {
		s.m.RecordCacheLookup(ctx, s.name, ok)
	}
	return v, ok, err
}

// Put implements [cache.Store].
func (s *MeteredStore) Put(ctx context.Context, key, value string) error {
	return s.next.Put(ctx, key, value)
}

// Delete implements [cache.Store].
func (s *MeteredStore) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, key)
}

// Ping forwards to the wrapped store when it implements [cache.Pinger].
func (s *MeteredStore) Ping(ctx context.Context) error {
	if p, ok := s.next.(cache.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
