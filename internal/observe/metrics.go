// Package observe wires kotoba's telemetry: OpenTelemetry metrics exported
// to Prometheus, tracing, trace-aware logging, HTTP middleware, and metered
// decorators for every backend kind and the reading cache.
//
// Tests should build their own [Metrics] with [NewMetrics] over a private
// meter provider; [DefaultMetrics] uses the global one.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every kotoba instrument.
const meterName = "github.com/MrWong99/kotoba"

// Backend kinds, used as the "kind" attribute on provider metrics.
const (
	KindDictionary = "dictionary"
	KindSTT        = "stt"
	KindLLM        = "llm"
	KindTTS        = "tts"
)

// latencyBuckets (seconds) span a cached lookup up to a cold LLM reply.
var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// scoreBuckets split the 0-100 similarity range at the tier boundaries.
var scoreBuckets = []float64{0, 20, 40, 60, 70, 80, 90, 95, 100}

// durationInstruments names the latency histogram of each backend kind.
var durationInstruments = map[string]struct{ name, desc string }{
	KindDictionary: {"kotoba.lookup.duration", "Latency of dictionary reading lookups."},
	KindSTT:        {"kotoba.stt.duration", "Latency of speech-to-text transcription."},
	KindLLM:        {"kotoba.llm.duration", "Latency of tutor LLM inference."},
	KindTTS:        {"kotoba.tts.duration", "Latency of text-to-speech synthesis."},
}

// Metrics holds every kotoba instrument. Safe for concurrent use.
type Metrics struct {
	durations map[string]metric.Float64Histogram

	// ProviderRequests counts backend calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed backend calls by provider and kind.
	ProviderErrors metric.Int64Counter

	// LLMTokens counts tokens billed by LLM backends, by provider and
	// direction ("prompt" or "completion").
	LLMTokens metric.Int64Counter

	// CacheHits and CacheMisses count reading cache lookups by store.
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes.
	BreakerTransitions metric.Int64Counter

	// PronunciationScore records every score handed out, by tier.
	PronunciationScore metric.Int64Histogram

	// HTTPRequestDuration tracks request latency by method, matched route
	// and status code.
	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{durations: make(map[string]metric.Float64Histogram, len(durationInstruments))}
	var errs []error

	for kind, inst := range durationInstruments {
		h, err := m.Float64Histogram(inst.name,
			metric.WithDescription(inst.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		errs = append(errs, err)
		met.durations[kind] = h
	}

	counter := func(dst *metric.Int64Counter, name, desc string) {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		*dst = c
	}
	counter(&met.ProviderRequests, "kotoba.provider.requests", "Backend requests by provider, kind and status.")
	counter(&met.ProviderErrors, "kotoba.provider.errors", "Backend errors by provider and kind.")
	counter(&met.LLMTokens, "kotoba.llm.tokens", "Tokens consumed by LLM backends by provider and direction.")
	counter(&met.CacheHits, "kotoba.cache.hits", "Reading cache hits by store.")
	counter(&met.CacheMisses, "kotoba.cache.misses", "Reading cache misses by store.")
	counter(&met.BreakerTransitions, "kotoba.breaker.transitions", "Circuit breaker state changes by breaker.")

	var err error
	met.PronunciationScore, err = m.Int64Histogram("kotoba.pronunciation.score",
		metric.WithDescription("Distribution of pronunciation similarity scores."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	)
	errs = append(errs, err)

	met.HTTPRequestDuration, err = m.Float64Histogram("kotoba.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] built on
// [otel.GetMeterProvider]. It panics if the instruments cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic(err)
		}
	})
	return defaultMetrics
}

// Duration returns the latency histogram of a backend kind, or nil for an
// unknown kind.
func (m *Metrics) Duration(kind string) metric.Float64Histogram {
	return m.durations[kind]
}

// RecordProviderRequest counts one backend call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordProviderError counts one failed backend call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordTokens adds the prompt and completion tokens of one LLM reply.
func (m *Metrics) RecordTokens(ctx context.Context, provider string, prompt, completion int) {
	for dir, n := range map[string]int{"prompt": prompt, "completion": completion} {
		if n <= 0 {
			continue
		}
		m.LLMTokens.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("direction", dir),
		))
	}
}

// RecordCacheLookup counts a hit or a miss against the named store.
func (m *Metrics) RecordCacheLookup(ctx context.Context, store string, hit bool) {
	c := m.CacheMisses
	if hit {
		c = m.CacheHits
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("store", store)))
}

// RecordScore records a pronunciation score with its tier.
func (m *Metrics) RecordScore(ctx context.Context, score int, tier string) {
	m.PronunciationScore.Record(ctx, int64(score), metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordBreakerTransition counts a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, from, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
