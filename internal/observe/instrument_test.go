package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/kotoba/pkg/cache/memory"
	"github.com/MrWong99/kotoba/pkg/provider/dictionary"
	dictmock "github.com/MrWong99/kotoba/pkg/provider/dictionary/mock"
	"github.com/MrWong99/kotoba/pkg/provider/llm"
	llmmock "github.com/MrWong99/kotoba/pkg/provider/llm/mock"
	"github.com/MrWong99/kotoba/pkg/provider/stt"
	sttmock "github.com/MrWong99/kotoba/pkg/provider/stt/mock"
	"github.com/MrWong99/kotoba/pkg/provider/tts"
	ttsmock "github.com/MrWong99/kotoba/pkg/provider/tts/mock"
)

// testSetup returns private metrics, their reader and an exporter holding the
// spans of the test. It swaps the global tracer, so callers must not run in
// parallel.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	m, reader := newTestMetrics(t)
	return m, reader, useTestTracer(t)
}

func TestMeteredLookuper_RecordsSuccess(t *testing.T) {
	m, reader, exp := testSetup(t)
	inner := &dictmock.Lookuper{Entries: map[string][]dictionary.Candidate{
		"学校": {{Headword: "学校", Reading: "がっこう"}},
	}}
	l := NewMeteredLookuper(inner, "jmdict", m)

	cands, err := l.Lookup(context.Background(), "学校")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(cands) != 1 || cands[0].Reading != "がっこう" {
		t.Fatalf("candidates = %v", cands)
	}

	rm := collect(t, reader)
	if got := sumFor(t, rm, "kotoba.provider.requests", "status", "ok"); got != 1 {
		t.Errorf("ok requests = %d, want 1", got)
	}
	met := findMetric(rm, "kotoba.lookup.duration")
	if met == nil {
		t.Fatal("lookup duration not recorded")
	}
	if hist := met.Data.(metricdata.Histogram[float64]); hist.DataPoints[0].Count != 1 {
		t.Errorf("duration samples = %d, want 1", hist.DataPoints[0].Count)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "dictionary.jmdict" {
		t.Fatalf("spans = %v, want one dictionary.jmdict span", spans)
	}
}

func TestMeteredTranscriber_RecordsError(t *testing.T) {
	m, reader, exp := testSetup(t)
	boom := errors.New("boom")
	tr := NewMeteredTranscriber(&sttmock.Transcriber{Err: boom}, "whisper", m)

	if _, err := tr.Transcribe(context.Background(), stt.Audio{Data: []byte{1}}, "ja"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	rm := collect(t, reader)
	if got := sumFor(t, rm, "kotoba.provider.errors", "kind", KindSTT); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
	if got := sumFor(t, rm, "kotoba.provider.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
	if spans := exp.GetSpans(); len(spans) != 1 || spans[0].Status.Code != codes.Error {
		t.Errorf("expected one errored span, got %v", spans)
	}
}

func TestMeteredProvider_ForwardsCalls(t *testing.T) {
	m, reader, _ := testSetup(t)
	inner := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "いいですね",
			Usage:   llm.Usage{PromptTokens: 30, CompletionTokens: 5, TotalTokens: 35},
		},
		TokenCount: 7,
	}
	p := NewMeteredProvider(inner, "openai", m)

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil || resp.Content != "いいですね" {
		t.Fatalf("Complete = %v, %v", resp, err)
	}
	if n, _ := p.CountTokens(nil); n != 7 {
		t.Errorf("CountTokens = %d, want 7", n)
	}
	rm := collect(t, reader)
	if findMetric(rm, "kotoba.llm.duration") == nil {
		t.Error("llm duration not recorded")
	}
	if got := sumFor(t, rm, "kotoba.llm.tokens", "direction", "prompt"); got != 30 {
		t.Errorf("prompt tokens = %d, want 30", got)
	}
}

func TestMeteredSynthesizer_ForwardsCalls(t *testing.T) {
	m, reader, _ := testSetup(t)
	inner := &ttsmock.Synthesizer{
		Speech: &tts.Speech{Audio: []byte{0xff}, MIMEType: "audio/mpeg"},
		Voices: []tts.Voice{{ID: "v1"}},
	}
	s := NewMeteredSynthesizer(inner, "elevenlabs", m)

	if _, err := s.Synthesize(context.Background(), "こんにちは", "v1"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	voices, err := s.ListVoices(context.Background())
	if err != nil || len(voices) != 1 {
		t.Fatalf("ListVoices = %v, %v", voices, err)
	}
	if findMetric(collect(t, reader), "kotoba.tts.duration") == nil {
		t.Error("tts duration not recorded")
	}
}

func TestMeteredStore_CountsHitsAndMisses(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	mem, err := memory.New(16)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	s := NewMeteredStore(mem, "memory", m)

	if _, ok, _ := s.Get(ctx, "学校"); ok {
		t.Fatal("unexpected hit on empty store")
	}
	if err := s.Put(ctx, "学校", "<ruby>学校<rt>がっこう</rt></ruby>"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "学校"); !ok {
		t.Fatal("expected hit after Put")
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping on non-pinger = %v, want nil", err)
	}

	rm := collect(t, reader)
	if got := sumFor(t, rm, "kotoba.cache.hits", "store", "memory"); got != 1 {
		t.Errorf("hits = %d, want 1", got)
	}
	if got := sumFor(t, rm, "kotoba.cache.misses", "store", "memory"); got != 1 {
		t.Errorf("misses = %d, want 1", got)
	}
}
