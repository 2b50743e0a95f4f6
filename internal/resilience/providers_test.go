package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/kotoba/pkg/provider/dictionary"
	dictmock "github.com/MrWong99/kotoba/pkg/provider/dictionary/mock"
	"github.com/MrWong99/kotoba/pkg/provider/llm"
	llmmock "github.com/MrWong99/kotoba/pkg/provider/llm/mock"
	"github.com/MrWong99/kotoba/pkg/provider/stt"
	sttmock "github.com/MrWong99/kotoba/pkg/provider/stt/mock"
	"github.com/MrWong99/kotoba/pkg/provider/tts"
	ttsmock "github.com/MrWong99/kotoba/pkg/provider/tts/mock"
)

var cbCfg = FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour}}

// ── dictionary ───────────────────────────────────────────────────────────────

func TestDictionaryFallback_EmptyMovesOn(t *testing.T) {
	t.Parallel()
	offline := &dictmock.Lookuper{}
	online := &dictmock.Lookuper{Entries: map[string][]dictionary.Candidate{
		"勉強": {{Headword: "勉強", Reading: "べんきょう"}},
	}}

	fb := NewDictionaryFallback(offline, "jmdict", cbCfg)
	fb.AddFallback("jisho", online)

	got, err := fb.Lookup(context.Background(), "勉強")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Reading != "べんきょう" {
		t.Fatalf("got %v, want べんきょう", got)
	}
	if offline.CallCount() != 1 || online.CallCount() != 1 {
		t.Fatalf("calls offline=%d online=%d, want 1 each", offline.CallCount(), online.CallCount())
	}
}

func TestDictionaryFallback_FirstHitWins(t *testing.T) {
	t.Parallel()
	primary := &dictmock.Lookuper{Entries: map[string][]dictionary.Candidate{
		"猫": {{Headword: "猫", Reading: "ねこ"}},
	}}
	secondary := &dictmock.Lookuper{}

	fb := NewDictionaryFallback(primary, "primary", cbCfg)
	fb.AddFallback("secondary", secondary)

	if _, err := fb.Lookup(context.Background(), "猫"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestDictionaryFallback_UnknownEverywhere(t *testing.T) {
	t.Parallel()
	fb := NewDictionaryFallback(&dictmock.Lookuper{}, "a", cbCfg)
	fb.AddFallback("b", &dictmock.Lookuper{})

	got, err := fb.Lookup(context.Background(), "鬱")
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v; want nil, nil", got, err)
	}
}

func TestDictionaryFallback_FailureSurfacesWhenNothingFound(t *testing.T) {
	t.Parallel()
	fb := NewDictionaryFallback(&dictmock.Lookuper{}, "offline", cbCfg)
	fb.AddFallback("jisho", &dictmock.Lookuper{Err: dictionary.ErrRateLimited})

	_, err := fb.Lookup(context.Background(), "鬱")
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, dictionary.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping ErrRateLimited", err)
	}
}

func TestDictionaryFallback_Statuses(t *testing.T) {
	t.Parallel()
	fb := NewDictionaryFallback(&dictmock.Lookuper{}, "jmdict", cbCfg)
	fb.AddFallback("jisho", &dictmock.Lookuper{})
	s := fb.Statuses()
	if len(s) != 2 || s[0].Name != "jmdict" || s[1].Name != "jisho" || s[1].State != StateClosed {
		t.Fatalf("Statuses = %+v", s)
	}
}

// flakyLookuper fails the first n calls.
type flakyLookuper struct {
	fails int
	calls int
	err   error
}

func (f *flakyLookuper) Lookup(context.Context, string) ([]dictionary.Candidate, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, f.err
	}
	return []dictionary.Candidate{{Headword: "日本", Reading: "にほん"}}, nil
}

func TestRetryLookuper_RetriesRateLimit(t *testing.T) {
	t.Parallel()
	inner := &flakyLookuper{fails: 2, err: fmt.Errorf("jisho: %w", dictionary.ErrRateLimited)}
	r := NewRetryLookuper(inner, fastRetry(3))

	got, err := r.Lookup(context.Background(), "日本")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || inner.calls != 3 {
		t.Fatalf("got %v after %d calls", got, inner.calls)
	}
}

func TestRetryLookuper_GivesUp(t *testing.T) {
	t.Parallel()
	inner := &flakyLookuper{fails: 10, err: errTest}
	r := NewRetryLookuper(inner, fastRetry(3))

	if _, err := r.Lookup(context.Background(), "日本"); !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want errTest", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
}

// ── stt ──────────────────────────────────────────────────────────────────────

func TestSTTFallback_Failover(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Transcriber{Err: errors.New("whisper down")}
	secondary := &sttmock.Transcriber{Text: "ねこです"}

	fb := NewSTTFallback(primary, "whisper", cbCfg)
	fb.AddFallback("openai", secondary)

	text, err := fb.Transcribe(context.Background(), stt.Audio{Data: []byte{1}}, "ja")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ねこです" {
		t.Fatalf("text = %q, want ねこです", text)
	}
	if got := secondary.Recorded()[0].Language; got != "ja" {
		t.Fatalf("language = %q, want ja", got)
	}
}

func TestSTTFallback_EmptyAudioIsPermanent(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Transcriber{Err: stt.ErrEmptyAudio}
	secondary := &sttmock.Transcriber{Text: "x"}

	fb := NewSTTFallback(primary, "whisper", cbCfg)
	fb.AddFallback("openai", secondary)

	_, err := fb.Transcribe(context.Background(), stt.Audio{}, "ja")
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
	if secondary.CallCount() != 0 {
		t.Fatal("empty audio must not fail over")
	}
}

func TestRetryTranscriber(t *testing.T) {
	t.Parallel()
	inner := &sttmock.Transcriber{Err: stt.ErrEmptyAudio}
	r := NewRetryTranscriber(inner, fastRetry(3))
	if _, err := r.Transcribe(context.Background(), stt.Audio{}, "ja"); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v", err)
	}
	if inner.CallCount() != 1 {
		t.Fatalf("calls = %d, want 1 (permanent)", inner.CallCount())
	}

	inner = &sttmock.Transcriber{Err: errTest}
	r = NewRetryTranscriber(inner, fastRetry(2))
	_, _ = r.Transcribe(context.Background(), stt.Audio{Data: []byte{1}}, "ja")
	if inner.CallCount() != 2 {
		t.Fatalf("calls = %d, want 2", inner.CallCount())
	}
}

// ── llm ──────────────────────────────────────────────────────────────────────

func TestLLMFallback_Complete_Failover(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "はい、そうです。"},
	}

	fb := NewLLMFallback(primary, "openai", cbCfg)
	fb.AddFallback("ollama", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "はい、そうです。" {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestLLMFallback_Complete_AllFail(t *testing.T) {
	t.Parallel()
	fb := NewLLMFallback(&llmmock.Provider{CompleteErr: errTest}, "a", cbCfg)
	fb.AddFallback("b", &llmmock.Provider{CompleteErr: errTest})

	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLM_RejectedIsPermanent(t *testing.T) {
	t.Parallel()
	rejected := fmt.Errorf("openai: context length exceeded: %w", llm.ErrRejected)
	primary := &llmmock.Provider{CompleteErr: rejected}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "はい"}}

	fb := NewLLMFallback(primary, "openai", cbCfg)
	fb.AddFallback("ollama", secondary)
	r := NewRetryProvider(fb, fastRetry(3))

	if _, err := r.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, llm.ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 0 {
		t.Fatalf("calls primary/secondary = %d/%d, want 1/0", len(primary.Calls()), len(secondary.Calls()))
	}
	if st := fb.Statuses(); st[0].Failures != 0 {
		t.Errorf("rejection counted against the breaker: %+v", st[0])
	}
}

func TestLLMFallback_CountTokensUsesPrimary(t *testing.T) {
	t.Parallel()
	fb := NewLLMFallback(&llmmock.Provider{TokenCount: 42}, "a", cbCfg)
	fb.AddFallback("b", &llmmock.Provider{TokenCount: 7})

	n, err := fb.CountTokens([]llm.Message{{Role: llm.RoleUser, Content: "test"}})
	if err != nil || n != 42 {
		t.Fatalf("CountTokens = %d, %v; want 42", n, err)
	}
}

func TestRetryProvider(t *testing.T) {
	t.Parallel()
	inner := &llmmock.Provider{CompleteErr: errTest, TokenCount: 9}
	r := NewRetryProvider(inner, fastRetry(3))

	if _, err := r.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, errTest) {
		t.Fatalf("err = %v", err)
	}
	if len(inner.Calls()) != 3 {
		t.Fatalf("calls = %d, want 3", len(inner.Calls()))
	}
	if n, _ := r.CountTokens(nil); n != 9 {
		t.Fatalf("CountTokens = %d, want 9", n)
	}
}

// ── tts ──────────────────────────────────────────────────────────────────────

func TestTTSFallback_Synthesize(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Synthesizer{SynthesizeErr: errTest}
	secondary := &ttsmock.Synthesizer{Speech: &tts.Speech{Audio: []byte("ID3"), MIMEType: "audio/mpeg"}}

	fb := NewTTSFallback(primary, "elevenlabs", cbCfg)
	fb.AddFallback("backup", secondary)

	sp, err := fb.Synthesize(context.Background(), "ねこ", "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(sp.Audio) != "ID3" {
		t.Fatalf("audio = %q", sp.Audio)
	}
	if secondary.SynthesizeCalls[0].VoiceID != "v1" {
		t.Fatalf("voice = %q", secondary.SynthesizeCalls[0].VoiceID)
	}
}

func TestTTSFallback_EmptyTextIsPermanent(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Synthesizer{SynthesizeErr: tts.ErrEmptyText}
	secondary := &ttsmock.Synthesizer{}

	fb := NewTTSFallback(primary, "a", cbCfg)
	fb.AddFallback("b", secondary)

	if _, err := fb.Synthesize(context.Background(), "", ""); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v", err)
	}
	if secondary.CallCount() != 0 {
		t.Fatal("empty text must not fail over")
	}
}

func TestRetrySynthesizer_ListVoices(t *testing.T) {
	t.Parallel()
	inner := &ttsmock.Synthesizer{Voices: []tts.Voice{{ID: "v1"}}}
	r := NewRetrySynthesizer(inner, fastRetry(2))

	voices, err := r.ListVoices(context.Background())
	if err != nil || len(voices) != 1 {
		t.Fatalf("ListVoices = %v, %v", voices, err)
	}
	fb := NewTTSFallback(r, "a", cbCfg)
	if voices, err := fb.ListVoices(context.Background()); err != nil || voices[0].ID != "v1" {
		t.Fatalf("fallback ListVoices = %v, %v", voices, err)
	}
}
