package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/kotoba/pkg/provider/tts"
)

func ttsPermanent(err error) error {
	if errors.Is(err, tts.ErrEmptyText) {
		return Permanent(err)
	}
	return err
}

// TTSFallback implements [tts.Synthesizer] with automatic failover across
// multiple TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Synthesizer]
}

var _ tts.Synthesizer = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Synthesizer, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional TTS backend as a fallback.
func (f *TTSFallback) AddFallback(name string, s tts.Synthesizer) {
	f.group.AddFallback(name, s)
}

// Statuses reports the breaker of every backend in chain order.
func (f *TTSFallback) Statuses() []BreakerStatus { return f.group.Statuses() }

// Synthesize renders text with the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text, voiceID string) (*tts.Speech, error) {
	return ExecuteWithResult(f.group, func(s tts.Synthesizer) (*tts.Speech, error) {
		sp, err := s.Synthesize(ctx, text, voiceID)
		return sp, ttsPermanent(err)
	})
}

// ListVoices returns available voices from the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return ExecuteWithResult(f.group, func(s tts.Synthesizer) ([]tts.Voice, error) {
		return s.ListVoices(ctx)
	})
}

// RetrySynthesizer retries failed synthesis with exponential backoff.
type RetrySynthesizer struct {
	next tts.Synthesizer
	cfg  RetryConfig
}

var _ tts.Synthesizer = (*RetrySynthesizer)(nil)

// NewRetrySynthesizer wraps next.
func NewRetrySynthesizer(next tts.Synthesizer, cfg RetryConfig) *RetrySynthesizer {
	return &RetrySynthesizer{next: next, cfg: cfg}
}

// Synthesize implements [tts.Synthesizer].
func (r *RetrySynthesizer) Synthesize(ctx context.Context, text, voiceID string) (*tts.Speech, error) {
	return Retry(ctx, r.cfg, "synthesize", func(ctx context.Context) (*tts.Speech, error) {
		sp, err := r.next.Synthesize(ctx, text, voiceID)
		return sp, ttsPermanent(err)
	})
}

// ListVoices implements [tts.Synthesizer].
func (r *RetrySynthesizer) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return Retry(ctx, r.cfg, "list voices", r.next.ListVoices)
}
