package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/kotoba/pkg/provider/stt"
)

// sttPermanent marks client-side transcription errors as permanent.
func sttPermanent(err error) error {
	if errors.Is(err, stt.ErrEmptyAudio) {
		return Permanent(err)
	}
	return err
}

// STTFallback implements [stt.Transcriber] with automatic failover across
// multiple STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT backend as a fallback.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Statuses reports the breaker of every backend in chain order.
func (f *STTFallback) Statuses() []BreakerStatus { return f.group.Statuses() }

// Transcribe sends the clip to the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, audio stt.Audio, language string) (string, error) {
	return ExecuteWithResult(f.group, func(t stt.Transcriber) (string, error) {
		text, err := t.Transcribe(ctx, audio, language)
		return text, sttPermanent(err)
	})
}

// RetryTranscriber retries failed transcriptions with exponential backoff.
type RetryTranscriber struct {
	next stt.Transcriber
	cfg  RetryConfig
}

var _ stt.Transcriber = (*RetryTranscriber)(nil)

// NewRetryTranscriber wraps next.
func NewRetryTranscriber(next stt.Transcriber, cfg RetryConfig) *RetryTranscriber {
	return &RetryTranscriber{next: next, cfg: cfg}
}

// Transcribe implements [stt.Transcriber].
func (r *RetryTranscriber) Transcribe(ctx context.Context, audio stt.Audio, language string) (string, error) {
	return Retry(ctx, r.cfg, "transcribe", func(ctx context.Context) (string, error) {
		text, err := r.next.Transcribe(ctx, audio, language)
		return text, sttPermanent(err)
	})
}
