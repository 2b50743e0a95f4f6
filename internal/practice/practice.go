// Package practice runs the "repeat after me" loop: a recorded utterance is
// transcribed and scored against the phrase the learner was asked to say.
//
// The scorer can be swapped at runtime when the scoring section of the
// configuration is reloaded.
package practice

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/MrWong99/kotoba/internal/config"
	"github.com/MrWong99/kotoba/internal/observe"
	"github.com/MrWong99/kotoba/pkg/pronunciation"
	"github.com/MrWong99/kotoba/pkg/provider/stt"
)

// DefaultLanguage is the transcription hint used when a request names none.
const DefaultLanguage = "ja"

// Option configures a [Service].
type Option func(*Service)

// WithMetrics records scores on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLanguage sets the default transcription language hint.
func WithLanguage(lang string) Option {
	return func(s *Service) { s.language = lang }
}

// Service transcribes and scores practice attempts. It is safe for
// concurrent use.
type Service struct {
	transcriber stt.Transcriber
	scorer      atomic.Pointer[pronunciation.Scorer]
	metrics     *observe.Metrics
	language    string
}

// New creates a Service. transcriber may be nil, in which case every audio
// check scores an empty transcription.
func New(transcriber stt.Transcriber, scorer *pronunciation.Scorer, opts ...Option) *Service {
	s := &Service{
		transcriber: transcriber,
		language:    DefaultLanguage,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if scorer == nil {
		scorer = pronunciation.New()
	}
	s.scorer.Store(scorer)
	return s
}

// NewScorer builds a scorer from cfg. Zero fields keep the scorer defaults.
func NewScorer(cfg config.ScoringConfig) *pronunciation.Scorer {
	var opts []pronunciation.Option
	if cfg.Forgiveness != 0 {
		opts = append(opts, pronunciation.WithForgiveness(cfg.Forgiveness))
	}
	if cfg.LengthTolerance != 0 {
		opts = append(opts, pronunciation.WithLengthTolerance(cfg.LengthTolerance))
	}
	if len(cfg.Markers) > 0 {
		opts = append(opts, pronunciation.WithMarkers(cfg.Markers))
	}
	return pronunciation.New(opts...)
}

// SetScorer replaces the scorer used by subsequent calls.
func (s *Service) SetScorer(scorer *pronunciation.Scorer) {
	if scorer == nil {
		return
	}
	s.scorer.Store(scorer)
}

// Scorer returns the scorer currently in use.
func (s *Service) Scorer() *pronunciation.Scorer {
	return s.scorer.Load()
}

// HasTranscriber reports whether audio checks reach a transcription backend.
func (s *Service) HasTranscriber() bool {
	return s.transcriber != nil
}

// Score compares an already transcribed utterance with target.
func (s *Service) Score(ctx context.Context, target, heard string) pronunciation.Result {
	res := s.scorer.Load().Score(target, heard)
	s.metrics.RecordScore(ctx, res.Score, string(res.Tier))
	return res
}

// Check transcribes audio and scores it against target. An empty language
// uses the service default.
//
// A failed transcription is scored as silence. The only error returned is
// the context's, when ctx ends before scoring.
func (s *Service) Check(ctx context.Context, target string, audio stt.Audio, language string) (res pronunciation.Result, err error) {
	if language == "" {
		language = s.language
	}
	ctx, span := observe.StartTextSpan(ctx, "practice.check", target, observe.AttrLanguage.String(language))
	defer func() { observe.EndSpan(span, err) }()

	heard := s.transcribe(ctx, audio, language)
	if err := ctx.Err(); err != nil {
		return pronunciation.Result{}, fmt.Errorf("practice: check: %w", err)
	}
	res = s.Score(ctx, target, heard)
	span.SetAttributes(observe.AttrScore.Int(res.Score), observe.AttrTier.String(string(res.Tier)))
	return res, nil
}

func (s *Service) transcribe(ctx context.Context, audio stt.Audio, language string) string {
	if s.transcriber == nil || len(audio.Data) == 0 {
		return ""
	}
	text, err := s.transcriber.Transcribe(ctx, audio, language)
	if err != nil {
		observe.Logger(ctx).Warn("practice: transcription failed, scoring as silence",
			"mime", audio.MIMEType,
			"bytes", len(audio.Data),
			"err", err,
		)
		return ""
	}
	observe.Logger(ctx).Debug("practice: transcribed", "chars", len([]rune(text)))
	return text
}
