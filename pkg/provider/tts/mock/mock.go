// Package mock provides a test double for the tts.Synthesizer interface.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/kotoba/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text    string
	VoiceID string
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Speech is returned by Synthesize when SynthesizeErr is nil.
	Speech *tts.Speech

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// Voices is returned by ListVoices.
	Voices []tts.Voice

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every call to Synthesize.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns Speech, SynthesizeErr.
func (m *Synthesizer) Synthesize(_ context.Context, text, voiceID string) (*tts.Speech, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SynthesizeCalls = append(m.SynthesizeCalls, SynthesizeCall{Text: text, VoiceID: voiceID})
	if m.SynthesizeErr != nil {
		return nil, m.SynthesizeErr
	}
	return m.Speech, nil
}

// ListVoices returns Voices, ListVoicesErr.
func (m *Synthesizer) ListVoices(_ context.Context) ([]tts.Voice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Voices, m.ListVoicesErr
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (m *Synthesizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SynthesizeCalls)
}

// Calls returns a copy of the recorded Synthesize calls. Thread-safe.
func (m *Synthesizer) Calls() []SynthesizeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.SynthesizeCalls)
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
