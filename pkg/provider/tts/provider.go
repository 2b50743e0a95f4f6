// Package tts defines the Synthesizer interface for Text-to-Speech backends.
//
// The practice loop plays a model recording of each target phrase before the
// learner repeats it. A Synthesizer renders one complete phrase into a
// playable clip.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when Synthesize is given nothing to say.
var ErrEmptyText = errors.New("tts: empty text")

// Voice describes a voice offered by a backend.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Provider identifies which backend this voice belongs to.
	Provider string `json:"provider"`

	// Metadata holds provider-specific voice attributes (gender, accent, ...).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Speech is a synthesized clip.
type Speech struct {
	// Audio is the encoded clip.
	Audio []byte

	// MIMEType describes Audio, e.g. "audio/mpeg" or "audio/pcm".
	MIMEType string
}

// Synthesizer is the abstraction over any TTS backend.
type Synthesizer interface {
	// Synthesize renders text with the voice identified by voiceID. An empty
	// voiceID selects the backend's configured default.
	Synthesize(ctx context.Context, text, voiceID string) (*Speech, error)

	// ListVoices returns the voices available from this backend.
	ListVoices(ctx context.Context) ([]Voice, error)
}
