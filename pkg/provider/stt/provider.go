// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// A learner records one utterance of a target phrase; the whole clip is sent
// to the backend in a single batch request and the recognized text comes
// back. Implementations wrap a local whisper.cpp server or a hosted API.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyAudio is returned when a Transcriber is given no audio bytes.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Common MIME types accepted by the transcribers.
const (
	MIMEPCM  = "audio/pcm"
	MIMEWAV  = "audio/wav"
	MIMEWebM = "audio/webm"
	MIMEOgg  = "audio/ogg"
	MIMEMP3  = "audio/mpeg"
	MIMEMP4  = "audio/mp4"
)

// Audio is a single recorded utterance.
type Audio struct {
	// Data holds the encoded clip, or raw 16-bit signed little-endian samples
	// when MIMEType is [MIMEPCM].
	Data []byte

	// MIMEType describes Data. An empty value is treated as WAV.
	MIMEType string

	// SampleRate and Channels describe raw PCM data. They are ignored for
	// container formats, which carry their own header.
	SampleRate int
	Channels   int
}

// IsPCM reports whether Data is headerless PCM.
func (a Audio) IsPCM() bool {
	switch baseMIME(a.MIMEType) {
	case MIMEPCM, "audio/l16", "audio/x-raw":
		return true
	}
	return false
}

// Filename returns a file name whose extension matches the audio container,
// as expected by multipart upload endpoints.
func (a Audio) Filename() string {
	switch baseMIME(a.MIMEType) {
	case MIMEWebM:
		return "audio.webm"
	case MIMEOgg:
		return "audio.ogg"
	case MIMEMP3:
		return "audio.mp3"
	case MIMEMP4, "audio/m4a", "audio/x-m4a":
		return "audio.m4a"
	default:
		return "audio.wav"
	}
}

func baseMIME(m string) string {
	m, _, _ = strings.Cut(m, ";")
	return strings.ToLower(strings.TrimSpace(m))
}

// Transcriber turns a recorded utterance into text.
type Transcriber interface {
	// Transcribe returns the recognized text for audio. language is an
	// ISO-639-1 hint such as "ja"; empty lets the backend auto-detect.
	//
	// Returns ErrEmptyAudio when audio carries no data.
	Transcribe(ctx context.Context, audio Audio, language string) (string, error)
}
