// Package openai provides a Transcriber backed by the OpenAI audio
// transcription API (Whisper and the gpt-4o transcribe models).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/kotoba/pkg/provider/stt"
)

const defaultModel = oai.AudioModelWhisper1

var _ stt.Transcriber = (*Transcriber)(nil)

type settings struct {
	baseURL    string
	model      string
	timeout    time.Duration
	maxRetries int
}

// Option configures a [Transcriber].
type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option { return func(s *settings) { s.baseURL = url } }

// WithModel selects the transcription model. Defaults to "whisper-1".
func WithModel(model string) Option { return func(s *settings) { s.model = model } }

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option { return func(s *settings) { s.timeout = d } }

// WithMaxRetries sets the SDK's own retry count. Negative keeps the SDK
// default.
func WithMaxRetries(n int) Option { return func(s *settings) { s.maxRetries = n } }

// Transcriber is an [stt.Transcriber] for the OpenAI audio API.
type Transcriber struct {
	client oai.Client
	model  string
}

// New returns a Transcriber authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	s := settings{model: string(defaultModel), maxRetries: -1}
	for _, o := range opts {
		o(&s)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.baseURL))
	}
	if s.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}
	if s.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(s.maxRetries))
	}
	return &Transcriber{client: oai.NewClient(reqOpts...), model: s.model}, nil
}

// Transcribe implements [stt.Transcriber]. Raw PCM is uploaded as WAV.
func (t *Transcriber) Transcribe(ctx context.Context, audio stt.Audio, language string) (string, error) {
	if len(audio.Data) == 0 {
		return "", stt.ErrEmptyAudio
	}
	audio = audio.ToWAV()
	contentType := audio.MIMEType
	if contentType == "" {
		contentType = stt.MIMEWAV
	}
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(audio.Data), audio.Filename(), contentType),
		Model: oai.AudioModel(t.model),
	}
	if language != "" {
		params.Language = oai.String(language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
