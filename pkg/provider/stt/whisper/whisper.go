// Package whisper transcribes learner recordings with a local whisper.cpp
// server (the whisper-server binary and its POST /inference endpoint).
//
// Raw PCM clips are wrapped in WAV before upload; container formats are sent
// as they are.
//
//	t, err := whisper.New("http://localhost:8080", whisper.WithLanguage("ja"))
//	text, err := t.Transcribe(ctx, stt.Audio{Data: wav, MIMEType: stt.MIMEWAV}, "")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/kotoba/pkg/provider/stt"
)

const (
	defaultLanguage = "ja"
	defaultTimeout  = 30 * time.Second

	// maxErrorBody caps how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

var _ stt.Transcriber = (*Transcriber)(nil)

// Option configures a [Transcriber].
type Option func(*Transcriber)

// WithModel names the model the server should use. Empty keeps the model
// the server was started with.
func WithModel(model string) Option { return func(t *Transcriber) { t.model = model } }

// WithLanguage sets the hint used when Transcribe gets none. Defaults to "ja".
func WithLanguage(lang string) Option { return func(t *Transcriber) { t.language = lang } }

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(t *Transcriber) { t.client = c } }

// Transcriber is an [stt.Transcriber] for whisper.cpp.
type Transcriber struct {
	endpoint string
	model    string
	language string
	client   *http.Client
}

// New returns a Transcriber for the server at baseURL, for example
// "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Transcriber, error) {
	if baseURL == "" {
		return nil, errors.New("whisper: server URL must not be empty")
	}
	t := &Transcriber{
		endpoint: strings.TrimRight(baseURL, "/") + "/inference",
		language: defaultLanguage,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe implements [stt.Transcriber].
func (t *Transcriber) Transcribe(ctx context.Context, audio stt.Audio, language string) (string, error) {
	if len(audio.Data) == 0 {
		return "", stt.ErrEmptyAudio
	}
	if language == "" {
		language = t.language
	}

	body, contentType, err := t.form(audio.ToWAV(), language)
	if err != nil {
		return "", fmt.Errorf("whisper: build upload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("whisper: %s", result.Error)
	}
	return strings.TrimSpace(result.Text), nil
}

// form encodes the multipart upload for one clip.
func (t *Transcriber) form(audio stt.Audio, language string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", audio.Filename())
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(audio.Data); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"language", language},
		{"model", t.model},
		{"response_format", "json"},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
