// Package elevenlabs renders model recordings of practice phrases with the
// ElevenLabs stream-input WebSocket API.
//
// Each phrase gets its own session: an opening message carrying the API key
// and voice settings, the phrase itself, then an empty flush message. Audio
// chunks are gathered until the server marks the stream final.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/kotoba/pkg/provider/tts"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_multilingual_v2"
	defaultOutputFmt = "mp3_44100_128"
	defaultTimeout   = 30 * time.Second

	// readLimit bounds one inbound WebSocket message.
	readLimit = 8 << 20
)

// VoiceSettings tunes delivery. Lower stability gives a livelier read.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// DefaultVoiceSettings favour a clear, even read for shadowing.
var DefaultVoiceSettings = VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75}

// Option configures a [Synthesizer].
type Option func(*Synthesizer)

// WithModel sets the model ID. Defaults to "eleven_multilingual_v2".
func WithModel(model string) Option { return func(s *Synthesizer) { s.model = model } }

// WithOutputFormat sets the audio format, e.g. "mp3_44100_128" or "pcm_16000".
func WithOutputFormat(format string) Option { return func(s *Synthesizer) { s.format = format } }

// WithDefaultVoice sets the voice used when Synthesize gets none.
func WithDefaultVoice(voiceID string) Option { return func(s *Synthesizer) { s.voice = voiceID } }

// WithLanguage pins the language code sent to models that accept one.
func WithLanguage(code string) Option { return func(s *Synthesizer) { s.language = code } }

// WithVoiceSettings overrides [DefaultVoiceSettings].
func WithVoiceSettings(vs VoiceSettings) Option { return func(s *Synthesizer) { s.settings = vs } }

// WithBaseURL overrides the API origin. The WebSocket origin uses the same
// host with a ws or wss scheme.
func WithBaseURL(u string) Option {
	return func(s *Synthesizer) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the client used for REST calls.
func WithHTTPClient(c *http.Client) Option { return func(s *Synthesizer) { s.client = c } }

// Synthesizer is a [tts.Synthesizer] for ElevenLabs.
type Synthesizer struct {
	apiKey   string
	model    string
	format   string
	voice    string
	language string
	settings VoiceSettings
	baseURL  string
	client   *http.Client
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// New returns a Synthesizer authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	s := &Synthesizer{
		apiKey:   apiKey,
		model:    defaultModel,
		format:   defaultOutputFmt,
		settings: DefaultVoiceSettings,
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// outbound is every client message of a session. The opening message must
// carry a single space as its text.
type outbound struct {
	Text          string         `json:"text"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
	APIKey        string         `json:"xi_api_key,omitempty"`
	Flush         bool           `json:"flush,omitempty"`
}

type inbound struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Synthesize implements [tts.Synthesizer].
func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceID string) (*tts.Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	if voiceID == "" {
		voiceID = s.voice
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voice ID must not be empty")
	}

	endpoint, err := s.streamURL(voiceID)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	session := []outbound{
		{Text: " ", VoiceSettings: &s.settings, APIKey: s.apiKey},
		{Text: text + " ", Flush: true},
		{Text: ""},
	}
	for _, m := range session {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: encode message: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return nil, fmt.Errorf("elevenlabs: write: %w", err)
		}
	}

	audio, err := receive(ctx, conn)
	if err != nil {
		return nil, err
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	return &tts.Speech{Audio: audio, MIMEType: mimeForFormat(s.format)}, nil
}

// receive gathers audio chunks until the final marker. A normal close after
// some audio also ends the stream.
func receive(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var audio bytes.Buffer
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && audio.Len() > 0 {
				return audio.Bytes(), nil
			}
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var msg inbound
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.Error != "" {
			return nil, fmt.Errorf("elevenlabs: server error: %s", strings.TrimSpace(msg.Error+" "+msg.Message))
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			audio.Write(chunk)
		}
		if msg.IsFinal {
			break
		}
	}
	if audio.Len() == 0 {
		return nil, errors.New("elevenlabs: no audio received")
	}
	return audio.Bytes(), nil
}

func (s *Synthesizer) streamURL(voiceID string) (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: parse base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input"
	q := url.Values{}
	q.Set("model_id", s.model)
	q.Set("output_format", s.format)
	if s.language != "" {
		q.Set("language_code", s.language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// mimeForFormat maps an output format such as "mp3_44100_128" to a MIME type.
func mimeForFormat(format string) string {
	codec, _, _ := strings.Cut(format, "_")
	switch codec {
	case "mp3":
		return "audio/mpeg"
	case "pcm":
		return "audio/pcm"
	case "ulaw":
		return "audio/basic"
	case "opus":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// ListVoices implements [tts.Synthesizer].
func (s *Synthesizer) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Voices []struct {
			ID       string            `json:"voice_id"`
			Name     string            `json:"name"`
			Category string            `json:"category"`
			Labels   map[string]string `json:"labels"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: decode: %w", err)
	}

	voices := make([]tts.Voice, 0, len(body.Voices))
	for _, v := range body.Voices {
		meta := maps.Clone(v.Labels)
		if v.Category != "" {
			if meta == nil {
				meta = make(map[string]string, 1)
			}
			meta["category"] = v.Category
		}
		voices = append(voices, tts.Voice{ID: v.ID, Name: v.Name, Provider: "elevenlabs", Metadata: meta})
	}
	return voices, nil
}
