package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/kotoba/pkg/provider/tts"
)

// newStreamServer serves the stream-input WebSocket endpoint. It records the
// text messages it receives and replies with the given audio frames.
func newStreamServer(t *testing.T, frames [][]byte, serverErr string) (*httptest.Server, <-chan []map[string]any) {
	t.Helper()
	received := make(chan []map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/text-to-speech/") {
			http.NotFound(w, r)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()

		var msgs []map[string]any
		for len(msgs) < 3 {
			_, data, err := c.Read(ctx)
			if err != nil {
				t.Errorf("server read: %v", err)
				return
			}
			var m map[string]any
			_ = json.Unmarshal(data, &m)
			msgs = append(msgs, m)
		}
		received <- msgs

		if serverErr != "" {
			b, _ := json.Marshal(map[string]any{"error": serverErr})
			_ = c.Write(ctx, websocket.MessageText, b)
			return
		}
		for _, f := range frames {
			b, _ := json.Marshal(map[string]any{"audio": base64.StdEncoding.EncodeToString(f), "isFinal": false})
			_ = c.Write(ctx, websocket.MessageText, b)
		}
		b, _ := json.Marshal(map[string]any{"audio": "", "isFinal": true})
		_ = c.Write(ctx, websocket.MessageText, b)
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func TestSynthesize_CollectsAudio(t *testing.T) {
	t.Parallel()
	srv, received := newStreamServer(t, [][]byte{[]byte("ID3"), []byte("-frame")}, "")

	s, err := New("xi-test", WithBaseURL(srv.URL), WithDefaultVoice("voice-1"),
		WithVoiceSettings(VoiceSettings{Stability: 0.3, SimilarityBoost: 0.9}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	speech, err := s.Synthesize(context.Background(), "がっこうへいきます", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(speech.Audio) != "ID3-frame" {
		t.Errorf("audio = %q, want concatenated frames", speech.Audio)
	}
	if speech.MIMEType != "audio/mpeg" {
		t.Errorf("MIMEType = %q, want audio/mpeg", speech.MIMEType)
	}

	msgs := <-received
	if msgs[0]["xi_api_key"] != "xi-test" {
		t.Errorf("BOI xi_api_key = %v", msgs[0]["xi_api_key"])
	}
	if got, _ := msgs[1]["text"].(string); strings.TrimSpace(got) != "がっこうへいきます" {
		t.Errorf("text message = %q", got)
	}
	vs, _ := msgs[0]["voice_settings"].(map[string]any)
	if vs["stability"] != 0.3 || vs["similarity_boost"] != 0.9 {
		t.Errorf("voice_settings = %v", msgs[0]["voice_settings"])
	}
	if msgs[1]["flush"] != true {
		t.Errorf("phrase message should request a flush: %v", msgs[1])
	}
	if msgs[2]["text"] != "" {
		t.Errorf("flush message text = %v, want empty", msgs[2]["text"])
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()
	srv, _ := newStreamServer(t, nil, "quota exceeded")

	s, _ := New("xi-test", WithBaseURL(srv.URL))
	if _, err := s.Synthesize(context.Background(), "ねこ", "voice-1"); err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err = %v, want server error", err)
	}
}

func TestSynthesize_Validation(t *testing.T) {
	t.Parallel()
	s, _ := New("xi-test")
	if _, err := s.Synthesize(context.Background(), "  ", "voice-1"); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("err = %v, want ErrEmptyText", err)
	}
	if _, err := s.Synthesize(context.Background(), "ねこ", ""); err == nil {
		t.Error("expected error when no voice is configured")
	}
}

func TestStreamURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base string
		opts []Option
		want string
	}{
		{"https://api.elevenlabs.io", nil, "wss://api.elevenlabs.io/v1/text-to-speech/voice-abc/stream-input?model_id=m&output_format=pcm_16000"},
		{"http://127.0.0.1:9000/", nil, "ws://127.0.0.1:9000/v1/text-to-speech/voice-abc/stream-input?model_id=m&output_format=pcm_16000"},
		{"https://api.elevenlabs.io", []Option{WithLanguage("ja")}, "wss://api.elevenlabs.io/v1/text-to-speech/voice-abc/stream-input?language_code=ja&model_id=m&output_format=pcm_16000"},
	}
	for _, tc := range tests {
		opts := append([]Option{WithBaseURL(tc.base), WithModel("m"), WithOutputFormat("pcm_16000")}, tc.opts...)
		s, _ := New("k", opts...)
		got, err := s.streamURL("voice-abc")
		if err != nil {
			t.Fatalf("streamURL: %v", err)
		}
		if got != tc.want {
			t.Errorf("streamURL(%q) =\n %s\nwant\n %s", tc.base, got, tc.want)
		}
	}
}

func TestMimeForFormat(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"mp3_44100_128": "audio/mpeg",
		"pcm_16000":     "audio/pcm",
		"ulaw_8000":     "audio/basic",
		"opus_48000_64": "audio/ogg",
		"weird":         "application/octet-stream",
	}
	for in, want := range tests {
		if got := mimeForFormat(in); got != want {
			t.Errorf("mimeForFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("xi-api-key") != "xi-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"voices":[
			{"voice_id":"v1","name":"Hana","category":"premade","labels":{"accent":"japanese"}},
			{"voice_id":"v2","name":"Ken"}
		]}`))
	}))
	defer srv.Close()

	s, _ := New("xi-test", WithBaseURL(srv.URL))
	voices, err := s.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("voices = %d, want 2", len(voices))
	}
	if voices[0].ID != "v1" || voices[0].Provider != "elevenlabs" {
		t.Errorf("voices[0] = %+v", voices[0])
	}
	if voices[0].Metadata["category"] != "premade" || voices[0].Metadata["accent"] != "japanese" {
		t.Errorf("metadata = %v", voices[0].Metadata)
	}
	if len(voices[1].Metadata) != 0 {
		t.Errorf("voices[1] metadata = %v, want empty", voices[1].Metadata)
	}
}

func TestListVoices_Unauthorized(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s, _ := New("bad", WithBaseURL(srv.URL))
	if _, err := s.ListVoices(context.Background()); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	s, err := New("k")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.model != defaultModel || s.format != defaultOutputFmt || s.baseURL != defaultBaseURL || s.settings != DefaultVoiceSettings {
		t.Errorf("defaults = %q %q %q %+v", s.model, s.format, s.baseURL, s.settings)
	}
}
