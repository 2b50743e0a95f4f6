// Package api exposes the practice features over a small JSON HTTP API.
//
// Routes:
//
//	POST /api/furigana              {"text"}                  -> {"html","romaji"}
//	POST /api/furigana/batch        {"items":[VocabItem]}     -> {"items":[AnnotatedItem]}
//	POST /api/romaji                {"text"}                  -> {"romaji"}
//	POST /api/pronunciation/score   {"target","heard"}        -> pronunciation.Result
//	POST /api/pronunciation/check   multipart audio,target    -> pronunciation.Result
//	POST /api/conversation          {"history","message"}     -> conversation.Reply
//	POST /api/tts                   {"text","voice_id"}       -> audio bytes
//	GET  /api/tts/voices                                      -> [tts.Voice]
//
// Errors are JSON objects of the form {"error": "..."}.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/kotoba/internal/conversation"
	"github.com/MrWong99/kotoba/internal/observe"
	"github.com/MrWong99/kotoba/internal/practice"
	"github.com/MrWong99/kotoba/pkg/provider/stt"
	"github.com/MrWong99/kotoba/pkg/provider/tts"
)

// DefaultMaxUploadBytes caps recorded audio when [Deps.MaxUploadBytes] is
// zero.
const DefaultMaxUploadBytes int64 = 10 << 20

// maxJSONBytes caps every JSON request body.
const maxJSONBytes int64 = 1 << 20

// Annotator adds furigana to text.
type Annotator interface {
	Annotate(ctx context.Context, text string) (string, error)
	AnnotateAll(ctx context.Context, texts []string) ([]string, error)
}

// Romanizer converts Japanese text, possibly carrying ruby markup, to romaji.
type Romanizer interface {
	Romanize(text string) string
}

// Deps are the collaborators the server dispatches to. Partner and
// Synthesizer are optional; their routes answer 503 when unset.
type Deps struct {
	Annotator      Annotator
	Romanizer      Romanizer
	Practice       *practice.Service
	Partner        *conversation.Partner
	Synthesizer    tts.Synthesizer
	DefaultVoice   string
	MaxUploadBytes int64
}

// Server serves the practice API.
type Server struct {
	deps Deps
}

// New creates a Server. Annotator, Romanizer and Practice must be set.
func New(deps Deps) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{deps: deps}
}

// Register installs the API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/furigana", s.handleFurigana)
	mux.HandleFunc("POST /api/furigana/batch", s.handleFuriganaBatch)
	mux.HandleFunc("POST /api/romaji", s.handleRomaji)
	mux.HandleFunc("POST /api/pronunciation/score", s.handleScore)
	mux.HandleFunc("POST /api/pronunciation/check", s.handleCheck)
	mux.HandleFunc("POST /api/conversation", s.handleConversation)
	mux.HandleFunc("POST /api/tts", s.handleTTS)
	mux.HandleFunc("GET /api/tts/voices", s.handleVoices)
}

// VocabItem is a lesson vocabulary entry or grammar example.
type VocabItem struct {
	JP      string `json:"jp"`
	Reading string `json:"reading,omitempty"`
	EN      string `json:"en,omitempty"`
}

// AnnotatedItem is a [VocabItem] with its rendered furigana and romaji.
type AnnotatedItem struct {
	VocabItem
	HTML   string `json:"furigana"`
	Romaji string `json:"romaji"`
}

type textRequest struct {
	Text string `json:"text"`
}

type furiganaResponse struct {
	HTML   string `json:"html"`
	Romaji string `json:"romaji"`
}

type batchRequest struct {
	Items []VocabItem `json:"items"`
}

type batchResponse struct {
	Items []AnnotatedItem `json:"items"`
}

type romajiResponse struct {
	Romaji string `json:"romaji"`
}

type scoreRequest struct {
	Target string `json:"target"`
	Heard  string `json:"heard"`
}

type conversationRequest struct {
	History []conversation.Turn `json:"history"`
	Message string              `json:"message"`
}

type ttsRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleFurigana(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	html, err := s.deps.Annotator.Annotate(r.Context(), req.Text)
	if err != nil {
		s.internalError(w, r, "furigana", err)
		return
	}
	writeJSON(w, http.StatusOK, furiganaResponse{HTML: html, Romaji: s.deps.Romanizer.Romanize(html)})
}

func (s *Server) handleFuriganaBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	texts := make([]string, len(req.Items))
	for i, it := range req.Items {
		texts[i] = it.JP
	}
	htmls, err := s.deps.Annotator.AnnotateAll(r.Context(), texts)
	if err != nil {
		s.internalError(w, r, "furigana batch", err)
		return
	}
	out := batchResponse{Items: make([]AnnotatedItem, len(req.Items))}
	for i, it := range req.Items {
		out.Items[i] = AnnotatedItem{
			VocabItem: it,
			HTML:      htmls[i],
			Romaji:    s.deps.Romanizer.Romanize(htmls[i]),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRomaji(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, romajiResponse{Romaji: s.deps.Romanizer.Romanize(req.Text)})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Target) == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Practice.Score(r.Context(), req.Target, req.Heard))
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.deps.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("audio exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form: "+err.Error())
		return
	}
	target := r.FormValue("target")
	if strings.TrimSpace(target) == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	f, hdr, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read audio: "+err.Error())
		return
	}
	audio := stt.Audio{Data: data, MIMEType: hdr.Header.Get("Content-Type")}

	res, err := s.deps.Practice.Check(r.Context(), target, audio, r.FormValue("language"))
	if err != nil {
		s.internalError(w, r, "pronunciation check", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if s.deps.Partner == nil {
		writeError(w, http.StatusServiceUnavailable, "conversation partner is not configured")
		return
	}
	var req conversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := s.deps.Partner.Reply(r.Context(), req.History, req.Message)
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage), errors.Is(err, conversation.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.upstreamError(w, r, "conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Synthesizer == nil {
		writeError(w, http.StatusServiceUnavailable, "text-to-speech is not configured")
		return
	}
	var req ttsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	voice := req.VoiceID
	if voice == "" {
		voice = s.deps.DefaultVoice
	}
	speech, err := s.deps.Synthesizer.Synthesize(r.Context(), req.Text, voice)
	if err != nil {
		s.upstreamError(w, r, "tts", err)
		return
	}
	ct := speech.MIMEType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", fmt.Sprint(len(speech.Audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(speech.Audio)
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if s.deps.Synthesizer == nil {
		writeError(w, http.StatusServiceUnavailable, "text-to-speech is not configured")
		return
	}
	voices, err := s.deps.Synthesizer.ListVoices(r.Context())
	if err != nil {
		s.upstreamError(w, r, "tts voices", err)
		return
	}
	if voices == nil {
		voices = []tts.Voice{}
	}
	writeJSON(w, http.StatusOK, voices)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	observe.Logger(r.Context()).Error("api: "+op+" failed", "err", err)
	writeError(w, http.StatusInternalServerError, op+" failed")
}

// upstreamError reports a failed backend call as 502 so the client can tell
// it apart from a server fault.
func (s *Server) upstreamError(w http.ResponseWriter, r *http.Request, op string, err error) {
	observe.Logger(r.Context()).Warn("api: "+op+" backend failed", "err", err)
	writeError(w, http.StatusBadGateway, op+" backend unavailable")
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v at its
// zero value. On failure it writes a 400 response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
