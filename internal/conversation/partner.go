// Package conversation implements the tutor the learner chats with in
// Japanese. Each reply is annotated with furigana and romanized so it can be
// read aloud at any level.
//
// The partner is stateless: the client sends the transcript so far with
// every message and the partner returns the next reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/kotoba/internal/observe"
	"github.com/MrWong99/kotoba/pkg/provider/llm"
)

// ErrEmptyMessage is returned when the learner's message is blank.
var ErrEmptyMessage = errors.New("conversation: empty message")

// ErrInvalidRole is returned when a history turn has a role other than user
// or assistant.
var ErrInvalidRole = errors.New("conversation: invalid role")

// Defaults applied by [New].
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 300
	DefaultMaxHistory  = 20
)

const defaultPersona = `You are a friendly Japanese conversation partner for a language learner.
Reply only in natural Japanese, in one to three short sentences.
Use vocabulary and grammar suited to the learner's level.
If the learner makes a mistake, repeat the corrected phrase once, then continue the conversation.
Do not add romaji or translations.`

// Annotator adds furigana markup to Japanese text.
type Annotator interface {
	Annotate(ctx context.Context, text string) (string, error)
}

// Romanizer converts Japanese text, possibly carrying ruby markup, to romaji.
type Romanizer interface {
	Romanize(text string) string
}

// Turn is one message of the transcript as exchanged with the client.
type Turn struct {
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
}

// Reply is the partner's answer to one learner message.
type Reply struct {
	// Text is the raw model output.
	Text string `json:"text"`

	// HTML is Text with furigana markup.
	HTML string `json:"html"`

	// Romaji is the romanized reading of Text.
	Romaji string `json:"romaji"`

	Usage llm.Usage `json:"usage"`
}

// Option configures a [Partner].
type Option func(*Partner)

// WithSystemPrompt replaces the built-in tutor persona.
func WithSystemPrompt(p string) Option {
	return func(pt *Partner) { pt.systemPrompt = p }
}

// WithLevel describes the learner, e.g. "JLPT N5". It is appended to the
// system prompt.
func WithLevel(level string) Option {
	return func(pt *Partner) { pt.level = level }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(pt *Partner) { pt.temperature = t }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option {
	return func(pt *Partner) {
		if n > 0 {
			pt.maxTokens = n
		}
	}
}

// WithMaxHistory sets how many of the most recent turns are sent to the
// model.
func WithMaxHistory(n int) Option {
	return func(pt *Partner) {
		if n > 0 {
			pt.maxHistory = n
		}
	}
}

// WithMaxPromptTokens drops the oldest turns until the provider's token
// count for the prompt fits within n. Zero disables the budget.
func WithMaxPromptTokens(n int) Option {
	return func(pt *Partner) { pt.maxPromptTokens = n }
}

// Partner produces tutor replies. It is safe for concurrent use.
type Partner struct {
	provider  llm.Provider
	annotator Annotator
	romanizer Romanizer

	systemPrompt    string
	level           string
	temperature     float64
	maxTokens       int
	maxHistory      int
	maxPromptTokens int
}

// New creates a Partner. annotator and romanizer may be nil, in which case
// replies carry plain text only.
func New(provider llm.Provider, annotator Annotator, romanizer Romanizer, opts ...Option) *Partner {
	p := &Partner{
		provider:     provider,
		annotator:    annotator,
		romanizer:    romanizer,
		systemPrompt: defaultPersona,
		temperature:  DefaultTemperature,
		maxTokens:    DefaultMaxTokens,
		maxHistory:   DefaultMaxHistory,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SystemPrompt returns the prompt sent ahead of every conversation.
func (p *Partner) SystemPrompt() string {
	if p.level == "" {
		return p.systemPrompt
	}
	return p.systemPrompt + "\n\nThe learner's level: " + p.level + "."
}

// Reply sends history plus message to the model and returns the annotated
// answer.
func (p *Partner) Reply(ctx context.Context, history []Turn, message string) (reply *Reply, err error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	ctx, span := observe.StartTextSpan(ctx, "conversation.reply", message, observe.AttrTurns.Int(len(history)))
	defer func() { observe.EndSpan(span, err) }()

	msgs, err := p.messages(history, message)
	if err != nil {
		return nil, err
	}

	resp, err := p.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: p.SystemPrompt(),
		Messages:     msgs,
		Temperature:  p.temperature,
		MaxTokens:    p.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: complete: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	out := &Reply{Text: text, HTML: text, Usage: resp.Usage}
	if p.annotator != nil {
		html, err := p.annotator.Annotate(ctx, text)
		if err != nil {
			observe.Logger(ctx).Warn("conversation: furigana failed, returning plain reply", "err", err)
		} else {
			out.HTML = html
		}
	}
	if p.romanizer != nil {
		out.Romaji = p.romanizer.Romanize(out.HTML)
	}
	return out, nil
}

// messages converts history to provider messages, keeps the most recent
// turns within the history and token budgets, and appends message.
func (p *Partner) messages(history []Turn, message string) ([]llm.Message, error) {
	msgs := make([]llm.Message, 0, len(history)+1)
	for i, t := range history {
		switch t.Role {
		case llm.RoleUser, llm.RoleAssistant:
		default:
			return nil, fmt.Errorf("%w: turn %d has role %q", ErrInvalidRole, i, t.Role)
		}
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	if len(msgs) > p.maxHistory {
		msgs = msgs[len(msgs)-p.maxHistory:]
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	if p.maxPromptTokens <= 0 {
		return msgs, nil
	}
	system := llm.Message{Role: llm.RoleSystem, Content: p.SystemPrompt()}
	for len(msgs) > 1 {
		n, err := p.provider.CountTokens(append([]llm.Message{system}, msgs...))
		if err != nil {
			n = llm.EstimateTokens(append([]llm.Message{system}, msgs...))
		}
		if n <= p.maxPromptTokens {
			break
		}
		msgs = msgs[1:]
	}
	return msgs, nil
}
