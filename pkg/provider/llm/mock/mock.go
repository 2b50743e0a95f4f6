// Package mock provides a test double for the llm.Provider interface.
//
// A Provider either answers every call with CompleteResponse or plays back
// Replies one per call, which suits multi-turn conversation tests:
//
//	p := &mock.Provider{Replies: []string{"こんにちは！", "はい、そうです。"}}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/kotoba/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Call is one recorded Complete invocation.
type Call struct {
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu    sync.Mutex
	calls []Call

	// Replies are returned in order, one per Complete call. Once exhausted,
	// CompleteResponse answers.
	Replies []string

	// CompleteResponse answers Complete when no scripted reply is left. Nil
	// yields (nil, nil).
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, fails every Complete call.
	CompleteErr error

	// TokenCount is returned by CountTokens.
	TokenCount int
}

// Complete implements llm.Provider.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req.Messages = slices.Clone(req.Messages)
	p.calls = append(p.calls, Call{Req: req})
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if len(p.Replies) > 0 {
		content := p.Replies[0]
		p.Replies = p.Replies[1:]
		return &llm.CompletionResponse{Content: content}, nil
	}
	return p.CompleteResponse, nil
}

// CountTokens implements llm.Provider.
func (p *Provider) CountTokens([]llm.Message) (int, error) {
	return p.TokenCount, nil
}

// Calls returns a copy of the recorded Complete calls.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}
