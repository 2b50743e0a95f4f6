package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/kotoba/pkg/provider/llm"
)

func llmPermanent(err error) error {
	if errors.Is(err, llm.ErrRejected) {
		return Permanent(err)
	}
	return err
}

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Statuses reports the breaker of every backend in chain order.
func (f *LLMFallback) Statuses() []BreakerStatus { return f.group.Statuses() }

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := p.Complete(ctx, req)
		return resp, llmPermanent(err)
	})
}

// CountTokens uses the primary's counter; counting is local and does not
// fail over.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	return f.group.Primary().CountTokens(messages)
}

// RetryProvider retries failed completions with exponential backoff.
type RetryProvider struct {
	next llm.Provider
	cfg  RetryConfig
}

var _ llm.Provider = (*RetryProvider)(nil)

// NewRetryProvider wraps next.
func NewRetryProvider(next llm.Provider, cfg RetryConfig) *RetryProvider {
	return &RetryProvider{next: next, cfg: cfg}
}

// Complete implements [llm.Provider].
func (r *RetryProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Retry(ctx, r.cfg, "llm completion", func(ctx context.Context) (*llm.CompletionResponse, error) {
		resp, err := r.next.Complete(ctx, req)
		return resp, llmPermanent(err)
	})
}

// CountTokens implements [llm.Provider].
func (r *RetryProvider) CountTokens(messages []llm.Message) (int, error) {
	return r.next.CountTokens(messages)
}
