// Package mock scripts the receptionist's language model for tests.
//
//	model := mock.Answering("We open at nine.")
//	reply, err := r.Resolve(ctx, "5550001", "When do you open?")
//	model.CompleteCalls[0].Req.SystemPrompt // the salon context the model saw
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/frontdesk/pkg/provider/llm"
)

// CompleteCall records one Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider returns CompleteResponse and CompleteErr from every Complete, or
// defers to CompleteFunc when set. A nil response with a nil error stands in
// for a model that produced nothing.
type Provider struct {
	mu sync.Mutex

	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// CompleteFunc runs without the lock held, so it may block on ctx the
	// way a slow model does.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Answering returns a Provider that replies text to every caller question.
func Answering(text string) *Provider {
	return &Provider{CompleteResponse: &llm.CompletionResponse{Content: text}}
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn, resp, err := p.CompleteFunc, p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return resp, err
}

// CallCount reports how many questions reached the model.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}
