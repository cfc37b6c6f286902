// Package llm wraps the large-language-model providers behind a single
// request/response interface. Providers return the raw completion text; verdict
// parsing belongs to the ai analyzer.
package llm

import (
	"context"
	"errors"
)

// ErrNoCredential is returned by providers constructed without an API key.
var ErrNoCredential = errors.New("llm: no API key configured")

// Options bound a single completion request.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Client is a stateless LLM completion client. Implementations are safe to
// call from multiple goroutines; rate limiting is the caller's concern.
type Client interface {
	Name() string
	Model() string
	Complete(ctx context.Context, system, user string, opts Options) (string, error)
}
