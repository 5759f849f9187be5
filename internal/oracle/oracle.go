// Package oracle defines the text-generation contract used to phrase
// questions and clean up free-text answers, plus the shared plumbing
// (rate limiting, disabled oracle) around concrete providers.
package oracle

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/time/rate"
)

// ErrDisabled is returned by the Disabled oracle. Callers treat it like any
// other failure and take their fallback path.
var ErrDisabled = errors.New("oracle: disabled")

// ErrEmptyResponse is returned when a provider answered with no text.
var ErrEmptyResponse = errors.New("oracle: empty response")

// Params are the sampling parameters fixed per call site.
type Params struct {
	Temperature float32
	MaxTokens   int32
}

// Oracle generates text for a prompt. A single call is made per request;
// implementations must not retry internally.
type Oracle interface {
	Generate(ctx context.Context, prompt string, params Params) (string, error)
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, prompt string, params Params) (string, error)

func (f Func) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	return f(ctx, prompt, params)
}

// Disabled is an Oracle that always fails, forcing the deterministic fallbacks.
type Disabled struct{}

func (Disabled) Generate(context.Context, string, Params) (string, error) {
	return "", ErrDisabled
}

type limited struct {
	next    Oracle
	limiter *rate.Limiter
}

// Limit wraps o so that calls wait on limiter first. A wait that fails
// (context deadline, burst exceeded) is reported as the call's error.
func Limit(o Oracle, limiter *rate.Limiter) Oracle {
	if limiter == nil {
		return o
	}
	return &limited{next: o, limiter: limiter}
}

func (l *limited) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.Generate(ctx, prompt, params)
}

// CleanText trims whitespace and a surrounding markdown fence or quotes
// from a model response.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
