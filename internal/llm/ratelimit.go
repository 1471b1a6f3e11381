package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// ErrClientClosed is returned by a rate-limited client after Close.
var ErrClientClosed = errors.New("llm: client closed")

// RateLimit spaces model requests to at most rps per second, letting up to
// burst requests through back to back. rps <= 0 disables the limit.
func RateLimit(rps float64, burst int) Middleware {
	return func(next LLMClient) LLMClient {
		return &rateLimited{next: next, limiter: newLimiter(rps, burst)}
	}
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

type rateLimited struct {
	next    LLMClient
	limiter *rate.Limiter
	closed  atomic.Bool
}

func (c *rateLimited) Name() string { return c.next.Name() }

func (c *rateLimited) Close() error {
	c.closed.Store(true)
	return c.next.Close()
}

func (c *rateLimited) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if c.limiter != nil {
		// Wait fails fast when the reservation would outlive ctx's deadline.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return c.next.GenerateJSON(ctx, prompt, input)
}
