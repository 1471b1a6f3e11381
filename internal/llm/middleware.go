package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// Middleware decorates an LLMClient to inject cross-cutting concerns
// (rate limiting, retries, logging, caching).
type Middleware func(LLMClient) LLMClient

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner LLMClient, mws ...Middleware) LLMClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Retry with exponential backoff --------

// Retry retries GenerateJSON up to maxAttempts with exponential backoff
// starting at baseDelay. PermanentError and context cancellation stop it.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next LLMClient) LLMClient {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next LLMClient
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }
func (r *retrying) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.GenerateJSON(ctx, prompt, input)
		if err == nil {
			return resp, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return nil, err
		}
		last = err
		if i == r.max-1 {
			break
		}
		t := time.NewTimer(r.base * time.Duration(1<<i))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, last
}

// -------- Logging --------

// WithLogging logs request size, latency and errors.
func WithLogging(log logrus.FieldLogger) Middleware {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(next LLMClient) LLMClient {
		return &logging{next: next, log: log}
	}
}

type logging struct {
	next LLMClient
	log  logrus.FieldLogger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }
func (l *logging) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	start := time.Now()
	raw, err := l.next.GenerateJSON(ctx, prompt, input)
	entry := l.log.WithFields(logrus.Fields{
		"client":  l.next.Name(),
		"prompt":  len(prompt),
		"elapsed": time.Since(start).Round(time.Millisecond).String(),
	})
	if err != nil {
		entry.WithError(err).Warn("LLM request failed")
		return raw, err
	}
	entry.WithField("response", len(raw)).Info("LLM response received")
	return raw, nil
}

// -------- Response cache --------

// Cache memoizes successful responses per (prompt, input) in an LRU of the
// given size. Failed calls are not cached.
func Cache(size int) Middleware {
	if size <= 0 {
		size = 64
	}
	return func(next LLMClient) LLMClient {
		c, err := lru.New[string, json.RawMessage](size)
		if err != nil {
			// size is always positive here.
			panic(err)
		}
		return &cached{next: next, cache: c}
	}
}

type cached struct {
	next  LLMClient
	cache *lru.Cache[string, json.RawMessage]
}

func (c *cached) Name() string { return c.next.Name() }
func (c *cached) Close() error { return c.next.Close() }
func (c *cached) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	key, err := cacheKey(prompt, input)
	if err != nil {
		return c.next.GenerateJSON(ctx, prompt, input)
	}
	if raw, ok := c.cache.Get(key); ok {
		return append(json.RawMessage(nil), raw...), nil
	}
	raw, err := c.next.GenerateJSON(ctx, prompt, input)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, append(json.RawMessage(nil), raw...))
	return raw, nil
}

func cacheKey(prompt string, input any) (string, error) {
	in, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write(in)
	return hex.EncodeToString(h.Sum(nil)), nil
}
