package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// scripted returns the queued results in order, then repeats the last one.
type scripted struct {
	calls   atomic.Int32
	results []result
}

type result struct {
	raw string
	err error
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) Close() error { return nil }
func (s *scripted) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	n := int(s.calls.Add(1)) - 1
	if n >= len(s.results) {
		n = len(s.results) - 1
	}
	r := s.results[n]
	if r.err != nil {
		return nil, r.err
	}
	return json.RawMessage(r.raw), nil
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	inner := &scripted{results: []result{{err: errors.New("503")}, {err: errors.New("503")}, {raw: `{}`}}}
	cli := Wrap(inner, Retry(3, time.Millisecond))
	raw, err := cli.GenerateJSON(context.Background(), "p", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(raw))
	require.EqualValues(t, 3, inner.calls.Load())
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	inner := &scripted{results: []result{{err: NewPermanentError(errors.New("bad key"))}}}
	cli := Wrap(inner, Retry(5, time.Millisecond))
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	var pErr *PermanentError
	require.ErrorAs(t, err, &pErr)
	require.EqualValues(t, 1, inner.calls.Load())
}

func TestRetryGivesUp(t *testing.T) {
	boom := errors.New("boom")
	inner := &scripted{results: []result{{err: boom}}}
	_, err := Wrap(inner, Retry(2, time.Millisecond)).GenerateJSON(context.Background(), "p", nil)
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 2, inner.calls.Load())
}

func TestRetryHonoursCancellation(t *testing.T) {
	inner := &scripted{results: []result{{err: errors.New("503")}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Wrap(inner, Retry(5, time.Hour)).GenerateJSON(ctx, "p", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCacheServesRepeatedPrompts(t *testing.T) {
	inner := &scripted{results: []result{{raw: `{"app_name":"A"}`}}}
	cli := Wrap(inner, Cache(8))

	for range 3 {
		raw, err := cli.GenerateJSON(context.Background(), "p", map[string]any{"description": "x"})
		require.NoError(t, err)
		require.JSONEq(t, `{"app_name":"A"}`, string(raw))
	}
	require.EqualValues(t, 1, inner.calls.Load())

	_, err := cli.GenerateJSON(context.Background(), "p", map[string]any{"description": "y"})
	require.NoError(t, err)
	require.EqualValues(t, 2, inner.calls.Load())
}

func TestCacheSkipsFailures(t *testing.T) {
	inner := &scripted{results: []result{{err: errors.New("503")}, {raw: `{}`}}}
	cli := Wrap(inner, Cache(8))
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	require.Error(t, err)
	_, err = cli.GenerateJSON(context.Background(), "p", nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, inner.calls.Load())
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.Out = &buf
	inner := &scripted{results: []result{{raw: `{}`}, {err: errors.New("boom")}}}
	cli := Wrap(inner, WithLogging(log))

	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	require.NoError(t, err)
	_, err = cli.GenerateJSON(context.Background(), "p", nil)
	require.Error(t, err)
	require.Contains(t, buf.String(), "LLM response received")
	require.Contains(t, buf.String(), "LLM request failed")
	require.Contains(t, buf.String(), "client=scripted")
}

func TestRateLimitSpacing(t *testing.T) {
	inner := &scripted{results: []result{{raw: `{}`}}}
	cli := Wrap(inner, RateLimit(2, 1))
	t.Cleanup(func() { _ = cli.Close() })

	start := time.Now()
	for range 2 {
		_, err := cli.GenerateJSON(context.Background(), "p", nil)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 450*time.Millisecond)
}

func TestRateLimitBurst(t *testing.T) {
	inner := &scripted{results: []result{{raw: `{}`}}}
	cli := RateLimit(2, 2)(inner)
	t.Cleanup(func() { _ = cli.Close() })

	start := time.Now()
	for range 2 {
		_, err := cli.GenerateJSON(context.Background(), "p", nil)
		require.NoError(t, err)
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRateLimitDisabled(t *testing.T) {
	require.Nil(t, newLimiter(0, 5))

	inner := &scripted{results: []result{{raw: `{}`}}}
	cli := RateLimit(0, 0)(inner)
	start := time.Now()
	for range 20 {
		_, err := cli.GenerateJSON(context.Background(), "p", nil)
		require.NoError(t, err)
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
	require.EqualValues(t, 20, inner.calls.Load())
}

func TestRateLimitRespectsDeadline(t *testing.T) {
	inner := &scripted{results: []result{{raw: `{}`}}}
	cli := RateLimit(0.001, 1)(inner)

	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = cli.GenerateJSON(ctx, "p", nil)
	require.Error(t, err)
	require.EqualValues(t, 1, inner.calls.Load())
}

func TestRateLimitClosed(t *testing.T) {
	inner := &scripted{results: []result{{raw: `{}`}}}
	cli := RateLimit(5, 1)(inner)
	require.NoError(t, cli.Close())

	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	require.ErrorIs(t, err, ErrClientClosed)
	require.Zero(t, inner.calls.Load())
}
