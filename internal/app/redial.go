package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxbridge/voxbridge/internal/bridge"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

// Default bot-dial retry parameters. A call that cannot reach the bot within
// these bounds is rejected; mid-call disconnects end the call instead of
// redialing, so only the initial dial retries.
const (
	defaultDialRetries = 3
	defaultDialBackoff = 250 * time.Millisecond
	defaultMaxBackoff  = 2 * time.Second
)

// withRetry wraps dial so transient bot endpoint failures during call setup
// are retried with exponential backoff. The context bounds the whole attempt
// sequence.
func withRetry(dial bridge.BotDialer, maxRetries int, backoff, maxBackoff time.Duration) bridge.BotDialer {
	if maxRetries <= 0 {
		maxRetries = defaultDialRetries
	}
	if backoff <= 0 {
		backoff = defaultDialBackoff
	}
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	return func(ctx context.Context) (transport.Transport, error) {
		var lastErr error
		wait := backoff
		for attempt := 1; attempt <= maxRetries; attempt++ {
			t, err := dial(ctx)
			if err == nil {
				return t, nil
			}
			lastErr = err
			slog.Warn("bot dial failed",
				"attempt", attempt,
				"max_retries", maxRetries,
				"backoff", wait,
				"err", err,
			)

			if attempt == maxRetries {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
			if wait > maxBackoff {
				wait = maxBackoff
			}
		}
		return nil, fmt.Errorf("app: bot dial failed after %d attempts: %w", maxRetries, lastErr)
	}
}
