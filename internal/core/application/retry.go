package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blockwatch-network/blockwatch-daemon/pkg/explorer"
)

var (
	retryBaseDelay = 1 * time.Second
	retryMaxDelay  = 60 * time.Second
)

// backoffDelay returns the exponential backoff duration for a given attempt,
// retryBaseDelay * 2^attempt capped at retryMaxDelay.
func backoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		return retryBaseDelay
	}
	if attempt > 30 {
		return retryMaxDelay
	}

	delay := retryBaseDelay * time.Duration(1<<attempt)
	if delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}

// retry runs fn up to attempts times, backing off exponentially between
// attempts. Only transient provider failures are retried; any other error
// aborts immediately.
func retry(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, explorer.ErrProviderUnavailable) {
			return err
		}

		select {
		case <-time.After(backoffDelay(i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %s", ErrRetriesExhausted, err)
}
