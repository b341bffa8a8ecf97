package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vibefeed/internal/models"
	"vibefeed/internal/observability"
	"vibefeed/internal/repository"

	"github.com/cenkalti/backoff/v5"
)

// DefaultMaxAttempts bounds read-modify-write retries of a versioned update.
const DefaultMaxAttempts = 5

// retryVersioned runs attempt until it commits, retrying only on
// repository.ErrStaleVersion. Each attempt must re-read the document.
// Exhaustion becomes a CONFLICT AppError; any other error stops immediately.
func retryVersioned[T any](ctx context.Context, target string, maxAttempts int, attempt func() (T, error)) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 50 * time.Millisecond

	op := func() (T, error) {
		res, err := attempt()
		switch {
		case err == nil:
			observability.ToggleAttempts.WithLabelValues(target, "committed").Inc()
			return res, nil
		case errors.Is(err, repository.ErrStaleVersion):
			observability.ToggleAttempts.WithLabelValues(target, "stale").Inc()
			return res, err
		default:
			return res, backoff.Permanent(err)
		}
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
	if errors.Is(err, repository.ErrStaleVersion) {
		observability.ToggleAttempts.WithLabelValues(target, "exhausted").Inc()
		return res, models.NewConflictError(
			fmt.Sprintf("%s is being updated concurrently, try again", target), err)
	}
	return res, err
}
