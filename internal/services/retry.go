// internal/services/retry.go
package services

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

var (
	retryInitialInterval = 250 * time.Millisecond
	retryMaxInterval     = 5 * time.Second
)

// retryCall runs fn until it succeeds, fails permanently, exhausts
// maxRetries extra attempts or ctx is done. An attempt that times out on
// its own deadline is retried only when idempotent is set; once ctx itself
// is done nothing is retried.
func retryCall(ctx context.Context, maxRetries int, log logrus.FieldLogger, op string, idempotent bool, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = retryInitialInterval
	expo.MaxInterval = retryMaxInterval
	expo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(maxRetries)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if isAttemptTimeout(err) {
			if idempotent {
				return err
			}
			return backoff.Permanent(err)
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
		}).Warn("Retrying external call")
	})

	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		return errors.Join(err, ctx.Err())
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *RemoteAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return !storageErr.Missing
	}

	return errors.Is(err, ErrRemoteUnavailable)
}

// isAttemptTimeout reports a per-attempt deadline, such as the HTTP client
// timeout, as opposed to cancellation of the caller.
func isAttemptTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
