package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hivetrace/hivectl/internal/logging"
)

// RetryPolicy bounds automatic re-issue of a request. Retries happen
// only on transport failures, timeouts, and 5xx responses; status
// failures below 500 are never retried.
type RetryPolicy struct {
	MaxAttempts uint
	Delay       time.Duration
}

// DefaultRetryPolicy retries twice more after the initial attempt.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}

type retryableStatus struct {
	resp *Response
}

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("server error: status %d", e.resp.Status)
}

// DoRetry issues the request under the given policy. Callers opt in
// explicitly; nothing in Do retries on its own. Only idempotent
// requests should be passed here.
func (c *Client) DoRetry(ctx context.Context, policy RetryPolicy, method, path string, body []byte, opts ...RequestOption) (*Response, error) {
	attempt := 0
	operation := func() (*Response, error) {
		attempt++
		if attempt > 1 {
			c.logger.Debug("retrying request", logging.Method(method), logging.URL(c.baseURL+path), logging.Attempt(attempt))
		}
		resp, err := c.Do(ctx, method, path, body, opts...)
		if err != nil {
			var te *TimeoutError
			var ne *NetworkError
			if errors.As(err, &te) || errors.As(err, &ne) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		if resp.ServerError() {
			return nil, &retryableStatus{resp: resp}
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Delay)),
		backoff.WithMaxTries(policy.MaxAttempts),
	)
	if err != nil {
		// Attempts exhausted on a 5xx: hand back the last response so
		// the caller can surface it, consistent with Do.
		var rs *retryableStatus
		if errors.As(err, &rs) {
			return rs.resp, nil
		}
		return nil, err
	}
	return resp, nil
}
