package notify

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps a dispatcher with a token-bucket limiter, one token per
// payload. Use it in front of channels with provider-side send quotas
// (transactional e-mail, chat webhooks).
func RateLimited(next Dispatcher, limiter *rate.Limiter) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, payloads []*Payload) error {
		for i, p := range payloads {
			if err := limiter.Wait(ctx); err != nil {
				return fmt.Errorf("notify: rate limit wait (payload %d/%d): %w", i+1, len(payloads), err)
			}
			if err := next.Send(ctx, []*Payload{p}); err != nil {
				return err
			}
		}
		return nil
	})
}
