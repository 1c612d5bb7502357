package notify

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Multi fans payloads out to several dispatchers concurrently. Every
// dispatcher receives the full payload slice; the first error is returned
// after all sends finish, so one dead channel does not starve the others.
func Multi(dispatchers ...Dispatcher) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, payloads []*Payload) error {
		// Plain group, not WithContext: one channel's failure must not
		// cancel deliveries still running on the others.
		var g errgroup.Group
		for _, d := range dispatchers {
			dispatcher := d
			g.Go(func() error {
				return dispatcher.Send(ctx, payloads)
			})
		}
		return g.Wait()
	})
}
