package worker

import (
	"context"

	"github.com/spec-kit/ads-users/internal/service"
)

// StartEventRelay registers the relay handlers and drains the relay queue in
// the background. The returned channel closes once ctx is done and the queue
// has been flushed.
func StartEventRelay(ctx context.Context, relay *service.EventRelayService) <-chan struct{} {
	done := make(chan struct{})
	if relay == nil {
		close(done)
		return done
	}
	relay.RegisterHandlers()
	go func() {
		defer close(done)
		relay.Run(ctx)
	}()
	return done
}
