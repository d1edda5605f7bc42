package worker

import (
	"context"
	"sync"

	"github.com/spec-kit/civic-ticket-service/internal/events"
	"github.com/spec-kit/civic-ticket-service/internal/service"
)

// Start registers the event consumers and launches the commissioner loop.
// The returned func blocks until the loop has stopped after ctx is cancelled.
func Start(ctx context.Context, dispatcher events.Dispatcher, notifications *service.NotificationService, commissioner *CommissionerWorker) (wait func()) {
	if notifications != nil {
		notifications.RegisterHandlers()
	}
	var wg sync.WaitGroup
	if commissioner != nil {
		commissioner.Register(dispatcher)
		wg.Add(1)
		go func() {
			defer wg.Done()
			commissioner.Run(ctx)
		}()
	}
	return wg.Wait
}
