package adapter

import (
	"context"

	"license-activation-service/internal/domain/model"
)

// EventPublisher fans committed state changes out to subscribers. Publish must
// not block on delivery.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.Event)
}

// EventSubscriber receives events on a background worker.
type EventSubscriber interface {
	Name() string
	Handle(ctx context.Context, ev model.Event) error
}
