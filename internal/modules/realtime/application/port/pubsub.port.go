package port

import (
	"context"

	"storeWs/internal/modules/realtime/domain"
)

// PubSubPort consumes publications from an upstream bus (Kafka, NATS).
type PubSubPort interface {
	Consume(ctx context.Context, topic string, handler func(context.Context, domain.Publication) error) error
}

// Publisher fans an event out to every open subscriber of a topic and reports how
// many sessions accepted it.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev domain.Event) (int, error)
}

// TopicHandler is registered per upstream topic and receives decoded publications.
type TopicHandler interface {
	Topic() string
	Handle(ctx context.Context, pub domain.Publication) error
}
