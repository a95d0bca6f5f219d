package broker

import (
	"context"
	"log/slog"

	"storeWs/internal/modules/realtime/domain"
	"storeWs/internal/modules/realtime/infrastructure"
)

func StartKafkaConsumers(
	ctx context.Context,
	registry *infrastructure.HandlerRegistry,
	brokers []string,
	groupID string,
	topics []string,
) {
	if len(brokers) == 0 {
		// kafka.NewReader panics on an empty broker list
		slog.Info("kafka ingest disabled: no brokers configured")
		return
	}
	consumer := NewKafkaConsumer(brokers, groupID)
	for _, topic := range topics {
		go func(tp string) {
			err := consumer.Consume(ctx, tp, func(ctx context.Context, pub domain.Publication) error {
				return registry.Dispatch(ctx, tp, pub)
			})
			slog.Info("kafka consumer stopped", slog.String("topic", tp), slog.Any("reason", err))
		}(topic)
	}
}

// StartNATSSubscriber routes every publication on subject through the handler
// registered for that subject.
func StartNATSSubscriber(ctx context.Context, registry *infrastructure.HandlerRegistry, sub *NATSSubscriber, subject string) {
	if sub == nil || subject == "" {
		return
	}
	go func() {
		err := sub.Consume(ctx, subject, func(ctx context.Context, pub domain.Publication) error {
			return registry.Dispatch(ctx, subject, pub)
		})
		slog.Info("nats subscriber stopped", slog.String("subject", subject), slog.Any("reason", err))
	}()
}
