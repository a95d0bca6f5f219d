package broker

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"storeWs/internal/modules/realtime/application/port"
	"storeWs/internal/modules/realtime/domain"
)

// KafkaConsumer reads price publications from Kafka using a consumer group.
type KafkaConsumer struct {
	brokers []string
	groupID string
}

func NewKafkaConsumer(brokers []string, groupID string) *KafkaConsumer {
	return &KafkaConsumer{brokers: brokers, groupID: groupID}
}

// Consume blocks reading topic until ctx is cancelled. Undecodable messages are
// logged and committed so they are not redelivered.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler func(context.Context, domain.Publication) error) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: c.brokers,
		GroupID: c.groupID,
		Topic:   topic,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			slog.Warn("kafka reader close error", slog.String("topic", topic), slog.Any("error", err))
		}
	}()

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("kafka read error", slog.String("topic", topic), slog.Any("error", err))
			continue
		}
		pub, err := decodeKafkaMessage(m)
		if err != nil {
			slog.Warn("kafka message dropped",
				slog.String("topic", m.Topic),
				slog.Int("partition", m.Partition),
				slog.Int64("offset", m.Offset),
				slog.Any("error", err),
			)
			continue
		}
		slog.Debug("kafka message consumed",
			slog.String("topic", m.Topic),
			slog.Int("partition", m.Partition),
			slog.Int64("offset", m.Offset),
			slog.String("channel", pub.Channel),
			slog.String("type", string(pub.Event.Type())),
		)
		if err := handler(ctx, pub); err != nil {
			slog.Warn("kafka handler error", slog.String("topic", m.Topic), slog.Any("error", err))
		}
	}
}

// decodeKafkaMessage parses the publication JSON. A message key names the channel
// when the payload does not.
func decodeKafkaMessage(m kafka.Message) (domain.Publication, error) {
	return domain.DecodePublicationOn(m.Value, string(m.Key))
}

var _ port.PubSubPort = (*KafkaConsumer)(nil)
