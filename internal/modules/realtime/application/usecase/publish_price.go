package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"storeWs/internal/modules/realtime/application/port"
	"storeWs/internal/modules/realtime/domain"
)

// PublishPriceUseCase validates an upstream publication and fans it out through the broker.
type PublishPriceUseCase struct {
	publisher port.Publisher
}

func NewPublishPriceUseCase(p port.Publisher) *PublishPriceUseCase {
	return &PublishPriceUseCase{publisher: p}
}

// Execute publishes pub and returns how many sessions accepted it. Price updates that
// carry an old price but no change get the change derived before fan-out.
func (uc *PublishPriceUseCase) Execute(ctx context.Context, pub domain.Publication) (int, error) {
	if pub.Event == nil {
		return 0, fmt.Errorf("%w: missing event", domain.ErrInvalidEvent)
	}
	if err := pub.Event.Validate(); err != nil {
		return 0, err
	}
	channel := domain.NormalizeTopic(pub.Channel)
	if channel == "" {
		channel = domain.TopicPrices
	}
	ev := pub.Event
	if update, ok := ev.(domain.PriceUpdate); ok {
		ev = update.WithDerivedChange()
	}
	delivered, err := uc.publisher.Publish(ctx, channel, ev)
	if err != nil {
		return 0, err
	}
	slog.Info("price published",
		slog.String("channel", channel),
		slog.String("type", string(ev.Type())),
		slog.String("productId", ev.ProductKey()),
		slog.Int("delivered", delivered),
	)
	return delivered, nil
}
