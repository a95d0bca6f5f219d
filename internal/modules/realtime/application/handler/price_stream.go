package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"storeWs/internal/modules/realtime/application/port"
	"storeWs/internal/modules/realtime/application/usecase"
	"storeWs/internal/modules/realtime/domain"
)

// PriceStreamHandler forwards publications from one upstream topic to the broker.
// An optional allow-list restricts which event types are forwarded.
type PriceStreamHandler struct {
	upstreamTopic string
	allowedTypes  map[domain.EventType]struct{}
	publishUC     *usecase.PublishPriceUseCase
}

func NewPriceStreamHandler(upstreamTopic string, allowedTypes []string, publishUC *usecase.PublishPriceUseCase) *PriceStreamHandler {
	typeSet := make(map[domain.EventType]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		if v := strings.TrimSpace(strings.ToLower(t)); v != "" {
			typeSet[domain.EventType(v)] = struct{}{}
		}
	}
	return &PriceStreamHandler{
		upstreamTopic: strings.TrimSpace(upstreamTopic),
		allowedTypes:  typeSet,
		publishUC:     publishUC,
	}
}

func (h *PriceStreamHandler) Topic() string { return h.upstreamTopic }

// Handle publishes the event. Invalid events are logged and skipped so one bad
// message does not stall the consumer.
func (h *PriceStreamHandler) Handle(ctx context.Context, pub domain.Publication) error {
	if pub.Event == nil {
		return nil
	}
	if len(h.allowedTypes) > 0 {
		if _, ok := h.allowedTypes[pub.Event.Type()]; !ok {
			slog.Debug("price-stream type filtered", slog.String("topic", h.upstreamTopic), slog.String("type", string(pub.Event.Type())))
			return nil
		}
	}
	_, err := h.publishUC.Execute(ctx, pub)
	if errors.Is(err, domain.ErrInvalidEvent) {
		slog.Warn("price-stream invalid event", slog.String("topic", h.upstreamTopic), slog.Any("error", err))
		return nil
	}
	return err
}

var _ port.TopicHandler = (*PriceStreamHandler)(nil)
