package infrastructure

import (
	"context"
	"log/slog"
	"sync"

	"storeWs/internal/modules/realtime/application/port"
	"storeWs/internal/modules/realtime/domain"
)

// HandlerRegistry routes publications from an upstream topic to the handler registered for it.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]port.TopicHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]port.TopicHandler)}
}

func (r *HandlerRegistry) Register(h port.TopicHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Topic()] = h
}

// Topics lists the upstream topics that have a handler.
func (r *HandlerRegistry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.handlers)
}

// Dispatch hands pub to the handler for the upstream topic. Unrouted topics are dropped.
func (r *HandlerRegistry) Dispatch(ctx context.Context, topic string, pub domain.Publication) error {
	r.mu.RLock()
	handler, ok := r.handlers[topic]
	r.mu.RUnlock()
	if !ok {
		slog.Debug("no handler for upstream topic", slog.String("topic", topic))
		return nil
	}
	return handler.Handle(ctx, pub)
}
