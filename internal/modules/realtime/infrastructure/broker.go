package infrastructure

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"storeWs/internal/modules/realtime/application/port"
	"storeWs/internal/modules/realtime/domain"
)

var (
	// ErrBrokerStopped is returned by operations submitted after the loop exited.
	ErrBrokerStopped = errors.New("broker stopped")
	// ErrBrokerRunning is returned when Run is invoked on a broker that is already looping.
	ErrBrokerRunning = errors.New("broker already running")
	// ErrSessionNotConnecting is returned when connecting a session that is already open or closed.
	ErrSessionNotConnecting = errors.New("session is not connecting")
)

// Stats is a point-in-time view of the broker tables.
type Stats struct {
	Sessions int `json:"sessions"`
	Topics   int `json:"topics"`
}

// Broker owns the topic registry and the session table. Every mutation runs as a
// closure inside the single Run loop, so neither table needs locking.
type Broker struct {
	registry *TopicRegistry
	sessions map[string]*Session
	ops      chan func()
	done     chan struct{}
	running  atomic.Bool
	now      func() time.Time
}

// Option customises a Broker.
type Option func(*Broker)

// WithClock overrides the clock used to stamp published events.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithQueueSize sets the capacity of the loop's operation queue.
func WithQueueSize(size int) Option {
	return func(b *Broker) {
		if size > 0 {
			b.ops = make(chan func(), size)
		}
	}
}

// NewBroker builds a broker around an injected registry. Call Run to start the loop.
func NewBroker(registry *TopicRegistry, opts ...Option) *Broker {
	if registry == nil {
		registry = NewTopicRegistry()
	}
	b := &Broker{
		registry: registry,
		sessions: make(map[string]*Session),
		ops:      make(chan func(), 256),
		done:     make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run executes submitted operations until ctx is cancelled, then closes every session.
func (b *Broker) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrBrokerRunning
	}
	slog.Info("broker loop started")
	defer slog.Info("broker loop exiting")
	for {
		select {
		case <-ctx.Done():
			close(b.done)
			for id, s := range b.sessions {
				b.registry.RemoveSession(id)
				delete(b.sessions, id)
				s.Close()
			}
			return ctx.Err()
		case op := <-b.ops:
			op()
		}
	}
}

// do runs fn inside the loop and waits for it to finish.
func (b *Broker) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case <-b.done:
		return ErrBrokerStopped
	case <-ctx.Done():
		return ctx.Err()
	case b.ops <- wrapped:
	}
	select {
	case <-finished:
		return nil
	case <-b.done:
		// the loop may have drained the op just before stopping
		select {
		case <-finished:
			return nil
		default:
			return ErrBrokerStopped
		}
	}
}

// Connect registers a CONNECTING session and opens it. No topic is joined automatically.
func (b *Broker) Connect(ctx context.Context, s *Session) error {
	if s == nil {
		return ErrSessionNotConnecting
	}
	var opErr error
	err := b.do(ctx, func() {
		if !s.open() {
			opErr = ErrSessionNotConnecting
			return
		}
		b.sessions[s.ID()] = s
		s.AddCloseHook(func(closed *Session) {
			// hooks can fire from inside the loop; detach asynchronously
			go func() { _ = b.Disconnect(context.Background(), closed) }()
		})
		slog.Info("ws session connected", slog.String("sessionId", s.ID()), slog.String("userId", s.UserID()))
	})
	if err != nil {
		return err
	}
	return opErr
}

// HandleMessage applies a subscribe or unsubscribe frame. Any other frame is dropped.
func (b *Broker) HandleMessage(ctx context.Context, s *Session, raw []byte) error {
	req, ok := domain.ParseRequest(raw)
	if !ok {
		slog.Debug("ws request ignored", slog.String("sessionId", s.ID()), slog.Int("bytes", len(raw)))
		return nil
	}
	return b.do(ctx, func() {
		if b.sessions[s.ID()] != s || s.State() != StateOpen {
			return
		}
		switch req.Action {
		case domain.ActionSubscribe:
			b.registry.Subscribe(req.Channel, s.ID())
		case domain.ActionUnsubscribe:
			b.registry.Unsubscribe(req.Channel, s.ID())
		}
		slog.Debug("ws request applied", slog.String("sessionId", s.ID()), slog.String("action", req.Action), slog.String("channel", req.Channel))
	})
}

// Publish stamps the event, encodes it once and hands it to every OPEN subscriber of
// topic. A failing subscriber is detached without affecting the rest.
func (b *Broker) Publish(ctx context.Context, topic string, ev domain.Event) (int, error) {
	data, err := domain.EncodeMessage(ev, b.now())
	if err != nil {
		return 0, err
	}
	topic = domain.NormalizeTopic(topic)
	delivered := 0
	err = b.do(ctx, func() {
		for _, id := range b.registry.SubscribersOf(topic) {
			s, ok := b.sessions[id]
			if !ok || s.State() != StateOpen {
				b.registry.RemoveSession(id)
				delete(b.sessions, id)
				continue
			}
			if sendErr := s.Send(data); sendErr != nil {
				slog.Warn("broker publish to session failed", slog.String("sessionId", id), slog.String("topic", topic), slog.Any("error", sendErr))
				b.detachLocked(s)
				continue
			}
			delivered++
		}
	})
	if err != nil {
		return 0, err
	}
	slog.Debug("broker published", slog.String("topic", topic), slog.String("type", string(ev.Type())), slog.Int("delivered", delivered))
	return delivered, nil
}

// Disconnect removes the session from every topic and closes it.
func (b *Broker) Disconnect(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	err := b.do(ctx, func() { b.detachLocked(s) })
	if errors.Is(err, ErrBrokerStopped) {
		s.Close()
		return nil
	}
	return err
}

func (b *Broker) detachLocked(s *Session) {
	b.registry.RemoveSession(s.ID())
	if current, ok := b.sessions[s.ID()]; ok && current == s {
		delete(b.sessions, s.ID())
		slog.Info("ws session detached", slog.String("sessionId", s.ID()), slog.String("userId", s.UserID()))
	}
	s.Close()
}

// Subscribers returns the session ids currently subscribed to topic.
func (b *Broker) Subscribers(ctx context.Context, topic string) ([]string, error) {
	var out []string
	err := b.do(ctx, func() { out = b.registry.SubscribersOf(domain.NormalizeTopic(topic)) })
	return out, err
}

// Stats reports the number of sessions and live topics.
func (b *Broker) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := b.do(ctx, func() {
		stats = Stats{Sessions: len(b.sessions), Topics: b.registry.Len()}
	})
	return stats, err
}

var _ port.Publisher = (*Broker)(nil)
