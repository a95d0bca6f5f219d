package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"storeWs/internal/modules/realtime/application/port"
	"storeWs/internal/modules/realtime/domain"
)

// NATSParams configures the optional NATS ingest connection.
type NATSParams struct {
	URL                 string
	ConnectTimeout      time.Duration
	MaxReconnectAttempt int
	ReconnectWait       time.Duration
}

// NATSSubscriber receives price publications on a NATS subject.
type NATSSubscriber struct {
	conn *nats.Conn
}

// DialNATS connects with reconnect enabled, so a broker that is not up yet is retried
// in the background instead of failing startup.
func DialNATS(params NATSParams) (*NATSSubscriber, error) {
	if params.ConnectTimeout <= 0 {
		params.ConnectTimeout = 5 * time.Second
	}
	if params.ReconnectWait <= 0 {
		params.ReconnectWait = 2 * time.Second
	}
	nc, err := nats.Connect(
		params.URL,
		nats.Timeout(params.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(params.MaxReconnectAttempt),
		nats.ReconnectWait(params.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", slog.String("url", params.URL), slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Consume subscribes to subject and blocks until ctx is cancelled, then drains the
// subscription.
func (s *NATSSubscriber) Consume(ctx context.Context, subject string, handler func(context.Context, domain.Publication) error) error {
	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		handleNATSMessage(ctx, msg.Subject, msg.Data, handler)
	})
	if err != nil {
		return err
	}
	slog.Info("nats subscribed", slog.String("subject", subject))
	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		slog.Warn("nats drain error", slog.String("subject", subject), slog.Any("error", err))
	}
	return ctx.Err()
}

// Close flushes and closes the connection.
func (s *NATSSubscriber) Close() {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
	}
}

func handleNATSMessage(ctx context.Context, subject string, data []byte, handler func(context.Context, domain.Publication) error) {
	pub, err := domain.DecodePublication(data)
	if err != nil {
		slog.Warn("nats message dropped", slog.String("subject", subject), slog.Any("error", err))
		return
	}
	if err := handler(ctx, pub); err != nil {
		slog.Warn("nats handler error", slog.String("subject", subject), slog.Any("error", err))
	}
}

var _ port.PubSubPort = (*NATSSubscriber)(nil)
