package infrastructure

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketOptions tunes the gorilla connection of a session.
type WebsocketOptions struct {
	SendBuffer   int
	ReadLimit    int64
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
}

// DefaultWebsocketOptions mirrors the pump timings used in production.
func DefaultWebsocketOptions() WebsocketOptions {
	return WebsocketOptions{
		SendBuffer:   16,
		ReadLimit:    1 << 16,
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    5 * time.Second,
	}
}

func (o WebsocketOptions) withDefaults() WebsocketOptions {
	d := DefaultWebsocketOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = d.ReadLimit
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	return o
}

type wsTransport struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

// NewWebsocketTransport adapts a gorilla connection to Transport. Writes are only
// issued from the session's WritePump.
func NewWebsocketTransport(conn *websocket.Conn, writeWait time.Duration) Transport {
	return &wsTransport{conn: conn, writeWait: writeWait}
}

func (t *wsTransport) WriteMessage(data []byte) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait))
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// ServeWebsocket connects an upgraded connection to the broker and blocks until the
// client goes away. Inbound frames are handed to the broker as subscription requests.
func ServeWebsocket(ctx context.Context, b *Broker, conn *websocket.Conn, userID string, opts WebsocketOptions) error {
	opts = opts.withDefaults()
	session := NewSession(NewWebsocketTransport(conn, opts.WriteWait), opts.SendBuffer).WithUserID(userID)
	if err := b.Connect(ctx, session); err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = b.Disconnect(context.Background(), session) }()

	go session.WritePump(opts.PingInterval)

	conn.SetReadLimit(opts.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && session.State() != StateClosed {
				slog.Warn("ws read error", slog.String("sessionId", session.ID()), slog.String("userId", userID), slog.Any("error", err))
			}
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		if err := b.HandleMessage(ctx, session, raw); err != nil {
			slog.Warn("ws request rejected", slog.String("sessionId", session.ID()), slog.Any("error", err))
			return err
		}
	}
}
