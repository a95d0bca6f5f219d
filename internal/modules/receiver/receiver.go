package receiver

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"storeWs/internal/modules/inbox"
	"storeWs/internal/modules/realtime/domain"
	"storeWs/internal/platform/retry"
)

// State is the connection state of a Receiver.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

const (
	// DefaultReadTimeout is how long the receiver waits for any frame or ping before
	// treating the connection as dead. The broker pings every 30s.
	DefaultReadTimeout = 60 * time.Second

	pongWriteWait = 5 * time.Second
)

// ErrNotConnected is returned by Subscribe and Unsubscribe when there is no live
// connection; the channel set is still updated and replayed on the next connect.
var ErrNotConnected = errors.New("receiver not connected")

// Notification is what the receiver publishes on its local bus for every event.
type Notification struct {
	Type  domain.EventType
	Event domain.Event
	At    time.Time
}

// Options configures a Receiver. Zero values fall back to defaults.
type Options struct {
	URL         string
	Channels    []string
	Dialer      Dialer
	Backoff     retry.Backoff
	Store       *inbox.Store
	MergeWindow time.Duration
	BusBuffer   int
	ReadTimeout time.Duration
}

// Receiver keeps a connection to the broker open, re-subscribing after every reconnect,
// and turns incoming events into live prices, bus notifications and inbox records.
type Receiver struct {
	url         string
	dialer      Dialer
	backoff     retry.Backoff
	store       *inbox.Store
	mergeWindow time.Duration
	readTimeout time.Duration
	bus         *Bus[Notification]
	state       atomic.Int32
	running     atomic.Bool

	mu         sync.Mutex
	channels   map[string]struct{}
	conn       Conn
	prices     map[string]float64
	lastUpdate time.Time

	writeMu sync.Mutex
}

func New(opts Options) *Receiver {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.DefaultBackoff()
	}
	if opts.Store == nil {
		opts.Store = inbox.NewStore(nil, inbox.DefaultMaxSize)
	}
	if opts.MergeWindow <= 0 {
		opts.MergeWindow = inbox.DefaultMergeWindow
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if len(opts.Channels) == 0 {
		opts.Channels = domain.DefaultChannels()
	}
	r := &Receiver{
		url:         opts.URL,
		dialer:      opts.Dialer,
		backoff:     opts.Backoff,
		store:       opts.Store,
		mergeWindow: opts.MergeWindow,
		readTimeout: opts.ReadTimeout,
		bus:         NewBus[Notification](opts.BusBuffer),
		channels:    make(map[string]struct{}),
		prices:      make(map[string]float64),
	}
	for _, ch := range opts.Channels {
		if ch = domain.NormalizeTopic(ch); ch != "" {
			r.channels[ch] = struct{}{}
		}
	}
	return r
}

func (r *Receiver) State() State { return State(r.state.Load()) }

func (r *Receiver) Connected() bool { return r.State() == StateConnected }

func (r *Receiver) Bus() *Bus[Notification] { return r.bus }

func (r *Receiver) Store() *inbox.Store { return r.store }

// LastUpdate is the broker timestamp of the most recent price update, zero if none.
func (r *Receiver) LastUpdate() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUpdate
}

// LatestPrice returns the last price seen for productID.
func (r *Receiver) LatestPrice(productID string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	price, ok := r.prices[productID]
	return price, ok
}

// Channels lists the subscription set, sorted.
func (r *Receiver) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channelsLocked()
}

func (r *Receiver) channelsLocked() []string {
	out := make([]string, 0, len(r.channels))
	for ch := range r.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Subscribe adds channel to the set and, when connected, asks the broker right away.
func (r *Receiver) Subscribe(channel string) error {
	channel = domain.NormalizeTopic(channel)
	if channel == "" {
		return nil
	}
	r.mu.Lock()
	r.channels[channel] = struct{}{}
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return r.write(conn, domain.SubscribeRequest(channel))
}

// Unsubscribe removes channel from the set and, when connected, tells the broker.
func (r *Receiver) Unsubscribe(channel string) error {
	channel = domain.NormalizeTopic(channel)
	if channel == "" {
		return nil
	}
	r.mu.Lock()
	delete(r.channels, channel)
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return r.write(conn, domain.UnsubscribeRequest(channel))
}

func (r *Receiver) write(conn Conn, req domain.Request) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return conn.WriteJSON(req)
}

func (r *Receiver) setState(s State) {
	if prev := State(r.state.Swap(int32(s))); prev != s {
		slog.Debug("receiver state", slog.String("from", prev.String()), slog.String("to", s.String()))
	}
}

// Run connects and keeps reconnecting with the configured backoff until ctx is
// cancelled. It may be called once.
func (r *Receiver) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("receiver already running")
	}
	defer r.setState(StateDisconnected)

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.setState(StateConnecting)
		conn, err := r.dialer.Dial(ctx, r.url)
		if err == nil {
			attempt = 0
			r.serve(ctx, conn)
		} else if ctx.Err() == nil {
			slog.Warn("receiver dial failed", slog.String("url", r.url), slog.Any("error", err))
		}
		r.setState(StateDisconnected)
		if err := ctx.Err(); err != nil {
			return err
		}

		attempt++
		delay := r.backoff.Next(attempt)
		slog.Info("receiver reconnecting", slog.Int("attempt", attempt), slog.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// serve replays the subscription set on a fresh connection and reads frames until the
// connection breaks or ctx is cancelled.
func (r *Receiver) serve(ctx context.Context, conn Conn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	r.mu.Lock()
	r.conn = conn
	channels := r.channelsLocked()
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		r.mu.Unlock()
		_ = conn.Close()
	}()

	for _, ch := range channels {
		if err := r.write(conn, domain.SubscribeRequest(ch)); err != nil {
			slog.Warn("receiver subscribe failed", slog.String("channel", ch), slog.Any("error", err))
			return
		}
	}
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(r.readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(pongWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	r.setState(StateConnected)
	slog.Info("receiver connected", slog.String("url", r.url), slog.Any("channels", channels))

	d := dispatcher{ctx: ctx, r: r}
	for {
		// pings from the broker push this deadline forward
		_ = conn.SetReadDeadline(time.Now().Add(r.readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("receiver connection lost", slog.Any("error", err))
			}
			return
		}
		r.handleFrame(d, raw)
	}
}

func (r *Receiver) handleFrame(d dispatcher, raw []byte) {
	msg, err := domain.DecodeMessage(raw)
	if err != nil {
		slog.Debug("receiver frame dropped", slog.Any("error", err))
		return
	}
	domain.Dispatch(msg.Event, msg.Timestamp, d)
}

// dispatcher is the receiver's domain.Visitor.
type dispatcher struct {
	ctx context.Context
	r   *Receiver
}

func (d dispatcher) VisitPriceUpdate(ev domain.PriceUpdate, at time.Time) {
	d.r.mu.Lock()
	d.r.prices[ev.ProductID] = ev.NewPrice
	d.r.lastUpdate = at
	d.r.mu.Unlock()
	d.r.bus.Publish(Notification{Type: ev.Type(), Event: ev, At: at})
}

func (d dispatcher) VisitPriceAlert(ev domain.PriceAlert, at time.Time) {
	d.r.bus.Publish(Notification{Type: ev.Type(), Event: ev, At: at})
	merged, err := d.r.store.MergeOrAppend(d.ctx, domain.AlertRecord(ev, at), d.r.mergeWindow)
	if err != nil {
		slog.Warn("receiver notification not persisted", slog.String("productId", ev.ProductID), slog.Any("error", err))
		return
	}
	slog.Debug("receiver alert stored", slog.String("productId", ev.ProductID), slog.Bool("merged", merged))
}

var _ domain.Visitor = dispatcher{}
