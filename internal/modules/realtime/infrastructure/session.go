package infrastructure

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionClosed is returned when sending to a session that has been torn down.
	ErrSessionClosed = errors.New("session closed")
	// ErrSendBufferFull is returned when a session's outbound queue overflows; the session is closed.
	ErrSendBufferFull = errors.New("session send buffer full")
)

// SessionState is the lifecycle position of a Session.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the outbound side of one client connection.
type Transport interface {
	WriteMessage(data []byte) error
	Ping() error
	Close() error
}

// Session wraps one client transport with a buffered outbound queue drained by WritePump.
type Session struct {
	id         string
	userID     string
	transport  Transport
	send       chan []byte
	done       chan struct{}
	state      atomic.Int32
	closeOnce  sync.Once
	closeHooks []func(*Session)
	hookMu     sync.Mutex
}

// NewSession creates a session in the CONNECTING state.
func NewSession(transport Transport, buffer int) *Session {
	if buffer <= 0 {
		buffer = 16
	}
	s := &Session{
		id:        uuid.NewString(),
		transport: transport,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// WithUserID tags the session with the authenticated subject, if any.
func (s *Session) WithUserID(userID string) *Session {
	s.userID = userID
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() string { return s.userID }

func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Done is closed once the session reaches CLOSED.
func (s *Session) Done() <-chan struct{} { return s.done }

// open moves CONNECTING to OPEN. Closed sessions are never resurrected.
func (s *Session) open() bool {
	return s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// Send enqueues a serialized event without blocking. A full queue marks the session dead.
func (s *Session) Send(data []byte) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	case s.send <- data:
		return nil
	default:
		slog.Warn("ws session send buffer full", slog.String("sessionId", s.id), slog.String("userId", s.userID))
		s.Close()
		return ErrSendBufferFull
	}
}

// AddCloseHook registers a callback executed once when the session closes.
func (s *Session) AddCloseHook(fn func(*Session)) {
	if fn == nil {
		return
	}
	s.hookMu.Lock()
	s.closeHooks = append(s.closeHooks, fn)
	s.hookMu.Unlock()
}

// Close tears the session down. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
		if s.transport != nil {
			_ = s.transport.Close()
		}
		s.invokeCloseHooks()
	})
}

func (s *Session) invokeCloseHooks() {
	s.hookMu.Lock()
	hooks := append([]func(*Session){}, s.closeHooks...)
	s.closeHooks = nil
	s.hookMu.Unlock()

	for _, hook := range hooks {
		func(h func(*Session)) {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("ws session close hook panic", slog.Any("error", r))
				}
			}()
			h(s)
		}(hook)
	}
}

// WritePump drains the outbound queue to the transport and pings at pingInterval.
// Any write failure closes the session; failed writes are not retried.
func (s *Session) WritePump(pingInterval time.Duration) {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer s.Close()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			if err := s.transport.WriteMessage(msg); err != nil {
				slog.Warn("ws session write error", slog.String("sessionId", s.id), slog.Any("error", err))
				return
			}
		case <-ping.C:
			if err := s.transport.Ping(); err != nil {
				slog.Warn("ws session ping error", slog.String("sessionId", s.id), slog.Any("error", err))
				return
			}
		}
	}
}
