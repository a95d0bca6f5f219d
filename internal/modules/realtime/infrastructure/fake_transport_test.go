package infrastructure

import (
	"errors"
	"sync"
)

var errTransportBroken = errors.New("transport broken")

type fakeTransport struct {
	mu      sync.Mutex
	written [][]byte
	pings   int
	closed  bool
	failing bool
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing || f.closed {
		return errTransportBroken
	}
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing || f.closed {
		return errTransportBroken
	}
	f.pings++
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) fail() {
	f.mu.Lock()
	f.failing = true
	f.mu.Unlock()
}

func (f *fakeTransport) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
