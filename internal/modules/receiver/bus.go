package receiver

import "sync"

// Bus fans values out to in-process listeners. Publish never blocks: a listener whose
// buffer is full misses the value.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[chan T]struct{}
	buffer int
}

func NewBus[T any](buffer int) *Bus[T] {
	if buffer <= 0 {
		buffer = 10
	}
	return &Bus[T]{subs: make(map[chan T]struct{}), buffer: buffer}
}

func (b *Bus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (b *Bus[T]) Unsubscribe(ch <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if (<-chan T)(sub) == ch {
			delete(b.subs, sub)
			close(sub)
			return
		}
	}
}

func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
	b.mu.Unlock()
}

// Close closes every listener channel.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
