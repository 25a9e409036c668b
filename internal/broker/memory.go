package broker

import (
	"context"
	"sync"
)

const defaultMemoryBuffer = 256

// Memory is an in-process fanout transport. Each subscription owns a
// buffered queue; Publish waits for queue space until ctx is done.
type Memory struct {
	mu     sync.RWMutex
	subs   map[*memorySub]struct{}
	buffer int
	closed bool
	done   chan struct{}
}

type memorySub struct {
	group string
	ch    chan []byte
	gone  chan struct{}
}

// NewMemory creates an in-process transport. buffer <= 0 selects the
// default queue size per subscription.
func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = defaultMemoryBuffer
	}
	return &Memory{
		subs:   make(map[*memorySub]struct{}),
		buffer: buffer,
		done:   make(chan struct{}),
	}
}

func (m *Memory) Name() string { return "memory" }

// Publish copies payload into every subscription queue.
func (m *Memory) Publish(ctx context.Context, _ string, payload []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]*memorySub, 0, len(m.subs))
	for sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		select {
		case sub.ch <- msg:
		case <-sub.gone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a queue and drains it into handler.
func (m *Memory) Subscribe(ctx context.Context, group string, handler Handler) error {
	sub := &memorySub{
		group: group,
		ch:    make(chan []byte, m.buffer),
		gone:  make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
		close(sub.gone)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return nil
		case msg := <-sub.ch:
			handler(ctx, msg)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return nil
}
