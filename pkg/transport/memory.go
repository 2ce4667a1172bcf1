package transport

import (
	"context"
	"sync"

	"github.com/wifisim/wifisim-go/pkg/log"
	"github.com/wifisim/wifisim-go/pkg/wire"
)

// MemoryBus is an in-process Bus. Each subscriber has its own unbounded
// queue drained by a dedicated goroutine, so a slow handler never blocks
// publishers or other subscribers.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool

	logger log.Logger
	role   log.Role
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[uint64]*subscriber)}
}

// SetLogger records every published message at the wire layer.
func (b *MemoryBus) SetLogger(logger log.Logger, role log.Role) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	b.role = role
}

// Publish encodes msg and queues a decoded copy for every subscriber.
func (b *MemoryBus) Publish(ctx context.Context, msg wire.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return b.deliver(data)
}

// deliver fans an encoded message out to every subscriber.
func (b *MemoryBus) deliver(data []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	logger, role := b.logger, b.role
	b.mu.Unlock()

	if logger != nil {
		if msg, err := wire.Decode(data); err == nil {
			logger.Log(log.NewMessageEvent(role, log.DirectionOut, "", msg))
		}
	}

	for _, s := range subs {
		msg, err := wire.Decode(data)
		if err != nil {
			return err
		}
		s.push(msg)
	}
	return nil
}

// Subscribe registers h.
func (b *MemoryBus) Subscribe(h Handler) func() {
	s := newSubscriber(h)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.stop()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			s.stop()
		})
	}
}

// Close removes every subscriber. Messages still queued are dropped.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[uint64]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	return nil
}

// subscriber owns one delivery goroutine and its queue.
type subscriber struct {
	handler Handler

	mu    sync.Mutex
	queue []wire.Message
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newSubscriber(h Handler) *subscriber {
	s := &subscriber{
		handler: h,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) push(msg wire.Message) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			msg := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.handler(msg)
		}
	}
}
