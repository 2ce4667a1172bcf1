package transport

import (
	"context"
	"errors"

	"github.com/wifisim/wifisim-go/pkg/wire"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("bus closed")

// Handler receives messages from a Bus. Handlers for one subscription are
// called sequentially in publish order; they may publish on the same bus.
type Handler func(msg wire.Message)

// Bus is a broadcast publish/subscribe channel for wire messages.
type Bus interface {
	// Publish sends msg to every subscriber.
	Publish(ctx context.Context, msg wire.Message) error

	// Subscribe registers h and returns a function that removes it.
	Subscribe(h Handler) (cancel func())

	// Close stops delivery and releases resources.
	Close() error
}

var (
	_ Bus = (*MemoryBus)(nil)
	_ Bus = (*Server)(nil)
	_ Bus = (*Client)(nil)
)
