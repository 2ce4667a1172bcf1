package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/wifisim/wifisim-go/pkg/log"
	"github.com/wifisim/wifisim-go/pkg/wire"
)

// ErrConnectionClosed is returned when publishing on a closed client.
var ErrConnectionClosed = errors.New("connection closed")

// ClientConfig configures a hub client.
type ClientConfig struct {
	// MaxMessageSize bounds frame payloads (default 64 KiB).
	MaxMessageSize uint32

	// ConnectTimeout applies when the dial context has no deadline (default 10s).
	ConnectTimeout time.Duration

	// Logger receives frame events (optional).
	Logger log.Logger

	// Role is recorded on log events.
	Role log.Role

	// OnError reports read and decode errors (optional).
	OnError func(err error)
}

// Client is a Bus backed by one connection to a hub Server. Messages read
// from the hub and messages published locally both reach local subscribers.
type Client struct {
	config ClientConfig
	conn   net.Conn
	framer *Framer
	local  *MemoryBus

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// Dial connects to the hub at address and starts reading.
func Dial(ctx context.Context, address string, config ClientConfig) (*Client, error) {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &Client{
		config: config,
		conn:   conn,
		framer: NewFramer(conn, config.MaxMessageSize),
		local:  NewMemoryBus(),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.framer.SetLogger(config.Logger, config.Role, conn.LocalAddr().String())

	go c.readLoop()
	return c, nil
}

// Publish writes msg to the hub and delivers it to local subscribers.
func (c *Client) Publish(ctx context.Context, msg wire.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	if err := c.framer.WriteFrame(data); err != nil {
		return err
	}
	return c.local.deliver(data)
}

// Subscribe registers a local handler.
func (c *Client) Subscribe(h Handler) func() {
	return c.local.Subscribe(h)
}

// Done is closed when the connection to the hub ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close disconnects from the hub.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		<-c.done
		_ = c.local.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.closed:
			default:
				if !errors.Is(err, io.EOF) {
					c.reportError(err)
				}
			}
			return
		}

		if _, err := wire.Decode(data); err != nil {
			c.reportError(err)
			continue
		}
		if err := c.local.deliver(data); err != nil {
			return
		}
	}
}

func (c *Client) reportError(err error) {
	if c.config.Logger != nil {
		c.config.Logger.Log(log.NewErrorEvent(c.config.Role, log.LayerTransport, "", err, "client"))
	}
	if c.config.OnError != nil {
		c.config.OnError(err)
	}
}
