package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wifisim/wifisim-go/pkg/log"
	"github.com/wifisim/wifisim-go/pkg/wire"
)

const (
	// DefaultPort is the hub's default TCP port.
	DefaultPort = 3000

	// DefaultWriteTimeout bounds a single relayed frame write.
	DefaultWriteTimeout = 5 * time.Second
)

// ServerConfig configures the TCP hub.
type ServerConfig struct {
	// Address to listen on, e.g. ":3000". Empty uses DefaultPort.
	Address string

	// MaxMessageSize bounds frame payloads (default 64 KiB).
	MaxMessageSize uint32

	// WriteTimeout bounds each frame write to a peer. A peer that does not
	// drain its socket within it is disconnected (default 5s).
	WriteTimeout time.Duration

	// Logger receives frame and connection events (optional).
	Logger log.Logger

	// OnConnect and OnDisconnect observe peer connections (optional).
	OnConnect    func(connID, remoteAddr string)
	OnDisconnect func(connID string)

	// OnError reports read and decode errors (optional).
	OnError func(connID string, err error)
}

// Server is the TCP hub run by the access point process. Frames received
// from one connection are relayed to every other connection and delivered
// to local subscribers. It implements Bus for the local process.
type Server struct {
	config   ServerConfig
	listener net.Listener
	local    *MemoryBus

	connsMu sync.RWMutex
	conns   map[string]*hubConn

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a hub. Call Start to listen.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	local := NewMemoryBus()
	if config.Logger != nil {
		local.SetLogger(config.Logger, log.RoleHub)
	}
	return &Server{
		config: config,
		local:  local,
		conns:  make(map[string]*hubConn),
	}
}

// Start listens and accepts connections until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	go func() {
		<-s.ctx.Done()
		_ = s.Stop()
	}()
	return nil
}

// Stop closes the listener and every connection and waits for them to end.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	_ = s.listener.Close()

	s.connsMu.Lock()
	for _, c := range s.conns {
		_ = c.close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Close stops the hub and the local bus.
func (s *Server) Close() error {
	err := s.Stop()
	if cerr := s.local.Close(); err == nil {
		err = cerr
	}
	return err
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConnectionCount returns the number of connected peers.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Publish sends msg to every connection and every local subscriber.
func (s *Server) Publish(ctx context.Context, msg wire.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	s.relay("", data)
	return s.local.deliver(data)
}

// Subscribe registers a local handler.
func (s *Server) Subscribe(h Handler) func() {
	return s.local.Subscribe(h)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.reportError("", fmt.Errorf("accept: %w", err))
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
			return
		}

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()

	c := &hubConn{
		id:     uuid.New().String(),
		conn:   conn,
		framer: NewFramer(conn, s.config.MaxMessageSize),
	}
	c.framer.SetLogger(s.config.Logger, log.RoleHub, c.id)
	remote := conn.RemoteAddr().String()

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[c.id] = c
	s.connsMu.Unlock()

	s.logConnState(c.id, remote, "", "CONNECTED")
	if s.config.OnConnect != nil {
		s.config.OnConnect(c.id, remote)
	}

	s.readLoop(c)

	s.connsMu.Lock()
	delete(s.conns, c.id)
	s.connsMu.Unlock()
	_ = c.close()

	s.logConnState(c.id, remote, "CONNECTED", "DISCONNECTED")
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(c.id)
	}
}

func (s *Server) readLoop(c *hubConn) {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && s.running.Load() {
				s.reportError(c.id, err)
			}
			return
		}

		// Frames that do not decode are dropped rather than relayed.
		if _, err := wire.Decode(data); err != nil {
			s.reportError(c.id, err)
			continue
		}

		s.relay(c.id, data)
		if err := s.local.deliver(data); err != nil {
			return
		}
	}
}

// relay writes data to every connection except the one with id skip.
func (s *Server) relay(skip string, data []byte) {
	s.connsMu.RLock()
	targets := make([]*hubConn, 0, len(s.conns))
	for id, c := range s.conns {
		if id != skip {
			targets = append(targets, c)
		}
	}
	s.connsMu.RUnlock()

	for _, c := range targets {
		if err := c.write(data, s.config.WriteTimeout); err != nil {
			s.reportError(c.id, err)
			_ = c.close()
		}
	}
}

func (s *Server) reportError(connID string, err error) {
	if s.config.Logger != nil {
		ev := log.NewErrorEvent(log.RoleHub, log.LayerTransport, "", err, "hub")
		ev.ConnectionID = connID
		s.config.Logger.Log(ev)
	}
	if s.config.OnError != nil {
		s.config.OnError(connID, err)
	}
}

func (s *Server) logConnState(connID, remote, from, to string) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionLocal,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    log.RoleHub,
		RemoteAddr:   remote,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from,
			NewState: to,
		},
	})
}

// hubConn is one peer connection on the hub.
type hubConn struct {
	id     string
	conn   net.Conn
	framer *Framer
	once   sync.Once

	// writeMu pairs each write deadline with its frame.
	writeMu sync.Mutex
}

// write sends one frame, failing if the peer does not accept it within timeout.
func (c *hubConn) write(data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return c.framer.WriteFrame(data)
}

func (c *hubConn) close() error {
	var err error
	c.once.Do(func() { err = c.conn.Close() })
	return err
}
