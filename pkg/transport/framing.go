package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/wifisim/wifisim-go/pkg/log"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the big-endian length prefix.
	LengthPrefixSize = 4

	// DefaultMaxMessageSize bounds a single frame payload (64 KiB).
	DefaultMaxMessageSize = 64 * 1024

	// maxLoggedFrame caps how many payload bytes are copied into log events.
	maxLoggedFrame = 4096
)

// Framing errors.
var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMessageEmpty    = errors.New("message is empty")
	ErrFrameTruncated  = errors.New("frame truncated")
)

// frameTap reports frames to a protocol logger.
type frameTap struct {
	logger log.Logger
	role   log.Role
	connID string
}

func (t *frameTap) record(data []byte, dir log.Direction) {
	if t == nil || t.logger == nil {
		return
	}
	logged, truncated := data, false
	if len(logged) > maxLoggedFrame {
		logged, truncated = logged[:maxLoggedFrame], true
	}
	t.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		LocalRole:    t.role,
		Frame: &log.FrameEvent{
			Size:      FrameSize(len(data)),
			Data:      logged,
			Truncated: truncated,
		},
	})
}

// FrameWriter writes length-prefixed frames. It is safe for concurrent use.
type FrameWriter struct {
	mu      sync.Mutex
	w       io.Writer
	maxSize uint32
	tap     *frameTap
}

// NewFrameWriter creates a writer with DefaultMaxMessageSize.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w, maxSize: DefaultMaxMessageSize}
}

// WriteFrame writes the length prefix and payload as one buffer.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if uint64(len(data)) > uint64(fw.maxSize) {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), fw.maxSize)
	}

	buf := make([]byte, LengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[LengthPrefixSize:], data)

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	fw.tap.record(data, log.DirectionOut)
	return nil
}

// FrameReader reads length-prefixed frames. It is not safe for concurrent use.
type FrameReader struct {
	r       io.Reader
	maxSize uint32
	prefix  [LengthPrefixSize]byte
	tap     *frameTap
}

// NewFrameReader creates a reader with DefaultMaxMessageSize.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, maxSize: DefaultMaxMessageSize}
}

// ReadFrame returns the next payload. A clean end of stream before a
// prefix is io.EOF; a stream cut inside a frame is ErrFrameTruncated.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.prefix[:]); err != nil {
		switch {
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, ErrFrameTruncated
		case err == io.EOF:
			return nil, io.EOF
		default:
			return nil, fmt.Errorf("failed to read length prefix: %w", err)
		}
	}

	n := binary.BigEndian.Uint32(fr.prefix[:])
	if n == 0 {
		return nil, ErrMessageEmpty
	}
	if n > fr.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, n, fr.maxSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	fr.tap.record(payload, log.DirectionIn)
	return payload, nil
}

// Framer reads and writes frames on one stream.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer with the given payload limit; zero selects
// DefaultMaxMessageSize.
func NewFramer(rw io.ReadWriter, maxSize uint32) *Framer {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	f := &Framer{FrameReader: NewFrameReader(rw), FrameWriter: NewFrameWriter(rw)}
	f.FrameReader.maxSize = maxSize
	f.FrameWriter.maxSize = maxSize
	return f
}

// SetLogger reports every frame to logger. Nil disables reporting.
func (f *Framer) SetLogger(logger log.Logger, role log.Role, connID string) {
	var tap *frameTap
	if logger != nil {
		tap = &frameTap{logger: logger, role: role, connID: connID}
	}
	f.FrameReader.tap = tap
	f.FrameWriter.mu.Lock()
	f.FrameWriter.tap = tap
	f.FrameWriter.mu.Unlock()
}

// FrameSize returns the on-wire size of a payload.
func FrameSize(payloadSize int) int {
	return LengthPrefixSize + payloadSize
}
