package transport

// FrameReadWriter provides length-prefixed frame I/O.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

var _ FrameReadWriter = (*Framer)(nil)
