package log

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero-valued fields match everything.
type Filter struct {
	ConnectionID string
	Identity     string
	Direction    *Direction
	Layer        *Layer
	Category     *Category
	Role         *Role

	// MsgType matches wire-layer events of that message type.
	MsgType *uint8

	Since *time.Time
	Until *time.Time
}

// Match reports whether event passes every set criterion.
func (f Filter) Match(event Event) bool {
	switch {
	case f.ConnectionID != "" && event.ConnectionID != f.ConnectionID:
		return false
	case f.Identity != "" && event.Identity != f.Identity:
		return false
	case f.Direction != nil && event.Direction != *f.Direction:
		return false
	case f.Layer != nil && event.Layer != *f.Layer:
		return false
	case f.Category != nil && event.Category != *f.Category:
		return false
	case f.Role != nil && event.LocalRole != *f.Role:
		return false
	case f.Since != nil && event.Timestamp.Before(*f.Since):
		return false
	case f.Until != nil && !event.Timestamp.Before(*f.Until):
		return false
	}
	if f.MsgType != nil && (event.Message == nil || event.Message.MsgType != *f.MsgType) {
		return false
	}
	return true
}

// Reader streams events from a capture.
type Reader struct {
	src    io.ReadCloser
	dec    *cbor.Decoder
	filter Filter
}

// NewReader opens a capture file and returns every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file and returns events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewStreamReader(f, filter), nil
}

// NewStreamReader reads events from r.
func NewStreamReader(r io.ReadCloser, filter Filter) *Reader {
	return &Reader{src: r, dec: NewDecoder(r), filter: filter}
}

// Next returns the next matching event, or io.EOF at the end.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// Close closes the source.
func (r *Reader) Close() error {
	return r.src.Close()
}

// Stats summarizes a capture.
type Stats struct {
	Total       int
	ByLayer     map[Layer]int
	ByCategory  map[Category]int
	ByMessage   map[string]int
	Identities  map[string]int
	Errors      int
	First, Last time.Time
}

// Collect drains r and returns a summary.
func Collect(r *Reader) (*Stats, error) {
	s := &Stats{
		ByLayer:    make(map[Layer]int),
		ByCategory: make(map[Category]int),
		ByMessage:  make(map[string]int),
		Identities: make(map[string]int),
	}
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return s, err
		}

		if s.Total == 0 || event.Timestamp.Before(s.First) {
			s.First = event.Timestamp
		}
		if event.Timestamp.After(s.Last) {
			s.Last = event.Timestamp
		}
		s.Total++
		s.ByLayer[event.Layer]++
		s.ByCategory[event.Category]++
		if event.Message != nil {
			s.ByMessage[event.Message.Name]++
		}
		if event.Identity != "" {
			s.Identities[event.Identity]++
		}
		if event.Error != nil {
			s.Errors++
		}
	}
}
