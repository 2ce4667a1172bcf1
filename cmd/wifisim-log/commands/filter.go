package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wifisim/wifisim-go/pkg/log"
	"github.com/wifisim/wifisim-go/pkg/wire"
)

// FilterOptions holds the string form of filter flags.
type FilterOptions struct {
	ConnID    string
	Identity  string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
	Role      string
	MsgType   string
}

// BuildFilter parses opts into a log.Filter.
func BuildFilter(opts FilterOptions) (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: opts.ConnID,
		Identity:     opts.Identity,
	}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.Since = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.Until = &t
	}
	if opts.Layer != "" {
		l, err := ParseLayerFlag(opts.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if opts.Direction != "" {
		d, err := ParseDirectionFlag(opts.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if opts.Role != "" {
		r, err := ParseRoleFlag(opts.Role)
		if err != nil {
			return filter, err
		}
		filter.Role = &r
	}
	if opts.MsgType != "" {
		t, ok := wire.ParseTypeName(opts.MsgType)
		if !ok {
			return filter, fmt.Errorf("invalid message type: %s", opts.MsgType)
		}
		filter.MsgType = &t
	}
	return filter, nil
}

// RunFilter copies events from path matching filter into a new capture at
// output and returns how many were written.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return logger.Written(), fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
	}
	return logger.Written(), nil
}
