// Package mocks holds testify mocks for transport interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wifisim/wifisim-go/pkg/transport"
	"github.com/wifisim/wifisim-go/pkg/wire"
)

// MockBus is a testify mock of transport.Bus. Subscribe records the
// handler so tests can inject messages with Deliver.
type MockBus struct {
	mock.Mock

	handlers []transport.Handler
}

// Publish records the call.
func (m *MockBus) Publish(ctx context.Context, msg wire.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// Subscribe records h and returns the cancel func configured with Return,
// or a no-op.
func (m *MockBus) Subscribe(h transport.Handler) func() {
	m.handlers = append(m.handlers, h)
	ret := m.Called(h)
	if fn, ok := ret.Get(0).(func()); ok {
		return fn
	}
	return func() {}
}

// Close records the call.
func (m *MockBus) Close() error {
	return m.Called().Error(0)
}

// Deliver calls every subscribed handler with msg, synchronously.
func (m *MockBus) Deliver(msg wire.Message) {
	for _, h := range m.handlers {
		h(msg)
	}
}

var _ transport.Bus = (*MockBus)(nil)
