package messaging

import (
	"context"
	"fmt"
	"sync"
)

// InProc is an in-process substrate used by tests and the single-process
// local mode. Delivery is synchronous on the sender goroutine, which is the
// sequential end of the delivery policies a real substrate may have;
// concurrent delivery is exercised by sending from multiple goroutines.
type InProc struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

var _ Substrate = (*InProc)(nil)

func NewInProc() *InProc {
	return &InProc{
		handlers: make(map[string]Handler),
	}
}

func (s *InProc) Subscribe(address string, h Handler) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handlers[address]; ok {
		return nil, fmt.Errorf("address %s already subscribed", address)
	}

	s.handlers[address] = h

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, address)
	}, nil
}

func (s *InProc) Send(ctx context.Context, to Recipient, topic string, payload []byte) error {
	s.mu.RLock()
	h, ok := s.handlers[to.Address]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no subscriber at %s", to.Address)
	}

	// hand the handler its own copy so the sender can reuse the buffer
	buf := append([]byte{}, payload...)
	h(buf, to.RoutingHint, topic)

	return nil
}
