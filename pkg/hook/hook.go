// Package hook provides a named-event bus for instrumenting settled requests
// without coupling the dispatcher to its observers.
package hook

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Handler receives the payload emitted for an event.
type Handler func(ctx context.Context, payload any) error

// Bus dispatches named events to registered handlers.
// The zero value is ready to use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// On registers h for event. Handlers run in registration order.
func (b *Bus) On(event string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[string][]Handler)
	}
	b.handlers[event] = append(b.handlers[event], h)
}

// Off removes every handler registered for event.
func (b *Bus) Off(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, event)
}

// Emit runs the handlers for event one after another and waits for them.
// A failing or panicking handler does not stop the rest; all errors are
// joined into the returned error.
func (b *Bus) Emit(ctx context.Context, event string, payload any) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := call(ctx, h, payload); err != nil {
			errs = append(errs, fmt.Errorf("hook %s: %w", event, err))
		}
	}
	return errors.Join(errs...)
}

func call(ctx context.Context, h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, payload)
}
