package chat

import (
	"context"
)

// HandlerFunc processes one client request. The returned value becomes the
// ack data on success; a returned error becomes an ack failure (or an
// "error" event for clients without a correlation handle).
type HandlerFunc func(ctx context.Context, c *Client, data map[string]any) (any, error)

type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

func (d *Dispatcher) Register(event string, h HandlerFunc) {
	d.handlers[event] = h
}

func (d *Dispatcher) Get(event string) (HandlerFunc, bool) {
	h, ok := d.handlers[event]
	return h, ok
}
