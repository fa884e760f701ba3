package chat

import (
	"sync"
)

// Registry tracks every live connection on this process, independent of
// room membership. Global events (roomCreated) fan out to all of them.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{byConn: make(map[string]*Client)}
}

func (r *Registry) add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[c.ConnID] = c
}

func (r *Registry) remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConn, c.ConnID)
}

func (r *Registry) listAll() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}

func (r *Registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
