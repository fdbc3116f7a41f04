package progress

import "sync"

// Hub tracks the live stream of every known submission.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{streams: make(map[string]*Stream)}
}

// Open returns the stream for id, creating it when absent.
func (h *Hub) Open(id string) *Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.streams[id]; ok {
		return s
	}
	s := NewStream(id)
	h.streams[id] = s
	return s
}

// Get returns the stream for id.
func (h *Hub) Get(id string) (*Stream, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.streams[id]
	return s, ok
}

// Remove drops the stream for id. Readers already following it keep their
// reference.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.streams, id)
}

// Len returns the number of tracked streams.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams)
}
