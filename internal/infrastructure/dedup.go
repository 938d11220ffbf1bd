package infrastructure

import "sync"

// DedupGate remembers recently processed inbound message ids so provider
// redelivery does not run the engine twice. Bounded FIFO: once the
// capacity is exceeded the oldest id is forgotten, so a very old id can
// in theory come back as novel. Redelivery windows in practice are much
// shorter than the default capacity of 200.
type DedupGate struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	queue    []string
	capacity int
}

func NewDedupGate(capacity int) *DedupGate {
	if capacity <= 0 {
		capacity = 200
	}
	return &DedupGate{
		seen:     make(map[string]struct{}, capacity),
		capacity: capacity,
	}
}

// Seen reports whether the id was already processed, recording it if
// not. Test and insert are one critical section, so the same id handed
// to two goroutines is accepted exactly once. Events without an id are
// never deduplicated; they cannot be proven duplicate or novel.
func (g *DedupGate) Seen(id string) bool {
	if id == "" {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[id]; ok {
		return true
	}
	g.seen[id] = struct{}{}
	g.queue = append(g.queue, id)
	if len(g.queue) > g.capacity {
		oldest := g.queue[0]
		g.queue = g.queue[1:]
		delete(g.seen, oldest)
	}
	return false
}

// Len returns how many ids are currently remembered.
func (g *DedupGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}
