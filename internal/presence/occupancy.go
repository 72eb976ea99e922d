// Package presence holds the shared occupancy cache: the last computed
// unique-user count per room, written by the chat subsystem after every
// membership change and read by the HTTP activity endpoint. The cache is
// purely derived state, last-write-wins, with no independent write path.
package presence

import "sync"

type Occupancy struct {
	mu     sync.RWMutex
	counts map[string]int
}

func NewOccupancy() *Occupancy {
	return &Occupancy{counts: make(map[string]int)}
}

func (o *Occupancy) Set(roomID string, count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[roomID] = count
}

// Get returns the last published count for the room, zero when the room has
// never been written. Reads never trigger recomputation.
func (o *Occupancy) Get(roomID string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.counts[roomID]
}
