package presence

import (
	"sync"
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
)

// NeverSeen is returned by SecondsSinceLastSeen for a key with no packet.
const NeverSeen = 1e9

// Registry maps canonical keys to the time their last packet was received.
//
// It has a single writer (the serial loop) and may be read concurrently.
// Entries are never removed.
type Registry struct {
	mu       sync.RWMutex
	lastSeen map[beacon.Key]time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{lastSeen: make(map[beacon.Key]time.Time)}
}

// Ingest records the packet timestamp for its key. The latest write wins
// even when it is older than the stored value.
func (r *Registry) Ingest(p Packet) {
	r.mu.Lock()
	r.lastSeen[p.Key] = p.Timestamp
	r.mu.Unlock()
}

// SecondsSinceLastSeen returns how long ago key was last seen, clamped at
// zero for timestamps in the future. Unknown keys return NeverSeen.
func (r *Registry) SecondsSinceLastSeen(key beacon.Key, now time.Time) float64 {
	r.mu.RLock()
	ts, ok := r.lastSeen[key]
	r.mu.RUnlock()
	if !ok {
		return NeverSeen
	}
	d := now.Sub(ts).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// LastSeen returns the stored timestamp for key.
func (r *Registry) LastSeen(key beacon.Key) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.lastSeen[key]
	return ts, ok
}

// Len returns the number of distinct keys ever seen.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lastSeen)
}
