package presence

import (
	"math"
	"sync"
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
)

// Tracker is the presence state machine of one device.
//
// It starts Away. A packet addressed to it makes it Home; only a sweep that
// finds it idle for longer than the timeout makes it Away again. lastEmitted
// is the state last announced to listeners and is the only state kept.
type Tracker struct {
	key    beacon.Key
	name   string
	source Source
	uuid   string
	major  string
	minor  string

	lastEmitted State
	rssi        *int
}

func newTracker(key beacon.Key, source Source) *Tracker {
	t := &Tracker{
		key:         key,
		name:        key.Name(),
		source:      source,
		lastEmitted: StateAway,
	}
	if uuid, major, minor, ok := key.IBeaconParts(); ok {
		t.uuid, t.major, t.minor = uuid, major, minor
	}
	return t
}

// apply forces Home and records rssi. It reports whether the state changed.
func (t *Tracker) apply(p Packet) bool {
	t.rssi = p.RSSI
	if t.lastEmitted == StateHome {
		return false
	}
	t.lastEmitted = StateHome
	return true
}

// evaluate moves Home to Away when idle exceeds the timeout. It reports
// whether the state changed.
func (t *Tracker) evaluate(reg *Registry, now time.Time, idle time.Duration) bool {
	if t.lastEmitted != StateHome {
		return false
	}
	if reg.SecondsSinceLastSeen(t.key, now) <= idle.Seconds() {
		return false
	}
	t.lastEmitted = StateAway
	return true
}

func (t *Tracker) record(reg *Registry, now time.Time) Record {
	r := Record{
		Key:             t.key,
		Name:            t.name,
		Source:          t.source,
		State:           t.lastEmitted,
		UUID:            t.uuid,
		Major:           t.major,
		Minor:           t.minor,
		LastSeenSeconds: math.Round(reg.SecondsSinceLastSeen(t.key, now)*10) / 10,
	}
	if t.rssi != nil {
		v := *t.rssi
		r.RSSI = &v
	}
	return r
}

// Table holds every tracker for one service run.
//
// It subscribes to the dispatcher: a SweepEvent evaluates every tracker, a
// PacketEvent evaluates every tracker and then applies the packet to the
// tracker with the matching key. Trackers are never removed.
//
// Thread Safety: mutations happen on the serial loop; Get, Snapshot and
// Counts may be called from any goroutine.
type Table struct {
	registry *Registry
	idle     time.Duration

	mu       sync.RWMutex
	trackers map[beacon.Key]*Tracker
	order    []beacon.Key

	listenerMu sync.RWMutex
	listeners  []StateListener
}

// NewTable creates an empty table evaluated against reg with the given idle
// timeout.
func NewTable(reg *Registry, idle time.Duration) *Table {
	return &Table{
		registry: reg,
		idle:     idle,
		trackers: make(map[beacon.Key]*Tracker),
	}
}

// AddListener registers a state listener. Listeners are called in
// registration order.
func (t *Table) AddListener(l StateListener) {
	t.listenerMu.Lock()
	t.listeners = append(t.listeners, l)
	t.listenerMu.Unlock()
}

// Add creates a tracker for key. It is a no-op returning false when the key
// is already tracked. A new tracker is announced as StateUnknown -> Away.
func (t *Table) Add(key beacon.Key, source Source, at time.Time) bool {
	t.mu.Lock()
	if _, exists := t.trackers[key]; exists {
		t.mu.Unlock()
		return false
	}
	tr := newTracker(key, source)
	t.trackers[key] = tr
	t.order = append(t.order, key)
	change := StateChange{Record: tr.record(t.registry, at), From: StateUnknown, To: StateAway, At: at}
	t.mu.Unlock()

	t.notify([]StateChange{change})
	return true
}

// Has reports whether key is tracked.
func (t *Table) Has(key beacon.Key) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.trackers[key]
	return ok
}

// Get returns a snapshot of one tracker.
func (t *Table) Get(key beacon.Key, now time.Time) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.trackers[key]
	if !ok {
		return Record{}, false
	}
	return tr.record(t.registry, now), true
}

// Snapshot returns every tracker in insertion order.
func (t *Table) Snapshot(now time.Time) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.trackers[k].record(t.registry, now))
	}
	return out
}

// Counts returns the number of trackers and how many are Home.
func (t *Table) Counts() (total, home int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, tr := range t.trackers {
		if tr.lastEmitted == StateHome {
			home++
		}
	}
	return len(t.trackers), home
}

// Sweep evaluates every tracker at now.
func (t *Table) Sweep(now time.Time) {
	t.HandleEvent(SweepEvent{At: now})
}

// HandleEvent implements Subscriber.
func (t *Table) HandleEvent(ev Event) {
	var changes []StateChange

	t.mu.Lock()
	switch e := ev.(type) {
	case SweepEvent:
		changes = t.sweepLocked(e.At)
	case PacketEvent:
		p := e.Packet
		changes = t.sweepLocked(p.Timestamp)
		if tr, ok := t.trackers[p.Key]; ok {
			from := tr.lastEmitted
			if tr.apply(p) {
				changes = append(changes, StateChange{
					Record: tr.record(t.registry, p.Timestamp),
					From:   from,
					To:     StateHome,
					At:     p.Timestamp,
				})
			}
		}
	}
	t.mu.Unlock()

	t.notify(changes)
}

func (t *Table) sweepLocked(now time.Time) []StateChange {
	var changes []StateChange
	for _, k := range t.order {
		tr := t.trackers[k]
		if tr.evaluate(t.registry, now, t.idle) {
			changes = append(changes, StateChange{
				Record: tr.record(t.registry, now),
				From:   StateHome,
				To:     StateAway,
				At:     now,
			})
		}
	}
	return changes
}

func (t *Table) notify(changes []StateChange) {
	if len(changes) == 0 {
		return
	}
	t.listenerMu.RLock()
	listeners := make([]StateListener, len(t.listeners))
	copy(listeners, t.listeners)
	t.listenerMu.RUnlock()

	for _, c := range changes {
		for _, l := range listeners {
			l.OnStateChange(c)
		}
	}
}
