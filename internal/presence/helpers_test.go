package presence

import (
	"sync"
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
)

const (
	testUUID  = "E2C56DB5DFFB48D2B060D0F5A71096E0"
	testMajor = "0001"
	testMinor = "00FF"
)

var (
	t0          = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testIBeacon = beacon.Key("IBC_" + testUUID + testMajor + testMinor)
)

func ibeaconAdv() string {
	return "0201061AFF4C000215" + testUUID + testMajor + testMinor + "C5"
}

// fakeClock is a settable clock for dispatcher and service tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock { return &fakeClock{now: at} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	c.now = at
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// changeRecorder collects state changes.
type changeRecorder struct {
	mu      sync.Mutex
	changes []StateChange
}

func (r *changeRecorder) OnStateChange(c StateChange) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *changeRecorder) all() []StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StateChange, len(r.changes))
	copy(out, r.changes)
	return out
}

// transitions returns only the changes that are not registrations.
func (r *changeRecorder) transitions() []StateChange {
	var out []StateChange
	for _, c := range r.all() {
		if !c.Registered() {
			out = append(out, c)
		}
	}
	return out
}

// eventRecorder collects dispatcher events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) HandleEvent(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// observerRecorder counts Observer calls.
type observerRecorder struct {
	mu      sync.Mutex
	dropped []error
	skipped []error
	learned []beacon.Key
}

func (o *observerRecorder) MessageDropped(err error) {
	o.mu.Lock()
	o.dropped = append(o.dropped, err)
	o.mu.Unlock()
}

func (o *observerRecorder) EntrySkipped(err error) {
	o.mu.Lock()
	o.skipped = append(o.skipped, err)
	o.mu.Unlock()
}

func (o *observerRecorder) DeviceLearned(key beacon.Key) {
	o.mu.Lock()
	o.learned = append(o.learned, key)
	o.mu.Unlock()
}

func packetAt(key beacon.Key, at time.Time, rssi int) Packet {
	return Packet{Key: key, MAC: "AA:BB:CC:DD:EE:FF", RSSI: &rssi, Timestamp: at}
}
