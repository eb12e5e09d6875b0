package presence

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
)

// SweepInterval returns the sweep period for an idle timeout: half the
// timeout, but never less than ten seconds.
func SweepInterval(idle time.Duration) time.Duration {
	const floor = 10 * time.Second
	if half := idle / 2; half > floor {
		return half
	}
	return floor
}

// Observer is told about decode failures and learned keys. Metrics
// implement it; every method must return quickly.
type Observer interface {
	MessageDropped(err error)
	EntrySkipped(err error)
	DeviceLearned(key beacon.Key)
}

type noopObserver struct{}

func (noopObserver) MessageDropped(error)     {}
func (noopObserver) EntrySkipped(error)       {}
func (noopObserver) DeviceLearned(beacon.Key) {}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// AutoLearn adds a tracker for every unknown key before its packet is
	// delivered.
	AutoLearn bool

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	Logger   Logger
	Observer Observer
}

// Dispatcher decodes gateway messages and broadcasts events.
//
// It is not safe to call HandleMessage and Sweep concurrently; the Service
// serialises them. Subscribe and Unsubscribe may be called at any time.
type Dispatcher struct {
	registry  *Registry
	table     *Table
	autoLearn bool
	now       func() time.Time
	logger    Logger
	observer  Observer

	subMu       sync.RWMutex
	subscribers []Subscriber
}

// NewDispatcher creates a dispatcher whose first subscriber is table.
func NewDispatcher(reg *Registry, table *Table, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		registry:  reg,
		table:     table,
		autoLearn: opts.AutoLearn,
		now:       opts.Now,
		logger:    orNoop(opts.Logger),
		observer:  opts.Observer,
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.observer == nil {
		d.observer = noopObserver{}
	}
	d.subscribers = []Subscriber{table}
	return d
}

// Subscribe adds s to the subscriber list. Subscribing the same value twice
// has no effect; the return value reports whether s was added.
func (d *Dispatcher) Subscribe(s Subscriber) bool {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, existing := range d.subscribers {
		if existing == s {
			return false
		}
	}
	d.subscribers = append(d.subscribers, s)
	return true
}

// Unsubscribe removes s. Removing an absent subscriber has no effect; the
// return value reports whether s was removed.
func (d *Dispatcher) Unsubscribe(s Subscriber) bool {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for i, existing := range d.subscribers {
		if existing == s {
			d.subscribers = append(d.subscribers[:i:i], d.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// HandleMessage processes one gateway message.
//
// Every valid entry is turned into a Packet stamped with the receive time,
// recorded in the registry and broadcast. Bad entries are skipped.
//
// Parameters:
//   - raw: JSON payload as received from the transport
//
// Returns:
//   - int: Number of packets broadcast
//   - error: ErrTransportDecode when the envelope is unusable; nothing is
//     changed in that case
func (d *Dispatcher) HandleMessage(raw []byte) (int, error) {
	now := d.now()

	entries, err := decodeEnvelope(raw)
	if err != nil {
		d.observer.MessageDropped(err)
		d.logger.Warn("dropping gateway message", "error", err, "bytes", len(raw))
		return 0, err
	}

	delivered := 0
	for i, entry := range entries {
		rep, err := decodeEntry(entry)
		if err != nil {
			d.skip(i, err)
			continue
		}

		key, err := beacon.Parse(rep.mac, rep.adv)
		if err != nil {
			d.skip(i, fmt.Errorf("%w: %w", ErrEntryDecode, err))
			continue
		}

		p := Packet{
			Key:              key,
			MAC:              rep.mac,
			RSSI:             rep.rssi,
			AdvertisementHex: rep.adv,
			Timestamp:        now,
		}
		d.registry.Ingest(p)

		if d.autoLearn && !d.table.Has(key) {
			if d.table.Add(key, SourceLearned, now) {
				d.observer.DeviceLearned(key)
				d.logger.Info("learned device", "key", key, "mac", rep.mac)
			}
		}

		d.broadcast(PacketEvent{Packet: p})
		delivered++
	}
	return delivered, nil
}

// Sweep broadcasts a SweepEvent stamped with the current time.
func (d *Dispatcher) Sweep() {
	d.broadcast(SweepEvent{At: d.now()})
}

func (d *Dispatcher) skip(index int, err error) {
	d.observer.EntrySkipped(err)
	d.logger.Debug("skipping device entry", "index", index, "error", err)
}

func (d *Dispatcher) broadcast(ev Event) {
	d.subMu.RLock()
	subs := make([]Subscriber, len(d.subscribers))
	copy(subs, d.subscribers)
	d.subMu.RUnlock()

	for _, s := range subs {
		s.HandleEvent(ev)
	}
}
