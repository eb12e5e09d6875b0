package presence

import (
	"sync"
	"sync/atomic"
)

// AsyncListener moves slow listeners (database, broker, websocket) off the
// serial loop. Calls are queued on a bounded buffer and run in order on one
// goroutine. When the buffer is full the call is dropped and counted.
type AsyncListener struct {
	name   string
	logger Logger
	state  StateListener
	events Subscriber

	queue   chan func()
	wg      sync.WaitGroup
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewAsyncListener starts the delivery goroutine. Either state or events may
// be nil; the corresponding method then does nothing.
func NewAsyncListener(name string, size int, logger Logger, state StateListener, events Subscriber) *AsyncListener {
	if size <= 0 {
		size = 256
	}
	a := &AsyncListener{
		name:   name,
		logger: orNoop(logger),
		state:  state,
		events: events,
		queue:  make(chan func(), size),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// OnStateChange implements StateListener.
func (a *AsyncListener) OnStateChange(change StateChange) {
	if a.state == nil {
		return
	}
	a.enqueue(func() { a.state.OnStateChange(change) })
}

// HandleEvent implements Subscriber.
func (a *AsyncListener) HandleEvent(ev Event) {
	if a.events == nil {
		return
	}
	a.enqueue(func() { a.events.HandleEvent(ev) })
}

// Dropped returns the number of calls discarded because the buffer was full.
func (a *AsyncListener) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops accepting calls, runs everything already queued and waits.
func (a *AsyncListener) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
}

func (a *AsyncListener) enqueue(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- fn:
	default:
		n := a.dropped.Add(1)
		a.logger.Warn("listener queue full, dropping", "listener", a.name, "dropped_total", n)
	}
}

func (a *AsyncListener) run() {
	defer a.wg.Done()
	for fn := range a.queue {
		a.call(fn)
	}
}

func (a *AsyncListener) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("listener panic recovered", "listener", a.name, "panic", r)
		}
	}()
	fn()
}
