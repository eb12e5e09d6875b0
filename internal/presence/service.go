package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
)

// Transport delivers gateway messages. *mqtt.Client satisfies it.
type Transport interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	Unsubscribe(topic string) error
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Topic and QoS of the gateway feed.
	Topic string
	QoS   byte

	IdleTimeout time.Duration
	AutoLearn   bool

	// InboxSize bounds queued messages and sweep ticks. Defaults to 256.
	InboxSize int

	// SweepInterval overrides SweepInterval(IdleTimeout) when non-zero.
	SweepInterval time.Duration

	Transport Transport
	Logger    Logger
	Observer  Observer

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// work is one unit on the serial loop: a transport payload or a sweep tick.
type work struct {
	payload []byte
	sweep   bool
}

// Service owns the registry, table and dispatcher for one run and drives
// them from a single goroutine.
//
// The transport subscription and the sweep ticker are acquired once in
// Start and released once in Stop. Transport callbacks and ticks only
// enqueue work; all state changes happen on the loop goroutine.
type Service struct {
	opts       ServiceOptions
	logger     Logger
	registry   *Registry
	table      *Table
	dispatcher *Dispatcher
	now        func() time.Time

	inbox    chan work
	done     chan struct{}
	loopDone chan struct{}
	wg       sync.WaitGroup

	mu         sync.Mutex
	started    bool
	subscribed bool
	stopOnce   sync.Once
	stopErr    error
}

// NewService creates a service. Nothing runs until Start.
func NewService(opts ServiceOptions) *Service {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = SweepInterval(opts.IdleTimeout)
	}

	reg := NewRegistry()
	table := NewTable(reg, opts.IdleTimeout)
	s := &Service{
		opts:     opts,
		logger:   orNoop(opts.Logger),
		registry: reg,
		table:    table,
		now:      opts.Now,
		inbox:    make(chan work, opts.InboxSize),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	s.dispatcher = NewDispatcher(reg, table, DispatcherOptions{
		AutoLearn: opts.AutoLearn,
		Now:       opts.Now,
		Logger:    opts.Logger,
		Observer:  opts.Observer,
	})
	return s
}

// Registry returns the service's registry.
func (s *Service) Registry() *Registry { return s.registry }

// Table returns the service's tracker table.
func (s *Service) Table() *Table { return s.table }

// Dispatcher returns the service's dispatcher.
func (s *Service) Dispatcher() *Dispatcher { return s.dispatcher }

// Preload adds trackers for configured iBeacons and raw keys. It returns the
// number of trackers created; duplicates are ignored.
func (s *Service) Preload(entries []beacon.PreloadEntry, keys []beacon.Key) int {
	now := s.now()
	added := 0
	for _, e := range entries {
		if s.table.Add(e.Key, SourcePreload, now) {
			added++
		}
	}
	for _, k := range keys {
		if s.table.Add(k, SourceRaw, now) {
			added++
		}
	}
	return added
}

// Restore adds trackers for keys learned in a previous run.
func (s *Service) Restore(keys []beacon.Key) int {
	now := s.now()
	added := 0
	for _, k := range keys {
		if s.table.Add(k, SourceRestored, now) {
			added++
		}
	}
	return added
}

// Start launches the loop and the sweep ticker, then subscribes to the
// gateway topic.
//
// Parameters:
//   - ctx: Cancelling it stops the loop and ticker; Stop is still needed to
//     release the subscription
//
// Returns:
//   - error: ErrAlreadyStarted, ErrStopped, ErrNoTransport or the
//     subscription failure. A failed Start leaves the service stopped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return ErrStopped
	default:
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.opts.Transport == nil {
		s.mu.Unlock()
		return ErrNoTransport
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.loop(ctx)
	go s.tick(ctx)

	if err := s.opts.Transport.Subscribe(s.opts.Topic, s.opts.QoS, s.onMessage); err != nil {
		_ = s.Stop() //nolint:errcheck // nothing subscribed yet
		return fmt.Errorf("subscribing to %s: %w", s.opts.Topic, err)
	}

	s.mu.Lock()
	select {
	case <-s.done:
		// Stop ran while subscribing.
		s.mu.Unlock()
		if err := s.opts.Transport.Unsubscribe(s.opts.Topic); err != nil {
			s.logger.Warn("presence unsubscribe failed", "topic", s.opts.Topic, "error", err)
		}
		return ErrStopped
	default:
	}
	s.subscribed = true
	s.mu.Unlock()

	s.logger.Info("presence service started",
		"topic", s.opts.Topic,
		"idle_timeout", s.opts.IdleTimeout,
		"sweep_interval", s.opts.SweepInterval,
		"auto_learn", s.opts.AutoLearn,
	)
	return nil
}

// Stop releases the subscription, stops the ticker and waits for the loop.
// It is safe to call more than once; later calls return the first result.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		subscribed := s.subscribed
		s.subscribed = false
		close(s.done)
		s.mu.Unlock()

		if subscribed {
			if err := s.opts.Transport.Unsubscribe(s.opts.Topic); err != nil {
				s.stopErr = fmt.Errorf("unsubscribing from %s: %w", s.opts.Topic, err)
				s.logger.Warn("presence unsubscribe failed", "topic", s.opts.Topic, "error", err)
			}
		}
		s.wg.Wait()
		s.logger.Info("presence service stopped")
	})
	return s.stopErr
}

// onMessage is the transport handler. It copies the payload onto the inbox
// and returns; it blocks only while the inbox is full.
func (s *Service) onMessage(_ string, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case s.inbox <- work{payload: buf}:
		return nil
	case <-s.done:
		return ErrStopped
	case <-s.loopDone:
		return ErrStopped
	}
}

func (s *Service) tick(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case s.inbox <- work{sweep: true}:
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.loopDone)
	for {
		select {
		case w := <-s.inbox:
			s.process(w)
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) process(w work) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("presence loop panic recovered", "panic", r)
		}
	}()

	if w.sweep {
		s.dispatcher.Sweep()
		return
	}
	// Envelope errors are logged and counted by the dispatcher.
	_, _ = s.dispatcher.HandleMessage(w.payload) //nolint:errcheck // reported via logger and observer
}
