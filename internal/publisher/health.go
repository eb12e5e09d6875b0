package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/blegate/internal/infrastructure/mqtt"
)

// HealthStatus is the overall service status reported on the health topic.
type HealthStatus string

// Health statuses.
const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// Counter reports tracker totals. *presence.Table implements it.
type Counter interface {
	Counts() (total, home int)
}

// HealthMessage is the retained payload on blegate/system/health.
type HealthMessage struct {
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Devices       int          `json:"devices"`
	Home          int          `json:"home"`
	Timestamp     time.Time    `json:"timestamp"`
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Version is the service version reported in each message.
	Version string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	// QoS of the retained health message. Default: 1.
	QoS byte

	Publisher Publisher
	Counter   Counter
}

// HealthReporter periodically publishes service health.
type HealthReporter struct {
	version   string
	interval  time.Duration
	qos       byte
	publisher Publisher
	counter   Counter
	startTime time.Time
	topic     string

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	qos := cfg.QoS
	if qos == 0 {
		qos = 1
	}

	return &HealthReporter{
		version:   cfg.Version,
		interval:  interval,
		qos:       qos,
		publisher: cfg.Publisher,
		counter:   cfg.Counter,
		startTime: time.Now(),
		topic:     mqtt.Topics{}.SystemHealth(),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Start publishes "starting" and then reports every interval until ctx is
// cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	if err := h.publishStatus(HealthStarting, "service starting"); err != nil {
		h.logError("failed to publish starting health", err)
	}
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishNow publishes the current health immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// Message builds the health message for status at the current time.
func (h *HealthReporter) Message(status HealthStatus, reason string) HealthMessage {
	now := time.Now()
	msg := HealthMessage{
		Status:        status,
		Reason:        reason,
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Timestamp:     now.UTC(),
	}
	if h.counter != nil {
		msg.Devices, msg.Home = h.counter.Counts()
	}
	return msg
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus is degraded while nothing is tracked.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.counter != nil {
		if total, _ := h.counter.Counts(); total == 0 {
			return HealthDegraded, "no devices tracked"
		}
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(h.Message(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, h.qos, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
