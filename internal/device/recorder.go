package device

import (
	"context"
	"time"

	"github.com/nerrad567/blegate/internal/presence"
)

// recordTimeout bounds one write to the store.
const recordTimeout = 5 * time.Second

// Logger is the logging surface used by the recorder and pruner.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder persists tracker state changes. It implements
// presence.StateListener and blocks on the database, so the service wires it
// through a presence.AsyncListener.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// OnStateChange implements presence.StateListener.
func (r *Recorder) OnStateChange(change presence.StateChange) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.repo.RecordTransition(ctx, change); err != nil && r.logger != nil {
		r.logger.Error("recording presence change failed",
			"key", change.Record.Key,
			"to", change.To,
			"error", err,
		)
	}
}

// RunPruner deletes history older than retention once at start and then
// every interval (default one hour) until ctx is cancelled. A non-positive
// retention disables pruning and returns immediately.
func RunPruner(ctx context.Context, repo Repository, retention, interval time.Duration, logger Logger) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}

	prune := func() {
		n, err := repo.PruneHistory(ctx, retention)
		if logger == nil {
			return
		}
		if err != nil {
			logger.Error("pruning presence history failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("pruned presence history", "rows", n, "retention", retention)
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
