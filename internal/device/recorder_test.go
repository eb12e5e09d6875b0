package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
	"github.com/nerrad567/blegate/internal/presence"
)

type recordingLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

// failingRepo fails every write.
type failingRepo struct {
	Repository
	prunes int
	mu     sync.Mutex
}

func (f *failingRepo) RecordTransition(context.Context, presence.StateChange) error {
	return errors.New("disk full")
}

func (f *failingRepo) PruneHistory(context.Context, time.Duration) (int64, error) {
	f.mu.Lock()
	f.prunes++
	f.mu.Unlock()
	return 0, errors.New("disk full")
}

func TestRecorderPersistsChanges(t *testing.T) {
	repo := setupTestRepo(t)
	rec := NewRecorder(repo, nil)
	key := beacon.Key("AA:BB:CC:DD:EE:FF")

	rec.OnStateChange(registration(key, presence.SourceLearned, testTime))
	rec.OnStateChange(transition(key, presence.StateAway, presence.StateHome, rssi(-40), testTime.Add(time.Second)))

	d, err := repo.GetByKey(context.Background(), key)
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if d.State != presence.StateHome {
		t.Errorf("State = %q, want %q", d.State, presence.StateHome)
	}
}

func TestRecorderLogsFailures(t *testing.T) {
	logger := &recordingLogger{}
	rec := NewRecorder(&failingRepo{}, logger)

	rec.OnStateChange(registration("AA:BB:CC:DD:EE:FF", presence.SourceRaw, testTime))

	if len(logger.errors) != 1 {
		t.Errorf("errors logged = %d, want 1", len(logger.errors))
	}
}

func TestRecorderWithAsyncListener(t *testing.T) {
	repo := setupTestRepo(t)
	async := presence.NewAsyncListener("device-store", 8, nil, NewRecorder(repo, nil), nil)

	async.OnStateChange(registration(testIBeacon, presence.SourcePreload, testTime))
	async.Close()

	if _, err := repo.GetByKey(context.Background(), testIBeacon); err != nil {
		t.Errorf("GetByKey() after Close error = %v", err)
	}
}

func TestRunPrunerDisabled(t *testing.T) {
	repo := &failingRepo{}
	done := make(chan struct{})

	go func() {
		RunPruner(context.Background(), repo, 0, time.Millisecond, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPruner() with zero retention did not return")
	}
	if repo.prunes != 0 {
		t.Errorf("prunes = %d, want 0", repo.prunes)
	}
}

func TestRunPrunerStopsOnCancel(t *testing.T) {
	repo := &failingRepo{}
	logger := &recordingLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		RunPruner(ctx, repo, time.Hour, 5*time.Millisecond, logger)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPruner() did not stop on cancel")
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.prunes < 2 {
		t.Errorf("prunes = %d, want at least 2 (start plus ticks)", repo.prunes)
	}
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.errors) == 0 {
		t.Error("prune failures were not logged")
	}
}
