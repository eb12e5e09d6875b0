package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
	"github.com/nerrad567/blegate/internal/presence"
)

func seedHistory(t *testing.T, repo *SQLiteRepository, key beacon.Key, n int, start time.Time, step time.Duration) {
	t.Helper()
	ctx := context.Background()
	if err := repo.RecordTransition(ctx, registration(key, presence.SourcePreload, start)); err != nil {
		t.Fatalf("registration error = %v", err)
	}
	from, to := presence.StateAway, presence.StateHome
	for i := 0; i < n; i++ {
		if err := repo.RecordTransition(ctx, transition(key, from, to, rssi(-50-i), start.Add(time.Duration(i)*step))); err != nil {
			t.Fatalf("RecordTransition() error = %v", err)
		}
		from, to = to, from
	}
}

func TestGetHistoryLimits(t *testing.T) {
	repo := setupTestRepo(t)
	seedHistory(t, repo, testIBeacon, 210, testTime, time.Second)
	ctx := context.Background()

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, defaultHistoryLimit},
		{"negative", -5, defaultHistoryLimit},
		{"explicit", 10, 10},
		{"clamped", 1000, maxHistoryLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := repo.GetHistory(ctx, testIBeacon, tt.limit)
			if err != nil {
				t.Fatalf("GetHistory() error = %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("len(entries) = %d, want %d", len(entries), tt.want)
			}
		})
	}
}

func TestGetHistoryUnknownKey(t *testing.T) {
	repo := setupTestRepo(t)

	entries, err := repo.GetHistory(context.Background(), "AA:BB:CC:DD:EE:FF", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}

	if _, err := repo.GetHistory(context.Background(), "", 10); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("GetHistory(\"\") error = %v, want ErrInvalidKey", err)
	}
}

func TestGetHistorySameTimestamp(t *testing.T) {
	repo := setupTestRepo(t)
	seedHistory(t, repo, testIBeacon, 3, testTime, 0)

	entries, err := repo.GetHistory(context.Background(), testIBeacon, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].ID < entries[1].ID {
		t.Errorf("ties not broken by id: %d before %d", entries[0].ID, entries[1].ID)
	}
}

func TestPruneHistory(t *testing.T) {
	repo := setupTestRepo(t)
	// 10 transitions one day apart ending at testTime.
	seedHistory(t, repo, testIBeacon, 10, testTime.Add(-9*24*time.Hour), 24*time.Hour)
	ctx := context.Background()

	n, err := repo.PruneHistory(ctx, 72*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if n != 6 {
		t.Errorf("PruneHistory() removed %d, want 6", n)
	}

	entries, err := repo.GetHistory(ctx, testIBeacon, 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("len(entries) = %d, want 4", len(entries))
	}

	if _, err := repo.PruneHistory(ctx, 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("PruneHistory(0) error = %v, want ErrInvalidRetention", err)
	}
}
