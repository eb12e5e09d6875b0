package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
	"github.com/nerrad567/blegate/internal/infrastructure/database"
	"github.com/nerrad567/blegate/internal/presence"
	_ "github.com/nerrad567/blegate/migrations"
)

const testIBeacon = beacon.Key("IBC_E2C56DB5DFFB48D2B060D0F5A71096E0000100FF")

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// setupTestRepo opens a migrated in-memory database.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	repo := NewSQLiteRepository(db.DB)
	repo.now = func() time.Time { return testTime }
	return repo
}

func rssi(v int) *int { return &v }

func record(key beacon.Key, source presence.Source, state presence.State, signal *int) presence.Record {
	r := presence.Record{Key: key, Name: key.Name(), Source: source, State: state, RSSI: signal}
	if uuid, major, minor, ok := key.IBeaconParts(); ok {
		r.UUID, r.Major, r.Minor = uuid, major, minor
	}
	return r
}

func registration(key beacon.Key, source presence.Source, at time.Time) presence.StateChange {
	r := record(key, source, presence.StateAway, nil)
	return presence.StateChange{Record: r, From: presence.StateUnknown, To: presence.StateAway, At: at}
}

func transition(key beacon.Key, from, to presence.State, signal *int, at time.Time) presence.StateChange {
	r := record(key, presence.SourcePreload, to, signal)
	return presence.StateChange{Record: r, From: from, To: to, At: at}
}

func TestUpsertAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	err := repo.Upsert(ctx, Device{Key: testIBeacon, Source: presence.SourcePreload, UUID: "E2C5", Major: "0001", Minor: "00FF"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	d, err := repo.GetByKey(ctx, testIBeacon)
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if d.Name != testIBeacon.Name() {
		t.Errorf("Name = %q, want %q", d.Name, testIBeacon.Name())
	}
	if d.Kind != beacon.KindIBeacon {
		t.Errorf("Kind = %q, want %q", d.Kind, beacon.KindIBeacon)
	}
	if d.State != presence.StateAway {
		t.Errorf("State = %q, want %q", d.State, presence.StateAway)
	}
	if d.RSSI != nil || d.LastChangedAt != nil {
		t.Errorf("RSSI = %v, LastChangedAt = %v, want nil", d.RSSI, d.LastChangedAt)
	}
	if !d.CreatedAt.Equal(testTime) {
		t.Errorf("CreatedAt = %v, want %v", d.CreatedAt, testTime)
	}
}

func TestUpsertInvalidKey(t *testing.T) {
	repo := setupTestRepo(t)

	if err := repo.Upsert(context.Background(), Device{}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Upsert() error = %v, want ErrInvalidKey", err)
	}
}

func TestGetByKeyNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.GetByKey(context.Background(), "AA:BB:CC:DD:EE:FF")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByKey() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRestoredKeepsLearnedSource(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	key := beacon.Key("AA:BB:CC:DD:EE:FF")

	if err := repo.RecordTransition(ctx, registration(key, presence.SourceLearned, testTime)); err != nil {
		t.Fatalf("RecordTransition() learned error = %v", err)
	}
	if err := repo.RecordTransition(ctx, registration(key, presence.SourceRestored, testTime.Add(time.Hour))); err != nil {
		t.Fatalf("RecordTransition() restored error = %v", err)
	}

	d, err := repo.GetByKey(ctx, key)
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if d.Source != presence.SourceLearned {
		t.Errorf("Source = %q, want %q", d.Source, presence.SourceLearned)
	}
	if !d.UpdatedAt.Equal(testTime.Add(time.Hour)) {
		t.Errorf("UpdatedAt = %v, want %v", d.UpdatedAt, testTime.Add(time.Hour))
	}
	if !d.CreatedAt.Equal(testTime) {
		t.Errorf("CreatedAt = %v, want %v", d.CreatedAt, testTime)
	}
}

func TestRecordTransition(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	steps := []presence.StateChange{
		registration(testIBeacon, presence.SourcePreload, testTime),
		transition(testIBeacon, presence.StateAway, presence.StateHome, rssi(-60), testTime.Add(time.Second)),
		transition(testIBeacon, presence.StateHome, presence.StateAway, nil, testTime.Add(3*time.Minute)),
	}
	for _, c := range steps {
		if err := repo.RecordTransition(ctx, c); err != nil {
			t.Fatalf("RecordTransition(%s->%s) error = %v", c.From, c.To, err)
		}
	}

	d, err := repo.GetByKey(ctx, testIBeacon)
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if d.State != presence.StateAway {
		t.Errorf("State = %q, want %q", d.State, presence.StateAway)
	}
	if d.RSSI == nil || *d.RSSI != -60 {
		t.Errorf("RSSI = %v, want -60 kept from the home transition", d.RSSI)
	}
	if d.LastChangedAt == nil || !d.LastChangedAt.Equal(testTime.Add(3*time.Minute)) {
		t.Errorf("LastChangedAt = %v, want %v", d.LastChangedAt, testTime.Add(3*time.Minute))
	}
	if d.UUID != "E2C56DB5DFFB48D2B060D0F5A71096E0" {
		t.Errorf("UUID = %q", d.UUID)
	}

	history, err := repo.GetHistory(ctx, testIBeacon, 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2 (registration is not a transition)", len(history))
	}
	if history[0].To != presence.StateAway || history[1].To != presence.StateHome {
		t.Errorf("history order = %s, %s; want newest first", history[0].To, history[1].To)
	}
	if history[1].RSSI == nil || *history[1].RSSI != -60 {
		t.Errorf("history[1].RSSI = %v, want -60", history[1].RSSI)
	}
}

func TestRecordTransitionInvalidKey(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.RecordTransition(context.Background(), presence.StateChange{To: presence.StateHome})
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("RecordTransition() error = %v, want ErrInvalidKey", err)
	}
}

func TestList(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, k := range []beacon.Key{"CC:CC:CC:CC:CC:CC", "AA:AA:AA:AA:AA:AA", "EDS_00112233445566778899"} {
		if err := repo.Upsert(ctx, Device{Key: k, Source: presence.SourceRaw}); err != nil {
			t.Fatalf("Upsert(%s) error = %v", k, err)
		}
	}

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("len(devices) = %d, want 3", len(devices))
	}
	if devices[0].Key != "AA:AA:AA:AA:AA:AA" || devices[2].Key != "EDS_00112233445566778899" {
		t.Errorf("order = %s, %s, %s; want sorted by key", devices[0].Key, devices[1].Key, devices[2].Key)
	}
	if devices[2].Kind != beacon.KindEddystone {
		t.Errorf("Kind = %q, want %q", devices[2].Kind, beacon.KindEddystone)
	}
}

func TestListLearnedKeys(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	changes := []presence.StateChange{
		registration("AA:AA:AA:AA:AA:AA", presence.SourceLearned, testTime),
		registration(testIBeacon, presence.SourcePreload, testTime),
		registration("BB:BB:BB:BB:BB:BB", presence.SourceLearned, testTime.Add(time.Second)),
	}
	for _, c := range changes {
		if err := repo.RecordTransition(ctx, c); err != nil {
			t.Fatalf("RecordTransition() error = %v", err)
		}
	}

	keys, err := repo.ListLearnedKeys(ctx)
	if err != nil {
		t.Fatalf("ListLearnedKeys() error = %v", err)
	}
	want := []beacon.Key{"AA:AA:AA:AA:AA:AA", "BB:BB:BB:BB:BB:BB"}
	if len(keys) != len(want) {
		t.Fatalf("ListLearnedKeys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestFromRecord(t *testing.T) {
	r := presence.Record{
		Key: testIBeacon, Name: testIBeacon.Name(), Source: presence.SourcePreload,
		State: presence.StateHome, RSSI: rssi(-70), UUID: "U", Major: "0001", Minor: "00FF",
	}

	d := FromRecord(r)
	if d.Key != r.Key || d.Kind != beacon.KindIBeacon || d.State != presence.StateHome || *d.RSSI != -70 {
		t.Errorf("FromRecord() = %+v", d)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Time
		wantErr bool
	}{
		{"2026-03-01T12:00:00.000Z", testTime, false},
		{"2026-03-01T12:00:00Z", testTime, false},
		{"2026-03-01T13:00:00+01:00", testTime, false},
		{"yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		got, err := parseTime(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTime(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
