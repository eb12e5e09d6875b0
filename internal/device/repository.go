package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
	"github.com/nerrad567/blegate/internal/presence"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// timeLayout is fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000Z"
)

// Repository defines device persistence. It lets the API and the startup
// restore run against a fake in tests.
type Repository interface {
	// Upsert inserts or updates a device. An existing learned device keeps
	// its source when it comes back as restored.
	Upsert(ctx context.Context, d Device) error

	// RecordTransition upserts the device and, unless the change is a
	// registration, appends a history row. Both happen in one transaction.
	RecordTransition(ctx context.Context, change presence.StateChange) error

	// GetByKey returns ErrDeviceNotFound for an unknown key.
	GetByKey(ctx context.Context, key beacon.Key) (*Device, error)

	// List returns all devices ordered by key.
	List(ctx context.Context) ([]Device, error)

	// ListLearnedKeys returns the keys of auto-learned devices.
	ListLearnedKeys(ctx context.Context) ([]beacon.Key, error)

	// GetHistory returns transitions newest first (limit default 50, max 200).
	GetHistory(ctx context.Context, key beacon.Key, limit int) ([]HistoryEntry, error)

	// PruneHistory deletes transitions older than olderThan.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Upsert inserts or updates a device row.
func (r *SQLiteRepository) Upsert(ctx context.Context, d Device) error {
	if d.Key == "" {
		return ErrInvalidKey
	}
	return r.upsert(ctx, r.db, d, r.now())
}

func (r *SQLiteRepository) upsert(ctx context.Context, ex execer, d Device, at time.Time) error {
	if d.Name == "" {
		d.Name = d.Key.Name()
	}
	if d.Kind == "" {
		d.Kind = d.Key.Kind()
	}
	if d.State == presence.StateUnknown {
		d.State = presence.StateAway
	}
	ts := formatTime(at)

	_, err := ex.ExecContext(ctx, `
		INSERT INTO devices (key, name, kind, source, uuid, major, minor, state, rssi,
			last_changed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			source = CASE WHEN excluded.source = 'restored' THEN devices.source ELSE excluded.source END,
			uuid = excluded.uuid,
			major = excluded.major,
			minor = excluded.minor,
			state = excluded.state,
			rssi = COALESCE(excluded.rssi, devices.rssi),
			last_changed_at = COALESCE(excluded.last_changed_at, devices.last_changed_at),
			updated_at = excluded.updated_at`,
		string(d.Key), d.Name, string(d.Kind), string(d.Source),
		nullString(d.UUID), nullString(d.Major), nullString(d.Minor),
		string(d.State), nullInt(d.RSSI), nullTime(d.LastChangedAt),
		ts, ts,
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", d.Key, err)
	}
	return nil
}

// RecordTransition persists a state change.
func (r *SQLiteRepository) RecordTransition(ctx context.Context, change presence.StateChange) error {
	key := change.Record.Key
	if key == "" {
		return ErrInvalidKey
	}
	at := change.At
	if at.IsZero() {
		at = r.now()
	}

	d := FromRecord(change.Record)
	d.State = change.To
	if !change.Registered() {
		d.LastChangedAt = &at
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := r.upsert(ctx, tx, d, at); err != nil {
		return err
	}
	if !change.Registered() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO presence_history (device_key, from_state, to_state, rssi, created_at) VALUES (?, ?, ?, ?, ?)",
			string(key), string(change.From), string(change.To), nullInt(change.Record.RSSI), formatTime(at),
		); err != nil {
			return fmt.Errorf("inserting presence history: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transition: %w", err)
	}
	return nil
}

const deviceColumns = `key, name, kind, source, uuid, major, minor, state, rssi,
	last_changed_at, created_at, updated_at`

// GetByKey retrieves one device.
func (r *SQLiteRepository) GetByKey(ctx context.Context, key beacon.Key) (*Device, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE key = ?", string(key))
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device %s: %w", key, err)
	}
	return d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// ListLearnedKeys returns the keys to restore at startup.
func (r *SQLiteRepository) ListLearnedKeys(ctx context.Context) ([]beacon.Key, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT key FROM devices WHERE source = ? ORDER BY created_at, key",
		string(presence.SourceLearned),
	)
	if err != nil {
		return nil, fmt.Errorf("querying learned devices: %w", err)
	}
	defer rows.Close()

	var keys []beacon.Key
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning learned key: %w", err)
		}
		keys = append(keys, beacon.Key(k))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating learned keys: %w", err)
	}
	return keys, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(s rowScanner) (*Device, error) {
	var (
		d                   Device
		key, kind, source   string
		state               string
		uuid, major, minor  sql.NullString
		rssi                sql.NullInt64
		lastChanged         sql.NullString
		createdAt, updateAt string
	)
	if err := s.Scan(&key, &d.Name, &kind, &source, &uuid, &major, &minor, &state, &rssi,
		&lastChanged, &createdAt, &updateAt); err != nil {
		return nil, err
	}

	d.Key = beacon.Key(key)
	d.Kind = beacon.Kind(kind)
	d.Source = presence.Source(source)
	d.State = presence.State(state)
	d.UUID, d.Major, d.Minor = uuid.String, major.String, minor.String
	if rssi.Valid {
		v := int(rssi.Int64)
		d.RSSI = &v
	}

	var err error
	if lastChanged.Valid {
		t, err := parseTime(lastChanged.String)
		if err != nil {
			return nil, err
		}
		d.LastChangedAt = &t
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updateAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the storage layout and plain RFC 3339 for rows written
// by hand.
func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
