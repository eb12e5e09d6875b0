package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
	"github.com/nerrad567/blegate/internal/presence"
)

// GetHistory returns recent transitions for a device, newest first.
//
// Parameters:
//   - key: Canonical device key
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []HistoryEntry: Possibly empty; an unknown key is not an error
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteRepository) GetHistory(ctx context.Context, key beacon.Key, limit int) ([]HistoryEntry, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_key, from_state, to_state, rssi, created_at
		 FROM presence_history
		 WHERE device_key = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		string(key), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying presence history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e                   HistoryEntry
			deviceKey, from, to string
			rssi                sql.NullInt64
			createdAt           string
		)
		if err := rows.Scan(&e.ID, &deviceKey, &from, &to, &rssi, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning presence history: %w", err)
		}
		e.Key = beacon.Key(deviceKey)
		e.From = presence.State(from)
		e.To = presence.State(to)
		if rssi.Valid {
			v := int(rssi.Int64)
			e.RSSI = &v
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating presence history: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes transitions older than now-olderThan and returns the
// number of rows removed.
func (r *SQLiteRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := formatTime(r.now().Add(-olderThan))
	result, err := r.db.ExecContext(ctx, "DELETE FROM presence_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting presence history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
