package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/blegate/internal/beacon"
	"github.com/nerrad567/blegate/internal/device"
	"github.com/nerrad567/blegate/internal/presence"
)

// DeviceView is a tracked device as returned by the API: the live tracker
// record plus what the store knows about it.
type DeviceView struct {
	Key             beacon.Key      `json:"key"`
	Name            string          `json:"name"`
	Kind            beacon.Kind     `json:"kind"`
	Source          presence.Source `json:"source"`
	State           presence.State  `json:"state"`
	RSSI            *int            `json:"rssi"`
	UUID            string          `json:"uuid,omitempty"`
	Major           string          `json:"major,omitempty"`
	Minor           string          `json:"minor,omitempty"`
	LastSeenSeconds float64         `json:"last_seen_seconds"`
	LastSeenAt      *time.Time      `json:"last_seen_at,omitempty"`
	LastChangedAt   *time.Time      `json:"last_changed_at,omitempty"`
	Tracked         bool            `json:"tracked"`
}

func viewFromRecord(r presence.Record) DeviceView {
	return DeviceView{
		Key:             r.Key,
		Name:            r.Name,
		Kind:            r.Key.Kind(),
		Source:          r.Source,
		State:           r.State,
		RSSI:            r.RSSI,
		UUID:            r.UUID,
		Major:           r.Major,
		Minor:           r.Minor,
		LastSeenSeconds: r.LastSeenSeconds,
		Tracked:         true,
	}
}

// viewFromStored describes a device the store knows but this run does not
// track.
func viewFromStored(d *device.Device) DeviceView {
	return DeviceView{
		Key:             d.Key,
		Name:            d.Name,
		Kind:            d.Kind,
		Source:          d.Source,
		State:           d.State,
		RSSI:            d.RSSI,
		UUID:            d.UUID,
		Major:           d.Major,
		Minor:           d.Minor,
		LastSeenSeconds: presence.NeverSeen,
		LastChangedAt:   d.LastChangedAt,
	}
}

// handleListDevices returns every tracked device in insertion order,
// optionally filtered by ?state=home|not_home.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var filter presence.State
	if q := r.URL.Query().Get("state"); q != "" {
		filter = presence.State(q)
		if filter != presence.StateHome && filter != presence.StateAway {
			writeBadRequest(w, "state must be home or not_home")
			return
		}
	}

	changed := s.lastChanged(r.Context())
	records := s.presence.Snapshot(s.now())
	views := make([]DeviceView, 0, len(records))
	for _, rec := range records {
		if filter != "" && rec.State != filter {
			continue
		}
		v := viewFromRecord(rec)
		v.LastChangedAt = changed[rec.Key]
		v.LastSeenAt = s.lastSeen(rec.Key)
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns one device. A key that is not tracked in this run
// but is in the store is returned with tracked=false.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)

	var stored *device.Device
	if s.devices != nil {
		d, err := s.devices.GetByKey(r.Context(), key)
		switch {
		case err == nil:
			stored = d
		case errors.Is(err, device.ErrDeviceNotFound):
		default:
			s.logger.Error("device lookup failed", "key", key, "error", err)
			writeInternalError(w, "failed to load device")
			return
		}
	}

	if rec, ok := s.presence.Get(key, s.now()); ok {
		v := viewFromRecord(rec)
		v.LastSeenAt = s.lastSeen(key)
		if stored != nil {
			v.LastChangedAt = stored.LastChangedAt
		}
		writeJSON(w, http.StatusOK, v)
		return
	}
	if stored != nil {
		writeJSON(w, http.StatusOK, viewFromStored(stored))
		return
	}
	writeNotFound(w, "device not found")
}

// handleDeviceHistory returns recent transitions, newest first.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeUnavailable(w, "device store not available")
		return
	}

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	key := keyParam(r)
	entries, err := s.devices.GetHistory(r.Context(), key, limit)
	if err != nil {
		if errors.Is(err, device.ErrInvalidKey) {
			writeBadRequest(w, "invalid device key")
			return
		}
		s.logger.Error("history query failed", "key", key, "error", err)
		writeInternalError(w, "failed to load history")
		return
	}
	if entries == nil {
		entries = []device.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"key":     key,
		"history": entries,
		"count":   len(entries),
	})
}

// lastChanged maps keys to their stored transition time. Store failures
// are logged and yield an empty map.
func (s *Server) lastChanged(ctx context.Context) map[beacon.Key]*time.Time {
	out := make(map[beacon.Key]*time.Time)
	if s.devices == nil {
		return out
	}
	stored, err := s.devices.List(ctx)
	if err != nil {
		s.logger.Warn("device list failed", "error", err)
		return out
	}
	for _, d := range stored {
		if d.LastChangedAt != nil {
			out[d.Key] = d.LastChangedAt
		}
	}
	return out
}

// lastSeen returns the receive time of the key's last packet, if any.
func (s *Server) lastSeen(key beacon.Key) *time.Time {
	if s.seen == nil {
		return nil
	}
	ts, ok := s.seen.LastSeen(key)
	if !ok {
		return nil
	}
	ts = ts.UTC()
	return &ts
}

// keyParam reads the {key} URL parameter. Keys are canonical upper case.
func keyParam(r *http.Request) beacon.Key {
	return beacon.Key(strings.ToUpper(chi.URLParam(r, "key")))
}
