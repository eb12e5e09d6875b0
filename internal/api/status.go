package api

import (
	"net/http"
	"runtime"
	"time"
)

// handleStatus reports process and tracker statistics.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	total, home := s.presence.Counts()
	keysSeen := 0
	if s.seen != nil {
		keysSeen = s.seen.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":        s.version,
		"uptime_seconds": int64(s.now().Sub(s.startTime) / time.Second),
		"presence": map[string]any{
			"devices": total,
			"home":    home,
			"away":    total - home,
			// Distinct keys heard, tracked or not.
			"keys_seen": keysSeen,
		},
		"websocket": map[string]any{
			"clients": s.hub.ClientCount(),
		},
		"runtime": map[string]any{
			"goroutines":    runtime.NumGoroutine(),
			"heap_alloc_mb": float64(mem.HeapAlloc) / 1024 / 1024,
			"sys_mb":        float64(mem.Sys) / 1024 / 1024,
			"num_gc":        mem.NumGC,
			"go_version":    runtime.Version(),
		},
	})
}
