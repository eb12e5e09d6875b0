package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/blegate/internal/beacon"
)

// preloadRequest is the body of POST /preload/validate.
type preloadRequest struct {
	IBeacon string `json:"ibeacon"`
	Keys    string `json:"keys"`
}

// preloadResponse reports the validation outcome and what would be loaded.
type preloadResponse struct {
	Valid   bool                  `json:"valid"`
	Error   string                `json:"error,omitempty"`
	Line    int                   `json:"line,omitempty"`
	Entries []beacon.PreloadEntry `json:"entries"`
	Keys    []beacon.Key          `json:"keys"`
}

// handleValidatePreload checks preload text the way configuration loading
// does. An invalid block is still a 200; valid=false carries the first bad
// row. Entries lists the rows that would be loaded regardless.
func (s *Server) handleValidatePreload(w http.ResponseWriter, r *http.Request) {
	var req preloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	resp := preloadResponse{
		Valid:   true,
		Entries: beacon.ParsePreloadIBeacon(req.IBeacon),
		Keys:    beacon.ParsePreloadKeys(req.Keys),
	}
	if err := beacon.ValidatePreloadIBeacon(req.IBeacon); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
		if ve, ok := err.(*beacon.ValidationError); ok { //nolint:errorlint // ValidatePreloadIBeacon returns it unwrapped
			resp.Line = ve.Line
		}
	}
	if resp.Entries == nil {
		resp.Entries = []beacon.PreloadEntry{}
	}
	if resp.Keys == nil {
		resp.Keys = []beacon.Key{}
	}

	writeJSON(w, http.StatusOK, resp)
}
