package presence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Positions read from each gateway device entry. Other positions are ignored.
const (
	entryMAC  = 1
	entryRSSI = 2
	entryAdv  = 3
)

// report is one decoded device entry before identity parsing.
type report struct {
	mac  string
	rssi *int
	adv  string
}

// decodeEnvelope extracts the device entries from a gateway message:
//
//	{"devices": [[type, "AA:BB:CC:DD:EE:FF", -67, "0201061AFF4C...", ...], ...]}
func decodeEnvelope(raw []byte) ([]json.RawMessage, error) {
	var env struct {
		Devices *[]json.RawMessage `json:"devices"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportDecode, err)
	}
	if env.Devices == nil {
		return nil, fmt.Errorf("%w: missing devices", ErrTransportDecode)
	}
	return *env.Devices, nil
}

// decodeEntry reads MAC, RSSI and advertisement from one positional entry.
// MAC and advertisement are upper-cased.
func decodeEntry(raw json.RawMessage) (report, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return report{}, fmt.Errorf("%w: entry is not an array", ErrEntryDecode)
	}
	if len(fields) <= entryAdv {
		return report{}, fmt.Errorf("%w: %d positions, need %d", ErrEntryDecode, len(fields), entryAdv+1)
	}

	var r report
	if err := json.Unmarshal(fields[entryMAC], &r.mac); err != nil {
		return report{}, fmt.Errorf("%w: mac is not a string", ErrEntryDecode)
	}
	rssi, err := decodeRSSI(fields[entryRSSI])
	if err != nil {
		return report{}, err
	}
	r.rssi = rssi
	if err := json.Unmarshal(fields[entryAdv], &r.adv); err != nil {
		return report{}, fmt.Errorf("%w: advertisement is not a string", ErrEntryDecode)
	}

	r.mac = strings.ToUpper(r.mac)
	r.adv = strings.ToUpper(r.adv)
	return r, nil
}

// decodeRSSI accepts null, a JSON number (fraction truncated) or a string
// holding an integer.
func decodeRSSI(raw json.RawMessage) (*int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: rssi: %v", ErrEntryDecode, err)
	}

	switch x := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		if n, err := x.Int64(); err == nil && n >= math.MinInt32 && n <= math.MaxInt32 {
			i := int(n)
			return &i, nil
		}
		f, err := x.Float64()
		if err != nil || math.Abs(f) > math.MaxInt32 {
			return nil, fmt.Errorf("%w: rssi %s out of range", ErrEntryDecode, x)
		}
		i := int(f)
		return &i, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("%w: non-numeric rssi %q", ErrEntryDecode, x)
		}
		return &n, nil
	default:
		return nil, fmt.Errorf("%w: non-numeric rssi", ErrEntryDecode)
	}
}
