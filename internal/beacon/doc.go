// Package beacon derives canonical identity keys from BLE advertisements and
// parses the preload text blocks that declare expected devices up front.
//
// A canonical key takes one of three shapes:
//
//	AA:BB:CC:DD:EE:FF                          raw hardware address
//	EDS_<20 hex>                               Eddystone UID (namespace + instance)
//	IBC_<32 hex uuid><4 hex major><4 hex minor> Apple iBeacon
//
// Keys are a stable identity contract: they are persisted, used as MQTT topic
// segments and exposed by the API, so their format never changes once issued.
//
// # Identity parsing
//
// Parse searches the hex-encoded advertisement for a fixed frame header and
// reads the identity at a fixed offset after it:
//
//	key, err := beacon.Parse("aa:bb:cc:dd:ee:ff", advHex)
//	if errors.Is(err, beacon.ErrMalformedAdvertisement) {
//	    // frame header present but the identity window is cut short
//	}
//
// # Preload text
//
// Preload blocks are freeform user text. One grammar serves two modes:
// ValidatePreloadIBeacon reports the first bad row as "Line <n>: <reason>",
// ParsePreloadIBeacon silently skips bad rows and returns the rest.
//
//	# uuid, major, minor (major/minor accept decimal, 0x-hex or bare hex)
//	E2C56DB5-DFFB-48D2-B060-D0F5A71096E0, 1, 0x10
//	FDA50693A4E24FB1AFCFC6EB07647825 0010 ffff; 74278BDAB64445208F0C720EAF059935
//
// Raw key blocks list already-canonical keys separated by commas or whitespace
// and are read with ParsePreloadKeys.
//
// Everything in this package is pure and safe for concurrent use.
package beacon
