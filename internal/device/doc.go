// Package device persists the BLE devices blegate tracks.
//
// Two tables back it (see migrations/):
//   - devices: one row per tracker ever created, with its latest state
//   - presence_history: one row per home/away transition
//
// The live state is owned by presence.Table; this package is the durable
// copy. Recorder receives every StateChange (via an AsyncListener) and
// writes it with RecordTransition. At startup the learned keys are read back
// with ListLearnedKeys and handed to presence.Service.Restore, so auto-learned
// devices survive a restart.
//
// Thread Safety:
//   - SQLiteRepository is safe for concurrent use; database/sql serialises
//     access to the single SQLite connection.
package device
