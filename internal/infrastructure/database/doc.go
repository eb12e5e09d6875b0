// Package database provides SQLite connectivity for the blegate device store.
//
// This package manages:
//   - The connection (WAL mode, busy timeout, single writer)
//   - Embedded schema migrations with per-migration transactions
//   - Health checks and lifecycle
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration Strategy:
//
// Files are named YYYYMMDD_HHMMSS_description.up.sql with a matching
// .down.sql, and are embedded by the top-level migrations package. Changes
// are additive: new columns are NULLable or carry a DEFAULT.
package database
