// Package database provides SQLite-based storage for idhunt runs.
//
// The RunDB stores:
//   - Every exported dossier as JSON, keyed by run ID
//   - One row per resolution, so a subject can be followed across runs
//
// SQLite is used through modernc.org/sqlite, which is CGO-free. The
// database is a single file in the XDG data directory.
package database
