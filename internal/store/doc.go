// Package store persists reconciled conversations using SQLite.
//
// # Architecture
//
// Archive is the single persistence type. The hub writes through it
// (write-behind, never on the ingest hot path) and the read API serves
// from it:
//
//   - threads: one row per thread holding registry metadata and the
//     latest reconciled state as a JSON snapshot
//   - events: an append-only ledger of every applied engine event with
//     its raw wire payload
//   - parity_reports: the most recent realtime-versus-history comparison
//     per thread
//
// The ledger is record-first: payloads are stored exactly as they
// arrived, so a thread can be re-reduced by mapping its rows back
// through the engine's adapter.
//
// # SQLite Configuration
//
// The archive uses modernc.org/sqlite (no cgo) with WAL mode so readers
// never block the writer:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The schema is created automatically on open, along with any missing
// parent directories for the database file.
//
// # Error Handling
//
// Lookup misses return sentinel errors callers can match with errors.Is:
//
//   - ErrThreadNotFound: no thread row with that id
//   - ErrReportNotFound: the thread has no parity report yet
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Tests open a real archive against a file in t.TempDir(); there is no
// mock. The archive is small enough that every test exercises actual
// SQL.
package store
