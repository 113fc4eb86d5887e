// Package sqlite provides a local, file-backed outbox store.
//
// The database is opened lazily on first use and shared for the lifetime of the
// Store. It is configured with:
//   - WAL journal mode
//   - synchronous=NORMAL
//   - a busy timeout for lock contention
//   - foreign keys enforced (failure rows cascade with their entry)
//   - a single connection, since SQLite allows one writer
//
// Entry ids come from an AUTOINCREMENT key, so they are never reused even after Clear.
package sqlite
