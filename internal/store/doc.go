// Package store persists the bot's state.
//
// # Architecture
//
// Store is the contract shared by every backend. Collaborators (the counter
// machine, the command bindings) receive a Store instead of reaching for a
// global, so tests can inject MockStore or an isolated FileStore.
//
//   - FileStore: the default backend. Keeps the current-shape state in memory
//     and writes the whole document to a single JSON file after every
//     mutation (write-through).
//   - SQLiteStore: relational backend on modernc.org/sqlite with the same
//     contract; integrity is delegated to SQLite constraints and transactions.
//   - MockStore: in-memory implementation for collaborator tests, with
//     persist-failure injection.
//
// # Durability
//
// FileStore writes to a temporary file in the target directory, syncs it and
// renames it over the target, so the file on disk is always either the old or
// the new complete document. A failed write is returned wrapped in ErrPersist
// and the in-memory state is left as it was before the mutation.
//
// PeriodicFlusher re-persists the state on a fixed interval. It is optional;
// write-through already makes every successful mutation durable.
//
// # Loading
//
//   - Missing file: start from the empty current-version state.
//   - Undecodable file: the file is moved aside to
//     <path>.corrupt-<unix seconds> and the store starts empty.
//   - File present but unreadable (permissions, I/O error, a directory):
//     NewFileStore fails. Nothing is overwritten.
//   - Unsupported schema version: NewFileStore fails with
//     schema.ErrUnsupportedVersion. Nothing is overwritten.
//
// # Concurrency
//
// Every mutation runs under one lock (FileStore, MockStore) or one connection
// (SQLiteStore), including its read-modify-write step in UpdateUser.
package store
