// Package storage persists registered posts and their serialized triggers.
//
// Drivers:
//   - "memory": process-local map (tests, ephemeral runs)
//   - "file": JSON snapshot rewritten atomically on every change
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
//   - "postgres": PostgreSQL via pgx connection pool
//
// Every driver failure is wrapped with ErrUnavailable; lookups of a missing id
// return ErrNotFound.
package storage
