// Package store opens the SQLite database targeted by a repair run.
//
// Unlike a store that owns its schema, this package never creates or
// migrates anything: the target database belongs to another application and
// must already exist. Open fails if the file is missing rather than leaving
// an empty database behind.
//
// # Database Configuration
//
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=OFF: the data under repair is expected to violate
//     referential integrity; orphan sweeps and backfills depend on being
//     able to read and write such rows
//   - single connection: the run owns the store exclusively, SQLite's one
//     writer at a time is all the concurrency model needed
package store
