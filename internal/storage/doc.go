// Package storage is the relational data store behind the notification
// subsystem.
//
// The platform's CRUD layer owns most of these rows; this package exposes the
// narrow read/write surface dispatch and triggers need and ships three drivers:
//   - "memory": process-local maps (tests, local runs)
//   - "sqlite": embedded SQLite database file
//   - "postgres": the production database through gorm
package storage
