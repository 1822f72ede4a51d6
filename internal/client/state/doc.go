// Package state holds the client's in-memory view of the sales sheet: rows
// kept in date order and the current lease holders per row.
//
// Both types are safe for concurrent use; the REPL and the event reconciler
// touch them from different goroutines.
package state
