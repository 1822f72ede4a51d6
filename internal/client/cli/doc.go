// Package cli provides the interactive TeamSync command-line client.
//
// It drives a services.Workspace from a simple REPL: log in with an access
// token, browse and filter the sales sheet, take edit locks and change rows.
// Edits apply locally at once; while the server is unreachable they are
// kept as drafts and replayed when the connection returns.
//
// Key commands:
//   - login / logout
//   - list, show, columns, filter, sort
//   - create, edit, date, delete, import
//   - lock / unlock
//   - drafts, sync
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
