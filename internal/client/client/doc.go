// Package client contains the CLI's transport and persistence bootstrap.
//
// # Overview
//
// The package provides:
//  1. An API contract (see the API interface) for the teamsync HTTP
//     endpoints: sales rows and columns, imports and record leases.
//  2. A concrete HTTP implementation (see HTTPClient) that injects the
//     bearer token and classifies failures.
//  3. A websocket subscriber streaming bus events for a set of scopes.
//  4. A gRPC health probe used to decide whether the client is online.
//  5. Local persistence bootstrap (OpenDatabase, RunMigrations) wiring an
//     SQLite database with embedded goose migrations.
//
// # Error Handling
//
// A request that never produced an HTTP response fails with a
// *ConnectivityError, which matches ErrUnavailable. A response with an
// error status fails with an *ApplicationError carrying the server's code
// and message; it matches the corresponding sentinel from internal/common.
// A denied lease is not an error: AcquireLock reports it in AcquireResult.
package client
