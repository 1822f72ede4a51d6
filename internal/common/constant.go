// Package common contains shared constants and sentinel errors used across
// teamsync components.
package common

// AuthorizationHeaderName carries the bearer token on HTTP requests.
const AuthorizationHeaderName = "Authorization"

// AccessTokenQueryParam carries the token on websocket upgrades, where
// browsers cannot set custom headers.
const AccessTokenQueryParam = "access_token"

// Well-known event-bus scopes.
const (
	ScopeSales       = "sales"
	ScopeBoardPrefix = "board:"
)

// BoardScope returns the bus scope of a board.
func BoardScope(boardID string) string {
	return ScopeBoardPrefix + boardID
}
