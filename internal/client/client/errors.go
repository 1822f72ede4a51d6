package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/teamsync/internal/common"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

// ConnectivityError reports a request that produced no server response.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrUnavailable, e.Err)
}

func (e *ConnectivityError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}

// ApplicationError is a non-2xx server response.
type ApplicationError struct {
	Status  int
	Code    string
	Message string
	HeldBy  *Holder
}

func (e *ApplicationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error %d (%s)", e.Status, e.Code)
	}
	return fmt.Sprintf("server error %d (%s): %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the response code onto the shared sentinels so callers can
// use errors.Is.
func (e *ApplicationError) Unwrap() error {
	switch e.Code {
	case "locked":
		return common.ErrLockHeld
	case "validation":
		return common.ErrValidation
	case "not_found":
		return common.ErrNotFound
	case "conflict":
		return common.ErrConflict
	case "forbidden":
		return common.ErrForbidden
	case "unauthorized", "token_expired":
		return ErrUnauthorized
	}
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// IsConnectivity reports whether err means the server could not be reached.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
