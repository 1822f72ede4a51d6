package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/locks"
)

const maxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every non-2xx response.
type ErrorBody struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	HeldBy  *locks.Holder `json:"held_by,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(ctx context.Context, logger logging.Logger, w http.ResponseWriter, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error(ctx, "request failed", "error", err)
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, ErrorBody) {
	var held *locks.HeldError
	switch {
	case errors.As(err, &held):
		h := held.Holder
		return http.StatusLocked, ErrorBody{Code: "locked", Message: held.Error(), HeldBy: &h}
	case errors.Is(err, common.ErrLockHeld):
		return http.StatusLocked, ErrorBody{Code: "locked", Message: err.Error()}
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, ErrorBody{Code: "validation", Message: err.Error()}
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, ErrorBody{Code: "token_expired", Message: err.Error()}
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, ErrorBody{Code: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, ErrorBody{Code: "forbidden", Message: err.Error()}
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Code: "not_found", Message: err.Error()}
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict, ErrorBody{Code: "conflict", Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: "internal", Message: "internal error"}
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", common.ErrValidation)
		}
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}
