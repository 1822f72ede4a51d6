package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/server/auth"
)

type ctxKey string

const identityKey ctxKey = "identity"

func identityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(identityKey).(auth.Identity)
	return id
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.ObserveRequest(route, m.Code, m.Duration.Seconds())
		s.logger.Info(r.Context(), "handled",
			"method", r.Method, "route", route, "status", m.Code, "duration", m.Duration, "bytes", m.Written)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := identify(r, s.secret)
		if err != nil {
			writeError(r.Context(), s.logger, w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

// identify reads the bearer token from the Authorization header, falling
// back to the access_token query parameter used by websocket clients.
func identify(r *http.Request, secret []byte) (auth.Identity, error) {
	token := ""
	if h := r.Header.Get(common.AuthorizationHeaderName); h != "" {
		var ok bool
		token, ok = strings.CutPrefix(h, "Bearer ")
		if !ok {
			return auth.Identity{}, common.ErrUnauthorized
		}
	} else {
		token = r.URL.Query().Get(common.AccessTokenQueryParam)
	}
	if token == "" {
		return auth.Identity{}, common.ErrUnauthorized
	}
	return auth.ParseToken(token, secret)
}

// UserIdentifier adapts the bearer-token check for the websocket handler.
func UserIdentifier(secret []byte) func(*http.Request) (string, error) {
	return func(r *http.Request) (string, error) {
		id, err := identify(r, secret)
		if err != nil {
			return "", err
		}
		return id.UserID, nil
	}
}
