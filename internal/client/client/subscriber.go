package client

import (
	"context"
	"errors"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/server/events"
)

// Subscribe streams bus events of scopes to handle until ctx is done or the
// connection drops. Events are delivered in the order the server sent them.
// It returns nil after ctx is cancelled and a *ConnectivityError when the
// stream breaks or cannot be opened.
func (c *HTTPClient) Subscribe(ctx context.Context, scopes []string, handle func(events.Event)) error {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	q := url.Values{}
	for _, s := range scopes {
		q.Add("scope", s)
	}
	if tok := c.currentToken(); tok != "" {
		q.Set(common.AccessTokenQueryParam, tok)
	}
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return decodeError(resp)
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		return &ConnectivityError{Op: "subscribe", Err: err}
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var ev events.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return &ConnectivityError{Op: "subscribe", Err: errors.New("server closed the stream")}
			}
			return &ConnectivityError{Op: "subscribe", Err: err}
		}
		handle(ev)
	}
}
