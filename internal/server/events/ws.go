package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/teamsync/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Identify resolves the user behind an upgrade request.
type Identify func(r *http.Request) (userID string, err error)

// WSHandler streams bus events to websocket clients. Scopes are taken from
// repeated "scope" query parameters.
type WSHandler struct {
	bus      *Bus
	identify Identify
	logger   logging.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(bus *Bus, identify Identify, logger logging.Logger) *WSHandler {
	return &WSHandler{
		bus:      bus,
		identify: identify,
		logger:   logger.With("module", "events-ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identify(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	scopes := r.URL.Query()["scope"]
	if len(scopes) == 0 {
		http.Error(w, "at least one scope is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan Event, h.bus.buffer)
	var forwarders sync.WaitGroup
	for _, scope := range scopes {
		sub := h.bus.Subscribe(scope, userID)
		defer sub.Close()

		forwarders.Add(1)
		go func() {
			defer forwarders.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-sub.C():
					if !ok {
						return
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
	h.logger.Debug(ctx, "subscriber connected", "user", userID, "scopes", scopes)

	go h.readLoop(conn, cancel)
	h.writeLoop(ctx, conn, out)

	cancel()
	forwarders.Wait()
	h.logger.Debug(ctx, "subscriber disconnected", "user", userID)
}

// readLoop drains control frames and cancels on the first read error,
// which is how a closed client connection surfaces.
func (h *WSHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case ev := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug(ctx, "websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
