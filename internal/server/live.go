package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the API key gates access; browsers on any origin may watch the feed
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveRuns streams every recorded run as a JSON text message until the
// client disconnects.
func (h *Handlers) LiveRuns(c echo.Context) error {
	if h.Cache == nil {
		return h.err(c, http.StatusServiceUnavailable, "run history is not configured", nil)
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	runs, err := h.Cache.SubscribeRuns(ctx)
	if err != nil {
		return h.err(c, http.StatusServiceUnavailable, "failed to subscribe to runs", map[string]any{"err": err.Error()})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		h.logger().WithError(err).Debug("websocket upgrade failed")
		return nil
	}
	defer conn.Close()

	log := h.logger().WithField("remote", c.RealIP())
	log.Info("live feed client connected")
	defer log.Info("live feed client disconnected")

	// Reader: handles pongs and notices the client going away.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(liveWriteWait))
			return nil
		case run, ok := <-runs:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteJSON(run); err != nil {
				log.WithError(err).Debug("live feed write failed")
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
