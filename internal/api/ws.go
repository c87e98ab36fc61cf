package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	logx "tradewatch/pkg/logx"
)

const wsWriteTimeout = 10 * time.Second

// handleWS serves the WebSocket live feed: GET /ws for all symbols,
// GET /ws/:stock_name for one. Frames carry the same JSON payload as
// the SSE feed; the reconciler client in internal/feed consumes this
// endpoint.
func (s *Server) handleWS(c *gin.Context) {
	topic, ok := topicFromPath(c)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.log.Debug("websocket upgrade failed", logx.Err(err))
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(topic)
	defer sub.Close()

	// Reader goroutine: the feed is one-way, but reading surfaces
	// close frames and liveness errors.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-readerDone:
			return
		case <-heartbeat.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case r, open := <-sub.Records():
			if !open {
				// Overflow drop or shutdown; tell the client to
				// reconnect and backfill.
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscription dropped"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(r); err != nil {
				return
			}
		}
	}
}
