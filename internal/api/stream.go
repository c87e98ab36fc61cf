package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradewatch/internal/record"
	logx "tradewatch/pkg/logx"
)

// handleAlert serves the SSE live feed: GET /alert streams every
// record, GET /alert/:stock_name streams one symbol (case-insensitive).
// Each event's payload is the JSON wire encoding of a TradingRecord.
func (s *Server) handleAlert(c *gin.Context) {
	topic, ok := topicFromPath(c)
	if !ok {
		return
	}

	sub := s.hub.Subscribe(topic)
	defer sub.Close()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			// Comment line; keeps proxies from closing an idle stream.
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case r, open := <-sub.Records():
			if !open {
				// Dropped by the hub (overflow) or shutting down. The
				// client sees EOF and reconnects.
				return
			}
			payload, err := json.Marshal(r)
			if err != nil {
				s.log.Error("encode record for sse", logx.Err(err))
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// topicFromPath resolves the optional :stock_name segment to a
// normalized topic filter. Empty path segment means all symbols.
func topicFromPath(c *gin.Context) (string, bool) {
	raw := c.Param("stock_name")
	if raw == "" {
		return "", true
	}
	sym := record.NormalizeSymbol(raw)
	if sym == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stock_name"})
		return "", false
	}
	return sym, true
}
