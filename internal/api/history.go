package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tradewatch/internal/record"
	"tradewatch/internal/storage"
	logx "tradewatch/pkg/logx"
)

// handleHistory serves GET /history?skip=&limit=&stock_name=.
//
// Records come back newest-first; a count below the requested limit
// tells the client no further pages exist. Invalid pagination values
// are a 400, never silently clamped.
func (s *Server) handleHistory(c *gin.Context) {
	skip, ok := queryUint(c, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryUint(c, "limit", storage.DefaultQueryLimit)
	if !ok {
		return
	}
	// The default limit applies only when the parameter is absent. An
	// explicit limit=0 asks for an empty page and gets one; promoting it
	// to the default would make count >= limit on every page, so the
	// end-of-data signal could never fire.
	if limit == 0 {
		c.JSON(http.StatusOK, gin.H{"trading_plans": []record.TradingRecord{}, "count": 0})
		return
	}

	f := storage.QueryFilter{Skip: skip, Limit: limit}
	if raw := c.Query("stock_name"); raw != "" {
		sym := record.NormalizeSymbol(raw)
		if sym == "" {
			// Normalizes to nothing; no stored symbol can match.
			c.JSON(http.StatusOK, gin.H{"trading_plans": []record.TradingRecord{}, "count": 0})
			return
		}
		f.Symbol = sym
	}

	records, err := s.store.Query(c.Request.Context(), f)
	if err != nil {
		s.log.Error("history query failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trading_plans": records, "count": len(records)})
}

// handleTrend serves GET /trend/:stock_name: the latest record for the
// symbol plus its direction relative to the immediately preceding
// record, so clients don't need to hold history to show the indicator.
func (s *Server) handleTrend(c *gin.Context) {
	sym := record.NormalizeSymbol(c.Param("stock_name"))
	if sym == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stock_name"})
		return
	}

	ctx := c.Request.Context()
	latest, err := s.store.Query(ctx, storage.QueryFilter{Symbol: sym, Limit: 1})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trend query failed"})
		return
	}
	if len(latest) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no records for symbol"})
		return
	}

	cur := latest[0]
	resp := gin.H{
		"name":    sym,
		"current": cur,
		"trend":   record.TrendNone.String(),
	}
	prev, ok, err := s.store.PreviousFor(ctx, sym, cur.MessageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trend query failed"})
		return
	}
	if ok {
		resp["previous"] = prev
		resp["trend"] = record.TrendBetween(prev, cur).String()
	}
	c.JSON(http.StatusOK, resp)
}

// queryUint parses a non-negative integer query parameter. On failure
// it writes the 400 response and reports false.
func queryUint(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}
