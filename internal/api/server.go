// Package api exposes the HTTP surface: paginated history, the SSE and
// WebSocket live feeds, trend lookup, and a health snapshot.
//
// Authentication is out of scope; the deployment boundary (reverse
// proxy) enforces access policy.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradewatch/internal/hub"
	"tradewatch/internal/ingest"
	"tradewatch/internal/storage"
	logx "tradewatch/pkg/logx"
)

type Config struct {
	Addr           string
	AllowedOrigins []string

	// HeartbeatInterval paces SSE comments / WS pings that keep idle
	// connections from being reaped by intermediaries. 0 means 15s.
	HeartbeatInterval time.Duration
}

type Server struct {
	cfg   Config
	log   logx.Logger
	store storage.Store
	hub   *hub.Hub

	// counters feeds /healthz; nil is allowed in tests.
	counters func() ingest.Counters

	engine   *gin.Engine
	upgrader websocket.Upgrader
	started  time.Time
}

func New(cfg Config, store storage.Store, h *hub.Hub, counters func() ingest.Counters, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		cfg:      cfg,
		log:      log,
		store:    store,
		hub:      h,
		counters: counters,
		engine:   engine,
		started:  time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}

	engine.Use(gin.Recovery(), s.requestLog(), s.cors())

	engine.GET("/history", s.handleHistory)
	engine.GET("/trend/:stock_name", s.handleTrend)
	engine.GET("/alert", s.handleAlert)
	engine.GET("/alert/:stock_name", s.handleAlert)
	engine.GET("/ws", s.handleWS)
	engine.GET("/ws/:stock_name", s.handleWS)
	engine.GET("/healthz", s.handleHealthz)

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("dur", time.Since(start)))
	}
}

// cors mirrors the allowed-origins list into the standard response
// headers. The gin-contrib middleware would pull in more than these few
// lines are worth.
func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.originAllowedName(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return s.originAllowedName(origin)
}

func (s *Server) originAllowedName(origin string) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleHealthz(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"hub":    s.hub.Stats(),
	}
	if s.counters != nil {
		body["ingest"] = s.counters()
	}
	c.JSON(http.StatusOK, body)
}
