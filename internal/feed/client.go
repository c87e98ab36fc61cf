// Package feed implements the consumer side of the live-feed protocol:
// a reconnecting WebSocket client that seeds itself from the history
// endpoint and maintains a deduplicated local view of recent records.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tradewatch/internal/record"
	logx "tradewatch/pkg/logx"
)

// State is the connection lifecycle phase of a Client. The cycle is
// Connecting -> Live -> Disconnected -> Connecting, with no terminal
// state while Run keeps going.
type State int32

const (
	StateConnecting State = iota
	StateLive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateDisconnected:
		return "disconnected"
	default:
		return "connecting"
	}
}

type Config struct {
	// BaseURL is the server root, e.g. "http://127.0.0.1:8080".
	BaseURL string

	// Symbol filters the feed to one instrument. Empty subscribes to
	// all symbols.
	Symbol string

	// Backoff is the fixed wait between a disconnect and the next
	// connection attempt. 0 means 3s.
	Backoff time.Duration

	// HistoryLimit is the page size used when seeding from /history.
	// 0 means 50.
	HistoryLimit int

	// BackfillPages caps how many history pages a single reconnect
	// fetches. 0 means 4. The view's retention window bounds what is
	// kept anyway; this bounds what is transferred.
	BackfillPages int

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// Client runs the reconciliation loop for one feed. Run is the only
// goroutine that dials, so reconnection is single-flight by
// construction.
type Client struct {
	cfg   Config
	log   logx.Logger
	view  *View
	state atomic.Int32

	onRecord func(record.TradingRecord)

	reconnects atomic.Uint64
}

func New(cfg Config, view *View, log logx.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("feed: base url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("feed: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Symbol != "" {
		sym := record.NormalizeSymbol(cfg.Symbol)
		if sym == "" {
			return nil, fmt.Errorf("feed: symbol %q normalizes to nothing", cfg.Symbol)
		}
		cfg.Symbol = sym
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 3 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.BackfillPages <= 0 {
		cfg.BackfillPages = 4
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if view == nil {
		if cfg.Symbol != "" {
			view = NewTrendView()
		} else {
			view = NewView(0)
		}
	}
	return &Client{cfg: cfg, log: log, view: view}, nil
}

// OnRecord registers a callback invoked for every record newly applied
// to the view (deduplicated). Must be set before Run.
func (c *Client) OnRecord(fn func(record.TradingRecord)) { c.onRecord = fn }

func (c *Client) View() *View { return c.view }

func (c *Client) State() State { return State(c.state.Load()) }

// Reconnects counts completed Disconnected -> Connecting transitions.
func (c *Client) Reconnects() uint64 { return c.reconnects.Load() }

// Run drives the feed until ctx is canceled. Every pass through the
// loop is one full Connecting -> Live -> Disconnected cycle; failures
// anywhere put the client back into Connecting after the fixed backoff.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.state.Store(int32(StateConnecting))

		err := c.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.state.Store(int32(StateDisconnected))
		c.log.Warn("feed disconnected",
			logx.String("symbol", c.cfg.Symbol),
			logx.Err(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.Backoff):
		}
		c.reconnects.Add(1)
	}
}

// connectOnce performs one cycle: dial the live feed, seed from
// history, then consume until the transport fails. Dialing before the
// history query means records published during the seed are buffered on
// the socket; Apply's dedup reconciles any overlap.
func (c *Client) connectOnce(ctx context.Context) error {
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.feedURL(), nil)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial live feed: %w", err)
	}
	defer conn.Close()

	if err := c.seed(ctx); err != nil {
		return fmt.Errorf("seed from history: %w", err)
	}

	c.state.Store(int32(StateLive))
	c.log.Info("feed live",
		logx.String("symbol", c.cfg.Symbol),
		logx.Int("seeded", c.view.Len()))

	// Unblock the read loop when ctx ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	conn.SetPongHandler(func(string) error { return nil })
	for {
		var r record.TradingRecord
		if err := conn.ReadJSON(&r); err != nil {
			return err
		}
		c.apply(r)
	}
}

// seed pulls recent history pages and merges them into the view.
// Pages are newest-first; fetching stops at a short page or at the
// configured page cap, whichever comes first.
func (c *Client) seed(ctx context.Context) error {
	for page := 0; page < c.cfg.BackfillPages; page++ {
		records, err := c.fetchHistory(ctx, page*c.cfg.HistoryLimit)
		if err != nil {
			return err
		}
		for _, r := range records {
			c.apply(r)
		}
		if len(records) < c.cfg.HistoryLimit {
			return nil
		}
	}
	return nil
}

func (c *Client) apply(r record.TradingRecord) {
	if !c.view.Apply(r) {
		return
	}
	if c.onRecord != nil {
		c.onRecord(r)
	}
}

func (c *Client) fetchHistory(ctx context.Context, skip int) ([]record.TradingRecord, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.cfg.HistoryLimit))
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if c.cfg.Symbol != "" {
		q.Set("stock_name", c.cfg.Symbol)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/history?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		TradingPlans []record.TradingRecord `json:"trading_plans"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.TradingPlans, nil
}

func (c *Client) feedURL() string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	base = "ws" + strings.TrimPrefix(base, "http")
	if c.cfg.Symbol != "" {
		return base + "/ws/" + c.cfg.Symbol
	}
	return base + "/ws"
}
