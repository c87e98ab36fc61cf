// Package telegram adapts a Telegram channel into the source.Message
// boundary using the Bot API long poller.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"tradewatch/internal/source"
	logx "tradewatch/pkg/logx"
)

type Config struct {
	Token string

	// ChannelID restricts ingestion to one chat. 0 accepts posts from
	// any channel the bot can see (useful in test setups).
	ChannelID int64

	PollTimeout time.Duration
}

// Adapter receives channel posts and forwards them to an output
// channel without blocking the poll loop.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	out       chan<- source.Message
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedMessages counts posts dropped because the consumer was slower
	// than the Telegram poll loop. Logged periodically to avoid per-message spam.
	droppedMessages uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// Start begins long polling and forwards posts to out. It returns
// immediately; delivery runs until ctx is canceled or Stop is called.
func (a *Adapter) Start(ctx context.Context, out chan<- source.Message) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(3)
	a.runMu.Unlock()

	// Periodic summary for dropped posts (avoid noisy per-message logs).
	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				// Final flush.
				if n := atomic.SwapUint64(&a.droppedMessages, 0); n > 0 {
					a.log.Warn("incoming posts dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedMessages, 0); n > 0 {
					a.log.Warn("incoming posts dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
				}
			}
		}
	}()

	a.bot.Handle(tele.OnChannelPost, func(c tele.Context) error {
		a.forward(c.Message())
		return nil
	})
	// Some signal groups are plain supergroups, not broadcast channels.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		a.forward(c.Message())
		return nil
	})

	go func() {
		defer a.runWG.Done()
		a.bot.Start()
	}()

	go func() {
		defer a.runWG.Done()
		<-rctx.Done()
		a.bot.Stop()
	}()

	a.log.Info("telegram poller started", logx.Int64("channel_id", a.cfg.ChannelID))
	return nil
}

func (a *Adapter) forward(m *tele.Message) {
	if m == nil || m.Text == "" {
		return
	}
	if a.cfg.ChannelID != 0 && m.Chat.ID != a.cfg.ChannelID {
		return
	}
	msg := source.Message{
		ID:   int64(m.ID),
		Text: m.Text,
		Date: m.Time(),
	}
	select {
	case a.out <- msg:
	default:
		atomic.AddUint64(&a.droppedMessages, 1)
	}
}

// Stop halts polling and waits for the internal goroutines to exit.
func (a *Adapter) Stop() {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	a.running = false
	a.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.runWG.Wait()
}
