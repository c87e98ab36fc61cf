// Package hub fans newly stored trading records out to live
// subscriptions.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Each subscription owns a bounded queue; a full queue drops the
//     subscription (closing it) instead of blocking the publisher.
//   - Publish is called only for records the store just accepted; the
//     hub never re-checks deduplication.
//
// Durability lives in the store; live delivery is best-effort and a
// dropped subscriber recovers through the history endpoint.
package hub

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"tradewatch/internal/record"
	logx "tradewatch/pkg/logx"
)

// DefaultBuffer is the per-subscription queue capacity when the
// configured value is zero.
const DefaultBuffer = 64

type Hub struct {
	log    logx.Logger
	buffer int

	mu   sync.RWMutex
	subs map[uint64]*Subscription
	seq  atomic.Uint64

	published   atomic.Uint64
	delivered   atomic.Uint64
	droppedSubs atomic.Uint64

	// dropWarn keeps overflow-drop logging from flooding the sinks
	// when many subscribers lag at once.
	dropWarn *rate.Limiter
}

// Stats is a point-in-time counter snapshot for observability output.
type Stats struct {
	Subscriptions int    `json:"subscriptions"`
	Published     uint64 `json:"published"`
	Delivered     uint64 `json:"delivered"`
	DroppedSubs   uint64 `json:"dropped_subscriptions"`
}

func New(buffer int, log logx.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Hub{
		log:      log,
		buffer:   buffer,
		subs:     map[uint64]*Subscription{},
		dropWarn: rate.NewLimiter(rate.Limit(1), 3),
	}
}

// Subscribe registers a delivery queue. topic is a normalized symbol,
// or empty for all symbols. Safe to call concurrently with Publish.
func (h *Hub) Subscribe(topic string) *Subscription {
	s := &Subscription{
		id:    h.seq.Add(1),
		topic: topic,
		ch:    make(chan record.TradingRecord, h.buffer),
		hub:   h,
	}
	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()
	return s
}

// Publish delivers r to every subscription whose topic is empty or
// equals r.Symbol. Subscriptions that cannot accept the record without
// blocking are dropped.
func (h *Hub) Publish(r record.TradingRecord) {
	h.published.Add(1)

	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	h.mu.RLock()
	snapshot := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.RUnlock()

	for _, s := range snapshot {
		if s.topic != "" && s.topic != r.Symbol {
			continue
		}
		if s.trySend(r) {
			h.delivered.Add(1)
			continue
		}
		// Slow consumer: closing beats unbounded backlog, and the
		// reconciler backfills the gap from history after reconnect.
		h.droppedSubs.Add(1)
		s.Close()
		if h.dropWarn.Allow() {
			h.log.Warn("subscription dropped (queue full)",
				logx.Uint64("sub", s.id),
				logx.String("topic", s.topic),
				logx.Int("queue", h.buffer))
		}
	}
}

// Unsubscribe removes s and releases its queue. Idempotent; safe from
// any goroutine, including the overflow path inside Publish.
func (h *Hub) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	s.Close()
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.subs)
	h.mu.RUnlock()
	return Stats{
		Subscriptions: n,
		Published:     h.published.Load(),
		Delivered:     h.delivered.Load(),
		DroppedSubs:   h.droppedSubs.Load(),
	}
}

// Subscription is a bounded, ordered delivery channel between the hub
// and one live connection. It is owned by the hub for its lifetime and
// never persisted.
type Subscription struct {
	id    uint64
	topic string
	ch    chan record.TradingRecord
	hub   *Hub
	once  sync.Once
}

// Records exposes the delivery queue. The channel is closed when the
// subscription is dropped or Close is called; a consumer ranging over
// it observes the close as its disconnect signal.
func (s *Subscription) Records() <-chan record.TradingRecord { return s.ch }

// Topic returns the symbol filter, empty for all symbols.
func (s *Subscription) Topic() string { return s.topic }

// Close removes the subscription from the hub and closes its queue.
// Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s.id)
		close(s.ch)
	})
}

// trySend attempts a non-blocking delivery. If the subscription was
// concurrently closed the send may panic on the closed channel; that is
// recovered here and reported as a failed delivery, mirroring how the
// queue-full case is handled.
func (s *Subscription) trySend(r record.TradingRecord) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}
