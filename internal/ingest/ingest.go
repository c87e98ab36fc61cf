// Package ingest wires the inbound message stream to the extractor,
// store, and hub: raw text in, at most one stored record and one
// publish out.
package ingest

import (
	"context"
	"strings"
	"sync/atomic"

	"tradewatch/internal/hub"
	"tradewatch/internal/record"
	"tradewatch/internal/source"
	"tradewatch/internal/storage"
	logx "tradewatch/pkg/logx"
)

// planMarker pre-filters chatter: channel messages without it are not
// trading plans and are skipped without invoking the extractor.
const planMarker = "Trading Plan"

type Pipeline struct {
	store storage.Store
	hub   *hub.Hub
	log   logx.Logger

	ingested   atomic.Uint64
	duplicates atomic.Uint64
	rejected   atomic.Uint64
}

// Counters is a snapshot of pipeline totals for observability output.
type Counters struct {
	Ingested   uint64 `json:"ingested"`
	Duplicates uint64 `json:"duplicates"`
	Rejected   uint64 `json:"rejected"`
}

func New(store storage.Store, h *hub.Hub, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{store: store, hub: h, log: log}
}

// Run consumes messages until ctx is canceled or in closes. Extraction
// and storage failures never abort the loop; each message is processed
// independently.
func (p *Pipeline) Run(ctx context.Context, in <-chan source.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if err := p.Handle(ctx, msg); err != nil {
				// Storage-layer failure. The message stays unconsumed
				// from the pipeline's point of view; if the transport
				// re-delivers it, the idempotent insert absorbs it.
				p.log.Error("ingest failed, skipping message",
					logx.Int64("message_id", msg.ID), logx.Err(err))
			}
		}
	}
}

// Handle processes one raw message. A nil return means the message was
// fully dealt with: stored and published, recognized as a duplicate, or
// rejected by the extractor. A non-nil return means the store was
// unavailable and the message was not consumed.
func (p *Pipeline) Handle(ctx context.Context, msg source.Message) error {
	if !strings.Contains(msg.Text, planMarker) {
		return nil
	}

	r, err := record.Extract(msg.Text, msg.ID)
	if err != nil {
		p.rejected.Add(1)
		p.log.Debug("message rejected by extractor",
			logx.Int64("message_id", msg.ID), logx.Err(err))
		return nil
	}

	inserted, err := p.store.InsertIfAbsent(ctx, *r)
	if err != nil {
		return err
	}
	if !inserted {
		p.duplicates.Add(1)
		p.log.Debug("duplicate message_id, skipping", logx.Int64("message_id", msg.ID))
		return nil
	}

	// Publish only after the store accepted the record; the hub trusts
	// this ordering and never re-derives deduplication.
	p.hub.Publish(*r)
	p.ingested.Add(1)
	p.log.Info("trading plan ingested",
		logx.Int64("message_id", r.MessageID),
		logx.String("symbol", r.Symbol),
		logx.Float64("primary_buy", r.PrimaryBuy()))
	return nil
}

func (p *Pipeline) Counters() Counters {
	return Counters{
		Ingested:   p.ingested.Load(),
		Duplicates: p.duplicates.Load(),
		Rejected:   p.rejected.Load(),
	}
}
