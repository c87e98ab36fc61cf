// Package retention prunes old records from the store on a cron
// schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"tradewatch/internal/storage"
	logx "tradewatch/pkg/logx"
)

type Config struct {
	// Schedule is a cron expression. Empty disables pruning entirely.
	Schedule string

	// MaxAge is how far back history is kept; records issued earlier
	// are removed on each run.
	MaxAge time.Duration
}

type Service struct {
	cfg   Config
	log   logx.Logger
	store storage.Store
	cron  *cron.Cron
}

func New(cfg Config, store storage.Store, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{cfg: cfg, log: log, store: store}
	if cfg.Schedule == "" {
		return s, nil
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("retention: max age must be positive with schedule %q", cfg.Schedule)
	}

	// SecondOptional accepts both 5-field and 6-field specs, plus
	// descriptors like "@daily".
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("retention: invalid schedule %q: %w", cfg.Schedule, err)
	}

	c := cron.New(cron.WithParser(parser))
	_, err := c.AddFunc(cfg.Schedule, func() { s.runOnce(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("retention: schedule job: %w", err)
	}
	s.cron = c
	return s, nil
}

// Enabled reports whether a schedule is configured.
func (s *Service) Enabled() bool { return s.cron != nil }

// Run starts the cron loop and blocks until ctx is canceled. With no
// schedule configured it just waits for cancellation.
func (s *Service) Run(ctx context.Context) error {
	if s.cron == nil {
		<-ctx.Done()
		return nil
	}
	s.cron.Start()
	s.log.Info("retention scheduled",
		logx.String("schedule", s.cfg.Schedule),
		logx.Duration("max_age", s.cfg.MaxAge))
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	// Let an in-flight prune finish.
	<-stopCtx.Done()
	return nil
}

func (s *Service) runOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.MaxAge)
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	removed, err := s.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("retention prune failed", logx.Err(err))
		return
	}
	if removed > 0 {
		s.log.Info("retention pruned records",
			logx.Int64("removed", removed),
			logx.Time("cutoff", cutoff))
	}
}
