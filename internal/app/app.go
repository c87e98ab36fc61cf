// Package app wires the pipeline together: config, logging, storage,
// the Telegram source, ingestion, the broadcast hub, the HTTP surface,
// and the retention job.
package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"tradewatch/internal/api"
	"tradewatch/internal/config"
	"tradewatch/internal/hub"
	"tradewatch/internal/ingest"
	"tradewatch/internal/runtime/supervisor"
	"tradewatch/internal/services/retention"
	"tradewatch/internal/source"
	"tradewatch/internal/source/telegram"
	"tradewatch/internal/storage"
	logx "tradewatch/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store     storage.Store
	hub       *hub.Hub
	adapter   *telegram.Adapter
	pipeline  *ingest.Pipeline
	api       *api.Server
	retention *retention.Service

	messages chan source.Message
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	store, err := openStore(cfg, logSvc.Logger())
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	h := hub.New(cfg.Hub.Buffer, logSvc.Logger().With(logx.String("comp", "hub")))

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return nil, err
	}
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		ChannelID:   cfg.Telegram.ChannelID,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	pipeline := ingest.New(store, h, logSvc.Logger().With(logx.String("comp", "ingest")))

	heartbeat, err := config.ParseDurationField("http.heartbeat_interval", cfg.HTTP.HeartbeatInterval)
	if err != nil {
		return nil, err
	}
	apiSrv := api.New(api.Config{
		Addr:              cfg.HTTP.Addr,
		AllowedOrigins:    cfg.HTTP.AllowedOrigins,
		HeartbeatInterval: heartbeat,
	}, store, h, pipeline.Counters, logSvc.Logger().With(logx.String("comp", "http")))

	maxAge, err := config.ParseDurationField("retention.max_age", cfg.Retention.MaxAge)
	if err != nil {
		return nil, err
	}
	retSvc, err := retention.New(retention.Config{
		Schedule: cfg.Retention.Schedule,
		MaxAge:   maxAge,
	}, store, logSvc.Logger().With(logx.String("comp", "retention")))
	if err != nil {
		store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		store:     store,
		hub:       h,
		adapter:   adapter,
		pipeline:  pipeline,
		api:       apiSrv,
		retention: retSvc,
		messages:  make(chan source.Message, 256),
	}, nil
}

func openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc := storage.Config{}
	if cfg.Storage != nil {
		sc.Driver = cfg.Storage.Driver
		sc.Path = cfg.Storage.Path
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		sc.BusyTimeout = busy
	} else {
		sc.Driver = "memory"
	}
	return storage.Open(sc, log.With(logx.String("comp", "storage")))
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.messages); err != nil {
		return err
	}

	a.sup.Go("ingest.run", func(c context.Context) error {
		return a.pipeline.Run(c, a.messages)
	})
	a.sup.Go("http.serve", func(c context.Context) error {
		return a.api.Run(c)
	})
	a.sup.Go("retention.run", func(c context.Context) error {
		return a.retention.Run(c)
	})

	// Hot reload: logging applies live; transport, storage, and listen
	// address need a restart.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: only the latest config matters.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(last, newCfg)
				last = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

func (a *App) applyReload(old, cur *config.Config) {
	if old != nil {
		if old.Telegram != cur.Telegram {
			a.log.Warn("telegram config changed; restart required")
		}
		if old.HTTP.Addr != cur.HTTP.Addr {
			a.log.Warn("http.addr changed; restart required")
		}
		if !storageEqual(old.Storage, cur.Storage) {
			a.log.Warn("storage config changed; restart required")
		}
		if old.Retention != cur.Retention {
			a.log.Warn("retention config changed; restart required")
		}
	}

	a.logs.Apply(logx.Config{
		Level:   cur.Logging.Level,
		Console: cur.Logging.Console,
		File: logx.FileConfig{
			Enabled: cur.Logging.File.Enabled,
			Path:    cur.Logging.File.Path,
		},
	})
	a.log.Info("config reloaded", logx.String("level", cur.Logging.Level))
}

func storageEqual(a, b *config.StorageConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	a.adapter.Stop()

	var err error
	if a.sup != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		err = a.sup.Stop(stopCtx)
	}

	if a.store != nil {
		a.store.Close()
	}
	_ = a.logs.Close()
	return err
}
