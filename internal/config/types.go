// Package config loads, validates, and hot-reloads the YAML/JSON
// configuration file.
package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	HTTP      HTTPConfig      `json:"http"`
	Hub       HubConfig       `json:"hub,omitempty"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Retention RetentionConfig `json:"retention,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// ChannelID selects the source channel; posts from any other chat
	// are ignored.
	ChannelID int64 `json:"channel_id"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type HTTPConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:8080".
	Addr string `json:"addr"`

	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	// HeartbeatInterval is a Go duration string pacing SSE comments and
	// WS pings. Empty means the server default.
	HeartbeatInterval string `json:"heartbeat_interval,omitempty"`
}

// HubConfig tunes the in-process broadcast hub.
type HubConfig struct {
	// Buffer is the per-subscription queue capacity. 0 means the hub
	// default.
	Buffer int `json:"buffer,omitempty"`
}

// StorageConfig selects the persistence driver. Nil means the in-memory
// store, which loses history on restart.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./tradewatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// RetentionConfig controls the scheduled history prune. With an empty
// schedule nothing is ever deleted.
type RetentionConfig struct {
	// Schedule is a cron expression (e.g. "0 3 * * *").
	Schedule string `json:"schedule,omitempty"`

	// MaxAge is a Go duration string; records older than this are
	// removed on each run.
	MaxAge string `json:"max_age,omitempty"`
}

// Validate checks cross-field constraints that the decoder cannot. It
// is also the hook Watch runs before publishing a reload.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.ChannelID == 0 {
		return errors.New("telegram.channel_id is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required")
	}
	if _, err := ParseDurationField("http.heartbeat_interval", c.HTTP.HeartbeatInterval); err != nil {
		return err
	}
	if c.Hub.Buffer < 0 {
		return errors.New("hub.buffer must be >= 0")
	}
	if c.Storage != nil {
		switch d := strings.TrimSpace(c.Storage.Driver); d {
		case "", "memory":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(c.Storage.Path) == "" {
				return fmt.Errorf("storage.path is required for driver %q", d)
			}
		default:
			return fmt.Errorf("storage.driver %q is not supported", d)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if c.Retention.Schedule != "" {
		if _, err := ParseDurationField("retention.max_age", c.Retention.MaxAge); err != nil {
			return err
		}
		if strings.TrimSpace(c.Retention.MaxAge) == "" {
			return errors.New("retention.max_age is required when retention.schedule is set")
		}
	}
	return nil
}
