package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Reminders controls the scheduling engine itself.
	Reminders RemindersConfig `json:"reminders"`

	// Webhook is the default outbound delivery endpoint. Empty means
	// reminders are sent back to the originating chat.
	Webhook WebhookConfig `json:"webhook,omitempty"`

	// History is the optional delivery audit log. Omitted means disabled.
	History *HistoryConfig `json:"history,omitempty"`

	// NL is the optional natural-language entry point. Omitted means the
	// guided conversation flow is the only way to create reminders.
	NL *NLConfig `json:"nl,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// OwnerUserIDs restricts who may talk to the bot. Empty allows everyone.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
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

type RemindersConfig struct {
	// Timezone is the game server timezone used for clock-time input and
	// fire-time display (e.g. "UTC", "Europe/Berlin").
	Timezone string `json:"timezone"`
}

type WebhookConfig struct {
	URL string `json:"url"`
	// Timeout is a Go duration string for one delivery attempt.
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// HistoryConfig controls the delivery audit log.
//
// Example:
//
//	"history": { "driver": "file", "path": "./lwbot_history.jsonl", "retention": "720h" }
type HistoryConfig struct {
	Driver      string `json:"driver"` // "file" or "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Retention bounds how long records are kept; "0s" keeps them forever.
	Retention string `json:"retention,omitempty"`
	// PruneSpec is a cron expression for the retention sweep. Default "@daily".
	PruneSpec string `json:"prune_spec,omitempty"`
}

// NLConfig points at an OpenAI-compatible chat-completions endpoint used
// to turn free-form text into a reminder draft.
type NLConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model"`
	Timeout  string `json:"timeout,omitempty"` // Go duration string
}

// Validate checks cross-field constraints that the strict decoder cannot.
// It is also installed as the Watch() validator so a broken edit never
// replaces a good running config.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Reminders.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("reminders.timezone: %w", err)
		}
	}
	if _, err := ParseDurationField("webhook.timeout", c.Webhook.Timeout); err != nil {
		return err
	}
	if c.History != nil {
		switch strings.TrimSpace(c.History.Driver) {
		case "", "file", "sqlite":
		default:
			return fmt.Errorf("history.driver: unknown driver %q", c.History.Driver)
		}
		if strings.TrimSpace(c.History.Driver) != "" && strings.TrimSpace(c.History.Path) == "" {
			return errors.New("history.path is required when a driver is set")
		}
		if _, err := ParseDurationField("history.busy_timeout", c.History.BusyTimeout); err != nil {
			return err
		}
		if _, err := ParseDurationField("history.retention", c.History.Retention); err != nil {
			return err
		}
	}
	if c.NL != nil && c.NL.Enabled {
		if strings.TrimSpace(c.NL.Endpoint) == "" {
			return errors.New("nl.endpoint is required when nl.enabled")
		}
		if strings.TrimSpace(c.NL.Model) == "" {
			return errors.New("nl.model is required when nl.enabled")
		}
		if _, err := ParseDurationField("nl.timeout", c.NL.Timeout); err != nil {
			return err
		}
	}
	return nil
}

// Location resolves the configured server timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Reminders.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
