package config

import (
	"reflect"
	"sort"
	"strings"

	logx "lwbot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (telegram token, webhook URL
// query strings, NL API key) are reported only as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Reminders
	if strings.TrimSpace(oldCfg.Reminders.Timezone) != strings.TrimSpace(newCfg.Reminders.Timezone) {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.String("reminders.timezone", strings.TrimSpace(newCfg.Reminders.Timezone)),
		)
	}

	// Webhook (URL may embed credentials; log only presence)
	if oldCfg.Webhook != newCfg.Webhook {
		changed = append(changed, "webhook")
		attrs = append(attrs,
			logx.Bool("webhook.url_set", strings.TrimSpace(newCfg.Webhook.URL) != ""),
			logx.String("webhook.timeout", strings.TrimSpace(newCfg.Webhook.Timeout)),
			logx.Int("webhook.rate_per_sec", newCfg.Webhook.RatePerSec),
		)
	}

	// History. Nil means disabled.
	oldH, newH := derefHistory(oldCfg.History), derefHistory(newCfg.History)
	if (oldCfg.History != nil) != (newCfg.History != nil) || oldH != newH {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", strings.TrimSpace(newH.Driver)),
			logx.Bool("history.path_set", strings.TrimSpace(newH.Path) != ""),
			logx.String("history.retention", strings.TrimSpace(newH.Retention)),
		)
	}

	// NL (never log api key)
	oldN, newN := derefNL(oldCfg.NL), derefNL(newCfg.NL)
	if (oldCfg.NL != nil) != (newCfg.NL != nil) || oldN != newN {
		changed = append(changed, "nl")
		attrs = append(attrs,
			logx.Bool("nl.enabled", newN.Enabled),
			logx.String("nl.model", strings.TrimSpace(newN.Model)),
			logx.Bool("nl.api_key_set", strings.TrimSpace(newN.APIKey) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefHistory(h *HistoryConfig) HistoryConfig {
	if h == nil {
		return HistoryConfig{}
	}
	return *h
}

func derefNL(n *NLConfig) NLConfig {
	if n == nil {
		return NLConfig{}
	}
	return *n
}
