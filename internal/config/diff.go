package config

import (
	"reflect"
	"sort"
	"strings"

	logx "staffbot/pkg/logx"
)

// SummarizeConfigChange lists changed sections and safe log fields.
// Secrets (token, webhook) are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.AdminID != nt.AdminID || ot.ChannelID != nt.ChannelID ||
		ot.InviteLink != nt.InviteLink || ot.GroupLog != nt.GroupLog ||
		ot.PollTimeout != nt.PollTimeout || (ot.Token != "") != (nt.Token != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int64("telegram.admin_id", nt.AdminID),
			logx.Int64("telegram.channel_id", nt.ChannelID),
			logx.String("telegram.poll_timeout", nt.PollTimeout),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}

	or, nr := oldCfg.Roster, newCfg.Roster
	webhookChanged := or.Webhook != nr.Webhook
	or.Webhook, nr.Webhook = "", ""
	if or != nr || webhookChanged {
		changed = append(changed, "roster")
		attrs = append(attrs,
			logx.String("roster.source", nr.Source),
			logx.Bool("roster.webhook_set", strings.TrimSpace(newCfg.Roster.Webhook) != ""),
			logx.String("roster.cache_ttl", nr.CacheTTL),
		)
	}
	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		s := newCfg.Schedule
		attrs = append(attrs,
			logx.String("schedule.timezone", s.Timezone),
			logx.String("schedule.duty_check", s.DutyCheck),
			logx.String("schedule.duty_notify", s.DutyNotify),
			logx.String("schedule.channel_sync", s.ChannelSync),
		)
	}
	if !reflect.DeepEqual(oldCfg.TaskEngine, newCfg.TaskEngine) {
		changed = append(changed, "task_engine")
	}
	if oldCfg.Messaging != newCfg.Messaging {
		changed = append(changed, "messaging")
		attrs = append(attrs, logx.Int("messaging.rate_per_sec", newCfg.Messaging.RatePerSec))
	}
	if oldCfg.News != newCfg.News {
		changed = append(changed, "news")
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	}

	sort.Strings(changed)
	return changed, attrs
}
