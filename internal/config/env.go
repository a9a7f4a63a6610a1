package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables that override file values.
const (
	EnvToken      = "BOT_TOKEN"
	EnvAdminID    = "ADMIN_ID"
	EnvChannelID  = "CHANNEL_CHAT_ID"
	EnvInviteLink = "INVITE_LINK"
	EnvRosterPath = "CHANNEL_USERS_EXCEL"
	EnvWebhook    = "BITRIX24_WEBHOOK"
)

// ApplyEnv overlays secrets and deployment ids from the environment.
// Invalid numeric values are ignored so a typo never zeroes a configured id.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	id := func(key string, dst *int64) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				*dst = n
			}
		}
	}

	str(EnvToken, &cfg.Telegram.Token)
	id(EnvAdminID, &cfg.Telegram.AdminID)
	id(EnvChannelID, &cfg.Telegram.ChannelID)
	str(EnvInviteLink, &cfg.Telegram.InviteLink)
	str(EnvRosterPath, &cfg.Roster.Path)
	str(EnvWebhook, &cfg.Roster.Webhook)
}
