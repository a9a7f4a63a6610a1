package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultDutyCheck   = "11:00"
	DefaultDutyNotify  = "16:00"
	DefaultChannelSync = "17:00"
	DefaultNewsMinLen  = 10
)

// Validate checks values the process cannot start without.
// It is also installed as the hot-reload validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required (or set "+EnvToken+")"))
	}
	if cfg.Telegram.AdminID == 0 {
		errs = append(errs, errors.New("telegram.admin_id is required (or set "+EnvAdminID+")"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	for _, src := range strings.Split(cfg.Roster.Source, ",") {
		switch strings.ToLower(strings.TrimSpace(src)) {
		case "", "file":
			if strings.TrimSpace(cfg.Roster.Path) == "" {
				errs = append(errs, errors.New("roster.path is required for source=file"))
			}
		case "bitrix24":
			if strings.TrimSpace(cfg.Roster.Webhook) == "" {
				errs = append(errs, errors.New("roster.webhook is required for source=bitrix24"))
			}
		default:
			errs = append(errs, fmt.Errorf("roster.source: unknown value %q", src))
		}
	}
	for _, f := range []struct{ path, raw string }{
		{"roster.cache_ttl", cfg.Roster.CacheTTL},
		{"roster.timeout", cfg.Roster.Timeout},
		{"messaging.timeout", cfg.Messaging.Timeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	if te := cfg.TaskEngine; te != nil {
		if _, err := ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
		}
	}
	if cfg.News.MinLength < 0 {
		errs = append(errs, errors.New("news.min_length must be >= 0"))
	}
	return errors.Join(errs...)
}

// WithDefaults fills empty fields with defaults, in place, and returns cfg.
func WithDefaults(cfg *Config) *Config {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./data/staffbot.db"
	}
	if cfg.Roster.Source == "" {
		cfg.Roster.Source = "file"
	}
	if cfg.Schedule.DutyCheck == "" {
		cfg.Schedule.DutyCheck = DefaultDutyCheck
	}
	if cfg.Schedule.DutyNotify == "" {
		cfg.Schedule.DutyNotify = DefaultDutyNotify
	}
	if cfg.Schedule.ChannelSync == "" {
		cfg.Schedule.ChannelSync = DefaultChannelSync
	}
	if cfg.News.MinLength == 0 {
		cfg.News.MinLength = DefaultNewsMinLen
	}
	if cfg.News.MaxPhotos == 0 {
		cfg.News.MaxPhotos = 10
	}
	if cfg.Messaging.RatePerSec == 0 {
		cfg.Messaging.RatePerSec = 20
	}
	return cfg
}
