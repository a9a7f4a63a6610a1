package app

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"staffbot/internal/config"
	"staffbot/internal/notifier"
	"staffbot/internal/notifier/broadcast"
	"staffbot/internal/observability/server"
	"staffbot/internal/roster"
	"staffbot/internal/storage"
	"staffbot/internal/task/engine"
	logx "staffbot/pkg/logx"
)

const (
	defaultRosterTTL     = 10 * time.Minute
	defaultRosterTimeout = 30 * time.Second
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     parseChatID(cfg.Telegram.GroupLog),
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func parseChatID(raw string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if (driver == "sqlite" || driver == "sqlite3") && path == "" {
		return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{Workers: 2, QueueSize: 64, DefaultTimeout: 10 * time.Minute, HistorySize: 100}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}
	if te.Workers > 0 {
		out.Workers = te.Workers
	}
	if te.QueueSize > 0 {
		out.QueueSize = te.QueueSize
	}
	d, err := config.ParseDurationOrDefault("task_engine.default_timeout", te.DefaultTimeout, out.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	out.DefaultTimeout = d
	return out, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	timeout, err := config.ParseDurationOrDefault("messaging.timeout", cfg.Messaging.Timeout, 15*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec: cfg.Messaging.RatePerSec,
		Timeout:    timeout,
		ChannelID:  cfg.Telegram.ChannelID,
		AdminID:    cfg.Telegram.AdminID,
	}, nil
}

func mapServerConfig(cfg *config.Config) server.Config {
	return server.Config{Enabled: cfg.Metrics.Enabled, Addr: cfg.Metrics.Addr, Pprof: cfg.Metrics.Pprof}
}

// newRoster builds the configured personnel sources behind a snapshot cache.
// Source is a comma-separated list, e.g. "file,bitrix24". file is nil unless
// a spreadsheet source is configured; it also backs the staff directory.
func newRoster(cfg *config.Config, log logx.Logger) (cached *roster.Cached, file *roster.FileProvider, err error) {
	rc := cfg.Roster
	ttl, err := config.ParseDurationOrDefault("roster.cache_ttl", rc.CacheTTL, defaultRosterTTL)
	if err != nil {
		return nil, nil, err
	}
	var srcs roster.Union
	for _, kind := range strings.Split(rc.Source, ",") {
		switch strings.ToLower(strings.TrimSpace(kind)) {
		case "", "file":
			file = &roster.FileProvider{Path: rc.Path, Sheet: rc.Sheet, Column: rc.Column}
			srcs = append(srcs, file)
		case "bitrix24":
			timeout, err := config.ParseDurationOrDefault("roster.timeout", rc.Timeout, defaultRosterTimeout)
			if err != nil {
				return nil, nil, err
			}
			srcs = append(srcs, roster.NewBitrixProvider(rc.Webhook,
				roster.WithHTTPClient(&http.Client{Timeout: timeout}),
				roster.WithRateLimit(rc.RatePerSec),
				roster.WithPageSize(rc.PageSize),
				roster.WithBitrixLogger(log),
			))
		default:
			return nil, nil, fmt.Errorf("roster.source: unknown value %q", kind)
		}
	}
	var src roster.Provider = srcs
	if len(srcs) == 1 {
		src = srcs[0]
	}
	return roster.NewCached(src, ttl, log), file, nil
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	m := cfg.Messaging
	workers := m.BroadcastWorkers
	if workers <= 0 {
		workers = 1
	}
	retry := m.BroadcastRetry
	if retry < 0 {
		retry = 0
	}
	return broadcast.Config{Workers: workers, QueueSize: 16, RetryMax: retry}
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}
