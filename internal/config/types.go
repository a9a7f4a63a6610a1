package config

// Config is the on-disk configuration (JSON or YAML).
//
// Secrets are normally supplied through the environment (see ApplyEnv) so the
// file can be committed without them.
type Config struct {
	Telegram   TelegramConfig    `json:"telegram"`
	Logging    LoggingConfig     `json:"logging"`
	Storage    StorageConfig     `json:"storage"`
	Roster     RosterConfig      `json:"roster"`
	Schedule   ScheduleConfig    `json:"schedule"`
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`
	Messaging  MessagingConfig   `json:"messaging"`
	News       NewsConfig        `json:"news"`
	Metrics    MetricsConfig     `json:"metrics"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// AdminID receives approval requests and reconciliation summaries.
	AdminID int64 `json:"admin_id"`
	// ChannelID is the gated channel news is published to.
	ChannelID  int64  `json:"channel_id"`
	InviteLink string `json:"invite_link,omitempty"`
	// GroupLog is an optional chat id (as string, e.g. "-100123") for the log sink.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig example:
//
//	"storage": { "driver": "sqlite", "path": "./data/staffbot.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// RosterConfig selects where the list of valid personnel comes from.
//
// Source values:
//   - "file": a spreadsheet (.xlsx) or .csv at Path; Column names the name column
//     (default: first header among "фио", "имя", "name")
//   - "bitrix24": the HR system REST webhook
//
// Several sources may be combined: "file,bitrix24".
type RosterConfig struct {
	Source     string `json:"source"`
	Path       string `json:"path,omitempty"`
	Sheet      string `json:"sheet,omitempty"`
	Column     string `json:"column,omitempty"`
	Webhook    string `json:"webhook,omitempty"`
	PageSize   int    `json:"page_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	CacheTTL   string `json:"cache_ttl,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// ScheduleConfig holds the daily trigger times ("HH:MM" or a cron spec).
type ScheduleConfig struct {
	Timezone    string `json:"timezone,omitempty"`
	DutyCheck   string `json:"duty_check"`
	DutyNotify  string `json:"duty_notify"`
	ChannelSync string `json:"channel_sync"`
}

// TaskEngineConfig controls the worker pool that runs scheduled passes.
// Durations are Go duration strings.
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
}

type MessagingConfig struct {
	// RatePerSec caps outbound sends (platform limit is ~30/s globally).
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	// BroadcastWorkers and BroadcastRetry tune /notify fan-out; sends still
	// share RatePerSec.
	BroadcastWorkers int `json:"broadcast_workers,omitempty"`
	BroadcastRetry   int `json:"broadcast_retry,omitempty"`
}

type NewsConfig struct {
	MinLength int `json:"min_length,omitempty"`
	MaxPhotos int `json:"max_photos,omitempty"`
}

// MetricsConfig controls the ops HTTP server (/metrics, /healthz, optional pprof).
// Prefer binding to localhost.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`
}
