package app

import (
	"testing"
	"time"

	"staffbot/internal/config"
	"staffbot/internal/roster"
	logx "staffbot/pkg/logx"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Storage: config.StorageConfig{Driver: "SQLite", Path: " ./data/x.db ", BusyTimeout: "2s"}}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Driver != "sqlite" || sc.Path != "./data/x.db" || sc.BusyTimeout != 2*time.Second {
		t.Fatalf("sc=%+v", sc)
	}

	cfg.Storage.Path = ""
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatal("sqlite without path should fail")
	}
	cfg.Storage = config.StorageConfig{Driver: "memory", BusyTimeout: "soon"}
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatal("bad duration should fail")
	}
}

func TestMapEngineConfig(t *testing.T) {
	t.Parallel()

	got, err := mapEngineConfig(&config.Config{})
	if err != nil || got.Workers != 2 || got.QueueSize != 64 || got.DefaultTimeout != 10*time.Minute {
		t.Fatalf("defaults: %+v %v", got, err)
	}
	got, err = mapEngineConfig(&config.Config{TaskEngine: &config.TaskEngineConfig{Workers: 4, DefaultTimeout: "1m"}})
	if err != nil || got.Workers != 4 || got.QueueSize != 64 || got.DefaultTimeout != time.Minute {
		t.Fatalf("override: %+v %v", got, err)
	}
}

func TestMapLogConfigTarget(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Telegram: config.TelegramConfig{GroupLog: " -100123 "}}
	cfg.Logging.Telegram.ThreadID = 7
	lc := mapLogConfig(cfg)
	if lc.Telegram.ChatID != -100123 || lc.Telegram.ThreadID != 7 {
		t.Fatalf("lc=%+v", lc.Telegram)
	}
	if parseChatID("log-chat") != 0 {
		t.Fatal("non-numeric chat id should map to 0")
	}
}

func TestNewRoster(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name     string
		rc       config.RosterConfig
		wantFile bool
		wantErr  bool
	}{
		{"file", config.RosterConfig{Source: "file", Path: "staff.xlsx"}, true, false},
		{"bitrix", config.RosterConfig{Source: "bitrix24", Webhook: "https://example.bitrix24.ru/rest/1/x", Timeout: "5s"}, false, false},
		{"both", config.RosterConfig{Source: "file, bitrix24", Path: "staff.csv", Webhook: "https://example.bitrix24.ru/rest/1/x"}, true, false},
		{"bad ttl", config.RosterConfig{Source: "file", CacheTTL: "forever"}, false, true},
		{"unknown", config.RosterConfig{Source: "ldap"}, false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, file, err := newRoster(&config.Config{Roster: tc.rc}, logx.Nop())
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v", err)
			}
			if err != nil {
				return
			}
			var _ roster.Provider = c
			if (file != nil) != tc.wantFile {
				t.Fatalf("file=%v", file)
			}
			if file != nil && file.Path != tc.rc.Path {
				t.Fatalf("path=%q", file.Path)
			}
		})
	}
}

func TestMapBroadcastConfig(t *testing.T) {
	t.Parallel()

	got := mapBroadcastConfig(&config.Config{})
	if got.Workers != 1 || got.RetryMax != 0 || got.QueueSize != 16 {
		t.Fatalf("defaults=%+v", got)
	}
	got = mapBroadcastConfig(&config.Config{Messaging: config.MessagingConfig{BroadcastWorkers: 3, BroadcastRetry: 2}})
	if got.Workers != 3 || got.RetryMax != 2 {
		t.Fatalf("got=%+v", got)
	}
}
