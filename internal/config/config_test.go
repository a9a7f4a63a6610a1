package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
telegram:
  admin_id: 100
  channel_id: -1001
  poll_timeout: 10s
logging:
  level: info
  console: true
storage:
  driver: sqlite
  path: ./data/bot.db
roster:
  source: file
  path: ./users.xlsx
schedule:
  timezone: Europe/Moscow
metrics:
  enabled: false
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestParseYAMLWithEnvAndDefaults(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeFile(t, "config.yaml", sampleYAML))
	m.SetEnvLookup(envMap(map[string]string{
		EnvToken:     "123:abc",
		EnvChannelID: "-1002",
		EnvAdminID:   "not-a-number",
	}))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.ChannelID != -1002 {
		t.Fatalf("env overlay not applied: %+v", cfg.Telegram)
	}
	if cfg.Telegram.AdminID != 100 {
		t.Fatalf("bad env value should not override: %d", cfg.Telegram.AdminID)
	}
	if cfg.Schedule.DutyCheck != DefaultDutyCheck || cfg.Schedule.DutyNotify != DefaultDutyNotify ||
		cfg.Schedule.ChannelSync != DefaultChannelSync {
		t.Fatalf("schedule defaults: %+v", cfg.Schedule)
	}
	if cfg.News.MinLength != DefaultNewsMinLen {
		t.Fatalf("news default: %d", cfg.News.MinLength)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if m.Get() != cfg {
		t.Fatalf("Load should commit")
	}
}

func TestParseRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeFile(t, "config.json", `{"telegram":{"admin_id":1},"plugins":{}}`))
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), "plugins") {
		t.Fatalf("expected unknown field error, got %v", err)
	}

	m = NewConfigManager(writeFile(t, "config.json", `{"telegram":{"admin_id":1}}{}`))
	if _, err := m.Parse(); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Roster:    RosterConfig{Source: "bitrix24"},
		Messaging: MessagingConfig{Timeout: "soon"},
		Schedule:  ScheduleConfig{Timezone: "Mars/Olympus"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"telegram.token", "telegram.admin_id", "roster.webhook", "messaging.timeout", "schedule.timezone"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}

func TestReloadPublishesOnlyValidChanges(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", sampleYAML)
	m := NewConfigManager(path)
	m.SetEnvLookup(envMap(map[string]string{EnvToken: "t"}))
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	m.SetValidator(func(_ context.Context, c *Config) error { return Validate(c) })
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx := context.Background()
	if m.reload(ctx) {
		t.Fatalf("unchanged file should not publish")
	}

	if err := os.WriteFile(path, []byte(strings.Replace(sampleYAML, "level: info", "level: debug", 1)), 0o600); err != nil {
		t.Fatal(err)
	}
	if !m.reload(ctx) {
		t.Fatalf("changed file should publish")
	}
	got := <-ch
	if got.Logging.Level != "debug" {
		t.Fatalf("published level %q", got.Logging.Level)
	}

	if err := os.WriteFile(path, []byte(strings.Replace(sampleYAML, "source: file", "source: ftp", 1)), 0o600); err != nil {
		t.Fatal(err)
	}
	if m.reload(ctx) {
		t.Fatalf("invalid config should be rejected")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("rejected reload must keep the previous config")
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()

	a := WithDefaults(&Config{Roster: RosterConfig{Source: "bitrix24", Webhook: "https://x/rest/1/secret/"}})
	b := WithDefaults(&Config{Roster: RosterConfig{Source: "bitrix24", Webhook: "https://x/rest/1/other/"}})
	b.Schedule.DutyNotify = "15:30"

	changed, attrs := SummarizeConfigChange(a, b)
	if strings.Join(changed, ",") != "roster,schedule" {
		t.Fatalf("changed=%v", changed)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}
}
