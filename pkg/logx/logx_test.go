package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "duty"))
	log.Info("notified", Int64("user_id", 42), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if m["comp"] != "duty" || m["message"] != "notified" || m["err"] != "boom" {
		t.Fatalf("unexpected fields: %v", m)
	}
	if m["user_id"].(float64) != 42 {
		t.Fatalf("user_id=%v", m["user_id"])
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}
	if log.Enabled(LevelInfo) {
		t.Fatalf("info should be disabled")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Error("nothing happens")
	Nop().With(String("a", "b")).Warn("still nothing")
}

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()

	got := formatTelegramJSON([]byte(`{"level":"warn","message":"roster empty","time":"x","b":"2","a":1}`))
	want := "[WARN] roster empty\n- a=1\n- b=2"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := formatTelegramJSON([]byte("plain")); got != "plain" {
		t.Fatalf("non-json passthrough: %q", got)
	}
	long := strings.Repeat("x", 5000)
	if got := formatTelegramJSON([]byte(long)); len(got) != 3500 {
		t.Fatalf("truncate len=%d", len(got))
	}
}
