package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"staffbot/internal/clock"
	"staffbot/internal/storage"
	"staffbot/internal/workflow/channel"
	"staffbot/internal/workflow/duty"
)

func TestPassStatusLines(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	clk := clock.NewFake(time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC))
	check := dutyPass(func(context.Context) (duty.Report, error) {
		return duty.Report{Total: 3, Done: 2, Unresolved: 1}, nil
	})
	summary, err := check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := statusLine(JobDutyCheck, clk, summary, nil); got != "10.03 09:05 duty.check: total=3 done=2 unresolved=1 failed=0" {
		t.Fatalf("status=%q", got)
	}

	boom := errors.New("roster down")
	sync := syncPass(func(context.Context) (channel.Report, error) {
		return channel.Report{Current: 4, Removed: []storage.ChannelSubscriber{{UserID: 1}}}, boom
	})
	summary, err = sync(context.Background())
	if got := statusLine(JobChannelSync, clk, summary, err); got != "10.03 09:05 channel.sync: failed: roster down" {
		t.Fatalf("status=%q", got)
	}

	if err := withStatus(JobChannelSync, clk, sync)(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("job err=%v", err)
	}
}
