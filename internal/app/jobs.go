package app

import (
	"context"
	"fmt"

	"staffbot/internal/clock"
	"staffbot/internal/task/scheduler"
	"staffbot/internal/workflow/channel"
	"staffbot/internal/workflow/duty"
	"staffbot/pkg/systemd"
)

// pass runs one scheduled job and returns a one-line summary.
type pass func(ctx context.Context) (string, error)

func dutyPass(phase func(context.Context) (duty.Report, error)) pass {
	return func(ctx context.Context) (string, error) {
		rep, err := phase(ctx)
		return fmt.Sprintf("total=%d done=%d unresolved=%d failed=%d", rep.Total, rep.Done, rep.Unresolved, rep.Failed), err
	}
}

func syncPass(run func(context.Context) (channel.Report, error)) pass {
	return func(ctx context.Context) (string, error) {
		rep, err := run(ctx)
		return fmt.Sprintf("allowed=%d current=%d removed=%d", rep.Allowed, rep.Current, len(rep.Removed)), err
	}
}

// withStatus publishes the last pass outcome as the systemd unit status.
func withStatus(name string, clk clock.Clock, run pass) scheduler.Job {
	return func(ctx context.Context) error {
		summary, err := run(ctx)
		_, _ = systemd.Status(statusLine(name, clk, summary, err))
		return err
	}
}

func statusLine(name string, clk clock.Clock, summary string, err error) string {
	at := clk.Now().Format("02.01 15:04")
	if err != nil {
		return fmt.Sprintf("%s %s: failed: %v", at, name, err)
	}
	return fmt.Sprintf("%s %s: %s", at, name, summary)
}
