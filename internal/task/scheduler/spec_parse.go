package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// parser accepts 5- and 6-field cron specs plus descriptors such as @daily.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NormalizeSpec converts a daily "HH:MM" into a cron expression and passes
// anything else through. "cron:" forces cron parsing.
func NormalizeSpec(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("schedule required")
	}
	if strings.HasPrefix(strings.ToLower(s), "cron:") {
		s = strings.TrimSpace(s[len("cron:"):])
		if s == "" {
			return "", fmt.Errorf("cron schedule required after 'cron:'")
		}
		return s, nil
	}
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if hh > 23 || mm > 59 {
			return "", fmt.Errorf("invalid time of day %q", raw)
		}
		return fmt.Sprintf("%d %d * * *", mm, hh), nil
	}
	return s, nil
}

// ParseSchedule parses "HH:MM", a cron expression or a descriptor.
func ParseSchedule(raw string) (cron.Schedule, error) {
	spec, err := NormalizeSpec(raw)
	if err != nil {
		return nil, err
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q (use HH:MM like '11:00' or cron like '0 11 * * 1-5'): %w", raw, err)
	}
	return sched, nil
}
