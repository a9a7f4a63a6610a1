// Package scheduler turns daily wall-clock triggers into task engine submissions.
//
// Trigger times are computed with robfig/cron in the configured timezone and
// waited on through clock.Clock, so tests can drive schedules with a fake clock.
package scheduler
