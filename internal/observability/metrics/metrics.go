// Package metrics exposes bot activity as Prometheus metrics.
//
// Workflows never touch the registry directly: they publish events on the
// bus and Registry.Consume turns them into counters.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"staffbot/internal/eventbus"
	"staffbot/internal/task/engine"
)

// Registry holds all staffbot metrics on a private prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	// Workflow metrics
	AuthTotal       *prometheus.CounterVec
	NewsTotal       *prometheus.CounterVec
	DutyTotal       *prometheus.CounterVec
	ChannelTotal    *prometheus.CounterVec
	ChannelSyncSize prometheus.Gauge
	ChannelSyncDur  prometheus.Histogram
	MessagesFailed  prometheus.Counter

	// Task engine metrics
	TasksTotal   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Registry{
		reg: reg,
		AuthTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "staffbot_auth_events_total",
			Help: "Authorization workflow events by type and result",
		}, []string{"event", "result"}),
		NewsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "staffbot_news_events_total",
			Help: "News moderation events by type and result",
		}, []string{"event", "result"}),
		DutyTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "staffbot_duty_entries_total",
			Help: "Duty entries processed by phase",
		}, []string{"phase"}),
		ChannelTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "staffbot_channel_events_total",
			Help: "Channel membership events by type and result",
		}, []string{"event", "result"}),
		ChannelSyncSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "staffbot_channel_last_sync_removed",
			Help: "Subscribers removed by the last reconciliation",
		}),
		ChannelSyncDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "staffbot_channel_sync_duration_seconds",
			Help:    "Channel reconciliation duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		MessagesFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "staffbot_messages_failed_total",
			Help: "Outbound messages the platform rejected",
		}),
		TasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "staffbot_tasks_total",
			Help: "Background tasks by name and result",
		}, []string{"task", "result"}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "staffbot_task_duration_seconds",
			Help:    "Background task run time in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"task"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Consume updates metrics from bus events until ctx is done.
func (r *Registry) Consume(ctx context.Context, bus eventbus.Bus) {
	eventbus.Consume(ctx, bus, 256, r.Observe)
}

// Observe applies a single event.
func (r *Registry) Observe(e eventbus.Event) {
	if te, ok := e.Data.(engine.TaskEvent); ok {
		switch e.Type {
		case "task.finished":
			r.TasksTotal.WithLabelValues(te.Name, "ok").Inc()
			r.TaskDuration.WithLabelValues(te.Name).Observe(te.Duration.Seconds())
		case "task.failed":
			r.TasksTotal.WithLabelValues(te.Name, "error").Inc()
			r.TaskDuration.WithLabelValues(te.Name).Observe(te.Duration.Seconds())
		case "task.skipped":
			r.TasksTotal.WithLabelValues(te.Name, "skipped").Inc()
		case "task.dropped":
			r.TasksTotal.WithLabelValues(te.Name, "dropped").Inc()
		}
		return
	}

	out, _ := e.Data.(eventbus.Outcome)
	result := out.Result
	if result == "" {
		result = "ok"
	}
	switch e.Type {
	case eventbus.AuthRequested, eventbus.AuthApproved, eventbus.AuthDeclined:
		r.AuthTotal.WithLabelValues(e.Type, result).Inc()
	case eventbus.NewsSubmitted, eventbus.NewsReviewed, eventbus.NewsPublished:
		r.NewsTotal.WithLabelValues(e.Type, result).Inc()
	case eventbus.DutyChecked:
		r.DutyTotal.WithLabelValues("check").Add(float64(out.Count))
	case eventbus.DutyNotified:
		r.DutyTotal.WithLabelValues("notify").Add(float64(out.Count))
	case eventbus.ChannelJoined, eventbus.ChannelRemoved:
		r.ChannelTotal.WithLabelValues(e.Type, result).Inc()
	case eventbus.ChannelSynced:
		r.ChannelTotal.WithLabelValues(e.Type, result).Inc()
		r.ChannelSyncSize.Set(float64(out.Count))
		r.ChannelSyncDur.Observe(out.Duration.Seconds())
	case eventbus.MessageFailed:
		r.MessagesFailed.Inc()
	}
}
