// File: internal/metrics/metrics.go
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "signupflow"

// Outcome labels for the run counter.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the collectors for one process. The registry is private so
// a run never picks up the default process collectors.
//
// All methods are safe on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RunDuration       prometheus.Histogram
	RunsTotal         *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	WatcherPolls      prometheus.Counter
	MailboxCollisions prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a complete signup run.",
			Buckets:   []float64{15, 30, 60, 90, 120, 180, 240, 300, 600},
		}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Signup runs by outcome.",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"stage", "outcome"}),
		WatcherPolls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_polls_total",
			Help:      "Inbox listings performed while waiting for the confirmation email.",
		}),
		MailboxCollisions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mailbox_collisions_total",
			Help:      "Account creations rejected because the address was taken.",
		}),
	}
}

// Registry exposes the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, outcome(err)).Observe(d.Seconds())
}

// ObserveRun records the total duration and outcome of a run.
func (m *Metrics) ObserveRun(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
	m.RunsTotal.WithLabelValues(outcome(err)).Inc()
}

// WatcherPoll counts one inbox listing.
func (m *Metrics) WatcherPoll() {
	if m == nil {
		return
	}
	m.WatcherPolls.Inc()
}

// MailboxCollision counts one address collision.
func (m *Metrics) MailboxCollision() {
	if m == nil {
		return
	}
	m.MailboxCollisions.Inc()
}

// WriteTextfile writes the registry in the text exposition format for the
// node_exporter textfile collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
