// Package metrics exposes the Prometheus collectors of the download core.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourusername/trackfetch-go/internal/domain"
)

func init() {
	prometheus.MustRegister(
		PromJobsByState,
		PromJobsFinishedTotal,
		PromRetriesTotal,
		PromStalledJobs,
		PromZombieJobs,
		PromGateRejectionsTotal,
		PromCandidateTiersTotal,
		PromSearchDurationMilliseconds,
	)
}

var (
	// PromJobsByState holds the number of registry jobs per state.
	PromJobsByState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trackfetch_jobs",
		Help: "The number of jobs in the registry by state",
	}, []string{"state"})

	// PromJobsFinishedTotal counts jobs reaching a terminal state.
	PromJobsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackfetch_jobs_finished_total",
		Help: "The number of jobs that reached a terminal state",
	}, []string{"state"})

	// PromRetriesTotal counts automatic retries issued by the health monitor.
	PromRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trackfetch_job_retries_total",
		Help: "The number of stalled transfers requeued by the health monitor",
	})

	// PromStalledJobs holds the number of jobs stalled at the last tick.
	PromStalledJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trackfetch_jobs_stalled",
		Help: "The number of downloading jobs without progress at the last health tick",
	})

	// PromZombieJobs holds the number of jobs without progress for longer
	// than the zombie threshold.
	PromZombieJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trackfetch_jobs_zombie",
		Help: "The number of live jobs whose last progress is older than the zombie threshold",
	})

	// PromGateRejectionsTotal counts candidates rejected by the safety gate.
	PromGateRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackfetch_gate_rejections_total",
		Help: "The number of search candidates rejected by the safety gate",
	}, []string{"reason"})

	// PromCandidateTiersTotal counts admitted candidates per quality tier.
	PromCandidateTiersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackfetch_candidate_tiers_total",
		Help: "The number of admitted search candidates by quality tier",
	}, []string{"tier"})

	// PromSearchDurationMilliseconds records how long discovery took.
	PromSearchDurationMilliseconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trackfetch_search_duration_milliseconds",
		Help:    "The time it takes to find the best match for a track",
		Buckets: prometheus.ExponentialBuckets(125, 2, 10),
	}, []string{"outcome", "relaxed"})
)

// RecordGateRejection counts one candidate rejected for reason.
func RecordGateRejection(reason string) {
	PromGateRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordCandidateTier counts one admitted candidate.
func RecordCandidateTier(tier domain.QualityTier) {
	PromCandidateTiersTotal.WithLabelValues(tier.String()).Inc()
}

// RecordSearch records the duration of a discovery run.
func RecordSearch(outcome string, relaxed bool, duration time.Duration) {
	relaxedLabel := "false"
	if relaxed {
		relaxedLabel = "true"
	}
	PromSearchDurationMilliseconds.
		WithLabelValues(outcome, relaxedLabel).
		Observe(float64(duration.Nanoseconds()) / float64(time.Millisecond))
}

// RecordRetry counts one automatic retry.
func RecordRetry() {
	PromRetriesTotal.Inc()
}

// RecordHealth publishes the stalled and zombie counts of one tick.
func RecordHealth(stalled, zombies int) {
	PromStalledJobs.Set(float64(stalled))
	PromZombieJobs.Set(float64(zombies))
}

// JobObserver keeps the per-state job gauge in line with orchestrator events.
type JobObserver struct {
	mu     sync.Mutex
	states map[string]domain.JobState
}

// NewJobObserver creates an observer with an empty view of the registry.
func NewJobObserver() *JobObserver {
	return &JobObserver{states: make(map[string]domain.JobState)}
}

// OnJobUpdated moves the job between state gauges.
func (o *JobObserver) OnJobUpdated(job domain.Job) {
	o.mu.Lock()
	defer o.mu.Unlock()

	prev, seen := o.states[job.ID]
	if seen && prev == job.State {
		return
	}
	if seen {
		PromJobsByState.WithLabelValues(string(prev)).Dec()
	}
	PromJobsByState.WithLabelValues(string(job.State)).Inc()
	o.states[job.ID] = job.State
}

// OnJobCompleted counts the terminal state.
func (o *JobObserver) OnJobCompleted(job domain.Job) {
	PromJobsFinishedTotal.WithLabelValues(string(job.State)).Inc()
}

// OnJobRemoved drops an evicted job from the state gauges.
func (o *JobObserver) OnJobRemoved(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if state, ok := o.states[jobID]; ok {
		PromJobsByState.WithLabelValues(string(state)).Dec()
		delete(o.states, jobID)
	}
}
