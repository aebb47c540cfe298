package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/trackfetch-go/internal/domain"
	"github.com/yourusername/trackfetch-go/internal/metrics"
	"github.com/yourusername/trackfetch-go/pkg/logger"
)

// JobController is the part of the orchestrator the health monitor drives.
// The monitor never mutates jobs itself.
type JobController interface {
	Jobs() []domain.Job
	Retry(id, reason string) error
	Fail(id string, cause error) error
	SetStallCount(id string, count int) error
}

// StallStatus is the short-horizon classification of one job at one tick
type StallStatus string

const (
	StatusHealthy StallStatus = "healthy"
	StatusQueued  StallStatus = "queued"
	StatusStalled StallStatus = "stalled"
)

// ClassifyStall compares the bytes seen at the previous tick with the
// current ones. A shrinking count means the transfer restarted and counts as
// a fresh baseline, not a stall.
func ClassifyStall(previousBytes, currentBytes int64, state domain.JobState) StallStatus {
	if currentBytes != previousBytes {
		return StatusHealthy
	}
	if state == domain.StateQueued {
		return StatusQueued
	}
	return StatusStalled
}

// IsZombie reports whether a live job has shown no progress for longer than
// threshold. It is a reporting signal only.
func IsZombie(job domain.Job, now time.Time, threshold time.Duration) bool {
	return job.IsActive() && now.Sub(job.LastProgressAt) > threshold
}

// JobHealth is the monitor's view of one job
type JobHealth struct {
	JobID            string          `json:"job_id"`
	State            domain.JobState `json:"state"`
	Status           StallStatus     `json:"status"`
	StallTicks       int             `json:"stall_ticks"`
	RetryCount       int             `json:"retry_count"`
	BytesTransferred int64           `json:"bytes_transferred"`
	LastProgressAt   time.Time       `json:"last_progress_at"`
	Zombie           bool            `json:"zombie"`
}

// HealthReport is the result of the latest tick
type HealthReport struct {
	CheckedAt time.Time   `json:"checked_at"`
	Jobs      []JobHealth `json:"jobs"`
	Stalled   int         `json:"stalled"`
	Zombies   int         `json:"zombies"`
}

// jobSnapshot is the monitor's private record of a job at the previous tick
type jobSnapshot struct {
	bytes  int64
	state  domain.JobState
	stalls int
}

// HealthMonitor watches live jobs on a fixed tick, retries stalled transfers
// a bounded number of times and then fails them.
type HealthMonitor struct {
	controller  JobController
	config      domain.HealthConfig
	logger      *zap.Logger
	multiLogger *logger.MultiLogger
	now         func() time.Time

	mu        sync.Mutex
	snapshots map[string]*jobSnapshot
	abandoned map[string]bool
	report    HealthReport

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewHealthMonitor creates a health monitor for controller
func NewHealthMonitor(
	controller JobController,
	config domain.HealthConfig,
	logger *zap.Logger,
	multiLogger *logger.MultiLogger,
) *HealthMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthMonitor{
		controller:  controller,
		config:      config,
		logger:      logger,
		multiLogger: multiLogger,
		now:         time.Now,
		snapshots:   make(map[string]*jobSnapshot),
		abandoned:   make(map[string]bool),
	}
}

// Start starts the periodic tick
func (m *HealthMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("health monitor: %w", ErrAlreadyRunning)
	}
	m.running = true
	m.stopChan = make(chan struct{})

	m.wg.Add(1)
	go m.run(ctx, m.stopChan)

	m.multiLogger.LogHealthEvent("monitor_started",
		zap.Duration("tick", m.config.TickInterval),
		zap.Int("stall_ticks_before_retry", m.config.StallTicksBeforeRetry),
		zap.Int("max_auto_retries", m.config.MaxAutoRetries))
	return nil
}

// Stop stops the periodic tick and waits for a running tick to finish
func (m *HealthMonitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("health monitor: %w", ErrNotRunning)
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()

	m.multiLogger.LogHealthEvent("monitor_stopped")
	return nil
}

// IsRunning returns whether the tick loop is running
func (m *HealthMonitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *HealthMonitor) run(ctx context.Context, stopChan chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopChan:
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Report returns the classification of the latest tick
func (m *HealthMonitor) Report() HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := m.report
	report.Jobs = append([]JobHealth(nil), m.report.Jobs...)
	return report
}

// Tick classifies every live job once and intervenes on stalls
func (m *HealthMonitor) Tick() {
	now := m.now()
	jobs := m.controller.Jobs()

	m.mu.Lock()
	defer m.mu.Unlock()

	report := HealthReport{CheckedAt: now, Jobs: []JobHealth{}}
	live := make(map[string]bool, len(jobs))

	for _, job := range jobs {
		if !job.IsActive() {
			continue
		}
		live[job.ID] = true
		if m.abandoned[job.ID] {
			continue
		}

		health := m.checkJob(job, now)
		if health.Status == StatusStalled {
			report.Stalled++
		}
		if health.Zombie {
			report.Zombies++
		}
		report.Jobs = append(report.Jobs, health)
	}

	// Forget jobs that finished or were evicted
	for id := range m.snapshots {
		if !live[id] {
			delete(m.snapshots, id)
		}
	}
	for id := range m.abandoned {
		if !live[id] {
			delete(m.abandoned, id)
		}
	}

	m.report = report
	metrics.RecordHealth(report.Stalled, report.Zombies)
}

// checkJob classifies one job against its previous snapshot. Callers hold mu.
func (m *HealthMonitor) checkJob(job domain.Job, now time.Time) JobHealth {
	snap, ok := m.snapshots[job.ID]
	if !ok {
		snap = &jobSnapshot{}
		m.snapshots[job.ID] = snap
	}

	status := ClassifyStall(snap.bytes, job.BytesTransferred, job.State)
	switch status {
	case StatusHealthy:
		snap.stalls = 0
	case StatusStalled:
		snap.stalls++
		m.multiLogger.LogHealthEvent("job_stalled",
			zap.String("job_id", job.ID),
			zap.Int("stall_ticks", snap.stalls),
			zap.Int64("bytes", job.BytesTransferred))
	}
	snap.bytes = job.BytesTransferred
	snap.state = job.State

	health := JobHealth{
		JobID:            job.ID,
		State:            job.State,
		Status:           status,
		StallTicks:       snap.stalls,
		RetryCount:       job.RetryCount,
		BytesTransferred: job.BytesTransferred,
		LastProgressAt:   job.LastProgressAt,
		Zombie:           IsZombie(job, now, m.config.ZombieThreshold),
	}

	if snap.stalls >= m.config.StallTicksBeforeRetry {
		m.intervene(job, snap)
		return health
	}

	if err := m.controller.SetStallCount(job.ID, snap.stalls); err != nil && !errors.Is(err, domain.ErrJobTerminal) {
		m.logger.Debug("Failed to record stall count", zap.String("job_id", job.ID), zap.Error(err))
	}
	return health
}

// intervene retries a stalled job or gives up on it. Callers hold mu.
func (m *HealthMonitor) intervene(job domain.Job, snap *jobSnapshot) {
	if job.RetryCount < m.config.MaxAutoRetries {
		reason := fmt.Sprintf("no progress for %d ticks", snap.stalls)
		if err := m.controller.Retry(job.ID, reason); err != nil {
			m.logger.Debug("Retry not applied", zap.String("job_id", job.ID), zap.Error(err))
			return
		}

		// The transfer restarts from zero under the same id
		snap.stalls = 0
		snap.bytes = 0
		metrics.RecordRetry()
		m.logger.Warn("Stalled transfer requeued",
			zap.String("job_id", job.ID),
			zap.Int("retry", job.RetryCount+1),
			zap.Int("max_auto_retries", m.config.MaxAutoRetries))
		m.multiLogger.LogHealthEvent("job_retried",
			zap.String("job_id", job.ID),
			zap.Int("retry", job.RetryCount+1))
		return
	}

	cause := fmt.Errorf("transfer stalled after %d automatic retries", job.RetryCount)
	if err := m.controller.Fail(job.ID, cause); err != nil {
		m.logger.Debug("Fail not applied", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	m.abandoned[job.ID] = true
	delete(m.snapshots, job.ID)
	m.logger.Error("Stalled transfer abandoned",
		zap.String("job_id", job.ID),
		zap.Int("retry_count", job.RetryCount))
	m.multiLogger.LogHealthEvent("job_abandoned",
		zap.String("job_id", job.ID),
		zap.Int("retry_count", job.RetryCount))
}
