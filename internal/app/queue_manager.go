package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/yourusername/trackfetch-go/internal/domain"
	"github.com/yourusername/trackfetch-go/internal/resolver"
	"github.com/yourusername/trackfetch-go/pkg/logger"
)

// QueueManager is the entry point used by the API: it resolves track
// requests into jobs and exposes the orchestrator and health monitor
type QueueManager struct {
	discovery    *Discovery
	orchestrator *Orchestrator
	monitor      *HealthMonitor
	history      domain.JobRecordRepository
	config       *domain.Config
	logger       *zap.Logger
	multiLogger  *logger.MultiLogger

	mu      sync.RWMutex
	policy  domain.SearchPolicy
	running bool
	baseCtx context.Context
}

// NewQueueManager creates a new queue manager. history may be nil.
func NewQueueManager(
	discovery *Discovery,
	orchestrator *Orchestrator,
	monitor *HealthMonitor,
	history domain.JobRecordRepository,
	config *domain.Config,
	logger *zap.Logger,
	multiLogger *logger.MultiLogger,
) *QueueManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueManager{
		discovery:    discovery,
		orchestrator: orchestrator,
		monitor:      monitor,
		history:      history,
		config:       config,
		logger:       logger,
		multiLogger:  multiLogger,
		policy:       config.Search,
	}
}

// Start starts dispatching and health monitoring
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	if qm.running {
		return fmt.Errorf("queue manager: %w", ErrAlreadyRunning)
	}
	if err := qm.orchestrator.Start(ctx); err != nil {
		return err
	}
	if err := qm.monitor.Start(ctx); err != nil {
		_ = qm.orchestrator.Stop()
		return err
	}
	qm.running = true
	qm.baseCtx = ctx
	return nil
}

// Resume restarts dispatch after CancelAll under the context of the first
// Start, so callers with short-lived contexts can resume safely
func (qm *QueueManager) Resume() error {
	qm.mu.RLock()
	ctx := qm.baseCtx
	qm.mu.RUnlock()

	if ctx == nil {
		ctx = context.Background()
	}
	return qm.Start(ctx)
}

// Stop stops health monitoring and dispatching
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	if !qm.running {
		return fmt.Errorf("queue manager: %w", ErrNotRunning)
	}
	qm.running = false

	if err := qm.monitor.Stop(); err != nil {
		qm.logger.Warn("Failed to stop health monitor", zap.Error(err))
	}
	if err := qm.orchestrator.Stop(); err != nil {
		return err
	}
	return nil
}

// IsRunning reports whether jobs are being dispatched
func (qm *QueueManager) IsRunning() bool {
	return qm.orchestrator.IsRunning()
}

// MaxConcurrent returns the number of download slots
func (qm *QueueManager) MaxConcurrent() int {
	return qm.orchestrator.MaxConcurrent()
}

// Policy returns the active search policy
func (qm *QueueManager) Policy() domain.SearchPolicy {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.policy
}

// SetPolicy replaces the search policy used by later requests
func (qm *QueueManager) SetPolicy(policy domain.SearchPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	qm.mu.Lock()
	qm.policy = policy
	qm.mu.Unlock()
	return nil
}

// RequestTrack finds the best candidate for query and enqueues it. A live
// job for the same track, or a completed one whose file is still on disk, is
// returned instead of starting another download.
func (qm *QueueManager) RequestTrack(ctx context.Context, query domain.TrackQuery) (*domain.Job, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	if existing, ok := qm.findDuplicate(query); ok {
		qm.multiLogger.LogQueueEvent("duplicate_request",
			zap.String("job_id", existing.ID),
			zap.String("query", query.Text()),
			zap.String("state", string(existing.State)))
		return &existing, nil
	}

	candidate, err := qm.discovery.FindBestMatch(ctx, query, qm.Policy())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if candidate == nil {
		qm.multiLogger.LogQueueEvent("no_match", zap.String("query", query.Text()))
		return nil, domain.ErrNoMatch
	}

	destination := destinationPath(qm.config.Download.CompletedDir, query, *candidate)
	id := qm.orchestrator.Enqueue(query, *candidate, destination)

	job, err := qm.orchestrator.Job(id)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Search returns the ranked admitted candidates for query without enqueuing
func (qm *QueueManager) Search(ctx context.Context, query domain.TrackQuery) ([]resolver.Ranked, error) {
	return qm.discovery.Rank(ctx, query, qm.Policy())
}

// findDuplicate looks for a job that already covers query
func (qm *QueueManager) findDuplicate(query domain.TrackQuery) (domain.Job, bool) {
	key := resolver.Normalize(query.Text(), true)
	jobs := qm.orchestrator.Jobs()

	for i := len(jobs) - 1; i >= 0; i-- {
		job := jobs[i]
		if resolver.Normalize(job.Query.Text(), true) != key {
			continue
		}
		switch {
		case !job.IsTerminal():
			return job, true
		case job.State == domain.StateCompleted:
			if _, err := os.Stat(job.Destination); err == nil {
				return job, true
			}
		}
	}
	return domain.Job{}, false
}

// ListJobs returns job snapshots, optionally filtered by state
func (qm *QueueManager) ListJobs(state domain.JobState) []domain.Job {
	jobs := qm.orchestrator.Jobs()
	if state == "" {
		return jobs
	}
	return lo.Filter(jobs, func(job domain.Job, _ int) bool {
		return job.State == state
	})
}

// GetJob returns one job snapshot
func (qm *QueueManager) GetJob(id string) (domain.Job, error) {
	return qm.orchestrator.Job(id)
}

// CancelJob cancels one job
func (qm *QueueManager) CancelJob(id string) error {
	return qm.orchestrator.Cancel(id)
}

// RemoveJob evicts a terminal job from the registry
func (qm *QueueManager) RemoveJob(id string) error {
	return qm.orchestrator.Remove(id)
}

// CancelAll cancels every live job and halts dispatch until Start is called
// again. It returns the number of jobs cancelled.
func (qm *QueueManager) CancelAll() int {
	n := qm.orchestrator.CancelAll()

	qm.mu.Lock()
	if qm.running {
		qm.running = false
		if err := qm.monitor.Stop(); err != nil {
			qm.logger.Warn("Failed to stop health monitor", zap.Error(err))
		}
	}
	qm.mu.Unlock()
	return n
}

// Stats returns job counts per state for the live registry
func (qm *QueueManager) Stats() domain.JobStats {
	return qm.orchestrator.Stats()
}

// Health returns the latest health monitor report
func (qm *QueueManager) Health() HealthReport {
	return qm.monitor.Report()
}

// History returns archived terminal jobs, newest first
func (qm *QueueManager) History(state domain.JobState, limit int) ([]*domain.JobRecord, error) {
	if qm.history == nil {
		return []*domain.JobRecord{}, nil
	}
	return qm.history.FindAll(state, limit)
}

// HistoryStats returns archived job counts per state
func (qm *QueueManager) HistoryStats() (*domain.JobStats, error) {
	if qm.history == nil {
		return &domain.JobStats{}, nil
	}
	return qm.history.GetStats()
}

// destinationPath builds "<dir>/<Artist> - <Title>.<ext>", falling back to
// the peer's file name when the query has no artist.
func destinationPath(dir string, query domain.TrackQuery, candidate domain.Candidate) string {
	ext := domain.FormatFromFilename(candidate.Filename)
	if ext == "" {
		ext = domain.NormalizeFormat(candidate.Format)
	}

	var name string
	if strings.TrimSpace(query.Artist) != "" {
		name = strings.TrimSpace(query.Artist) + " - " + strings.TrimSpace(query.Title)
		if ext != "" {
			name += "." + ext
		}
	} else {
		name = domain.BaseName(candidate.Filename)
	}

	return filepath.Join(dir, sanitizeFileName(name))
}

func sanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(strings.TrimSpace(name), ".")
	if name == "" {
		return "untitled"
	}
	return name
}
