package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/yourusername/trackfetch-go/internal/domain"
	"github.com/yourusername/trackfetch-go/pkg/logger"
)

// cancelIntent records why a running transfer was cancelled. The transfer
// itself only sees a cancelled context.
type cancelIntent int

// Intents are ordered by precedence: a later, stronger intent replaces a
// pending retry.
const (
	intentNone cancelIntent = iota
	intentRetry
	intentUser
	intentFail
)

// jobScope is the cancellation scope of one executing job
type jobScope struct {
	cancel context.CancelFunc
	intent cancelIntent
	reason string
	err    error
}

// Orchestrator owns the job registry and runs transfers on a bounded pool of
// slots. It is the only writer of Job values: every change clones the current
// snapshot and swaps it into the registry.
type Orchestrator struct {
	transferer    domain.Transferer
	maxConcurrent int
	logger        *zap.Logger
	multiLogger   *logger.MultiLogger
	slots         *semaphore.Weighted

	mu        sync.RWMutex
	jobs      map[string]*domain.Job
	order     []string
	pending   []string
	scopes    map[string]*jobScope
	observers []domain.JobObserver

	notify     chan struct{}
	running    bool
	baseCtx    context.Context
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	workerWg   sync.WaitGroup
}

// NewOrchestrator creates an orchestrator with maxConcurrent execution slots
func NewOrchestrator(
	transferer domain.Transferer,
	maxConcurrent int,
	logger *zap.Logger,
	multiLogger *logger.MultiLogger,
) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		transferer:    transferer,
		maxConcurrent: maxConcurrent,
		logger:        logger,
		multiLogger:   multiLogger,
		slots:         semaphore.NewWeighted(int64(maxConcurrent)),
		jobs:          make(map[string]*domain.Job),
		scopes:        make(map[string]*jobScope),
		notify:        make(chan struct{}, 1),
	}
}

// AddObserver registers a lifecycle observer. Observers must not call back
// into blocking orchestrator methods such as CancelAll or Stop.
func (o *Orchestrator) AddObserver(observer domain.JobObserver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, observer)
}

// MaxConcurrent returns the number of execution slots
func (o *Orchestrator) MaxConcurrent() int {
	return o.maxConcurrent
}

// Start starts the dispatch loop. It may be called again after Stop or
// CancelAll to resume dispatching queued jobs.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return fmt.Errorf("orchestrator: %w", ErrAlreadyRunning)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.baseCtx = ctx
	o.loopCancel = cancel
	o.loopDone = make(chan struct{})

	go o.dispatchLoop(loopCtx, o.loopDone)

	o.multiLogger.LogQueueEvent("dispatch_started", zap.Int("slots", o.maxConcurrent))
	return nil
}

// Stop halts dispatch, cancels executing transfers and waits for them to
// finish. Jobs still waiting in the intake queue stay Queued.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: %w", ErrNotRunning)
	}
	done := o.haltLocked()
	for _, scope := range o.scopes {
		scope.requestCancel(intentUser, "shutdown", nil)
	}
	o.mu.Unlock()

	<-done
	o.workerWg.Wait()

	o.multiLogger.LogQueueEvent("dispatch_stopped", zap.String("reason", "stop"))
	return nil
}

// IsRunning returns whether the dispatch loop is running
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// haltLocked stops the dispatch loop and returns a channel closed once it has
// exited. Callers hold mu.
func (o *Orchestrator) haltLocked() <-chan struct{} {
	if !o.running {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	o.running = false
	o.loopCancel()
	return o.loopDone
}

// Enqueue registers a new Queued job for candidate and returns its id. Jobs
// are admitted to execution in enqueue order.
func (o *Orchestrator) Enqueue(query domain.TrackQuery, candidate domain.Candidate, destination string) string {
	job := domain.NewJob(query, candidate, destination)

	// Observers see Queued before the job can be claimed
	o.publish(*job, false)

	o.mu.Lock()
	o.jobs[job.ID] = job
	o.order = append(o.order, job.ID)
	o.pending = append(o.pending, job.ID)
	o.mu.Unlock()

	o.multiLogger.LogQueueEvent("job_enqueued",
		zap.String("job_id", job.ID),
		zap.String("peer", candidate.PeerID),
		zap.String("filename", candidate.Filename))

	o.wake()
	return job.ID
}

// Jobs returns a snapshot of every job in enqueue order
func (o *Orchestrator) Jobs() []domain.Job {
	o.mu.RLock()
	defer o.mu.RUnlock()

	jobs := make([]domain.Job, 0, len(o.order))
	for _, id := range o.order {
		jobs = append(jobs, *o.jobs[id])
	}
	return jobs
}

// Job returns a snapshot of one job
func (o *Orchestrator) Job(id string) (domain.Job, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	job, ok := o.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return *job, nil
}

// Stats counts registry jobs per state
func (o *Orchestrator) Stats() domain.JobStats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var stats domain.JobStats
	for _, job := range o.jobs {
		stats.Add(job.State)
	}
	return stats
}

// Remove evicts a terminal job from the registry
func (o *Orchestrator) Remove(id string) error {
	o.mu.Lock()
	job, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return domain.ErrJobNotFound
	}
	if !job.IsTerminal() {
		o.mu.Unlock()
		return domain.ErrJobNotTerminal
	}

	delete(o.jobs, id)
	for i, other := range o.order {
		if other == id {
			o.order = append(o.order[:i:i], o.order[i+1:]...)
			break
		}
	}
	observers := append([]domain.JobObserver(nil), o.observers...)
	o.mu.Unlock()

	for _, observer := range observers {
		if removal, ok := observer.(domain.JobRemovalObserver); ok {
			removal.OnJobRemoved(id)
		}
	}
	return nil
}

// Cancel cancels one job on behalf of the user
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	job, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return domain.ErrJobNotFound
	}
	if job.IsTerminal() {
		o.mu.Unlock()
		return domain.ErrJobTerminal
	}

	// An executing job is finalized by its worker
	if scope, ok := o.scopes[id]; ok {
		scope.requestCancel(intentUser, "", nil)
		o.mu.Unlock()
		return nil
	}

	next := job.Clone()
	next.MarkCancelled()
	o.jobs[id] = next
	o.mu.Unlock()

	o.multiLogger.LogQueueEvent("job_cancelled", zap.String("job_id", id))
	o.publish(*next, true)
	return nil
}

// CancelAll cancels every job that is not terminal, halts the dispatch loop
// and waits for executing transfers to unwind. Jobs enqueued afterwards stay
// Queued until Start is called again.
func (o *Orchestrator) CancelAll() int {
	o.mu.Lock()
	done := o.haltLocked()

	var cancelled []domain.Job
	count := 0
	for _, id := range o.order {
		job := o.jobs[id]
		if job.IsTerminal() {
			continue
		}
		count++
		if scope, ok := o.scopes[id]; ok {
			scope.requestCancel(intentUser, "", nil)
			continue
		}
		next := job.Clone()
		next.MarkCancelled()
		o.jobs[id] = next
		cancelled = append(cancelled, *next)
	}
	o.pending = nil
	o.mu.Unlock()

	for _, job := range cancelled {
		o.publish(job, true)
	}

	<-done
	o.workerWg.Wait()

	o.multiLogger.LogQueueEvent("cancel_all", zap.Int("cancelled", count))
	return count
}

// Retry cancels the transfer of an executing job and sends it back to the
// intake queue under the same id
func (o *Orchestrator) Retry(id, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	job, ok := o.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.IsTerminal() {
		return domain.ErrJobTerminal
	}
	scope, ok := o.scopes[id]
	if !ok {
		return ErrJobNotExecuting
	}

	// A pending cancel or failure wins over the retry
	if !scope.requestCancel(intentRetry, reason, nil) {
		return ErrJobNotExecuting
	}
	return nil
}

// Fail moves a job to Failed, cancelling its transfer if one is running
func (o *Orchestrator) Fail(id string, cause error) error {
	o.mu.Lock()
	job, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return domain.ErrJobNotFound
	}
	if job.IsTerminal() {
		o.mu.Unlock()
		return domain.ErrJobTerminal
	}

	if scope, ok := o.scopes[id]; ok {
		scope.requestCancel(intentFail, "", cause)
		o.mu.Unlock()
		return nil
	}

	next := job.Clone()
	next.MarkFailed(cause)
	o.jobs[id] = next
	o.mu.Unlock()

	o.multiLogger.LogQueueEvent("job_failed", zap.String("job_id", id), zap.Error(cause))
	o.publish(*next, true)
	return nil
}

// SetStallCount records the health monitor's consecutive-stall count
func (o *Orchestrator) SetStallCount(id string, count int) error {
	o.mu.Lock()
	job, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return domain.ErrJobNotFound
	}
	if job.IsTerminal() {
		o.mu.Unlock()
		return domain.ErrJobTerminal
	}
	if job.StallCount == count {
		o.mu.Unlock()
		return nil
	}

	next := job.Clone()
	next.StallCount = count
	o.jobs[id] = next
	o.mu.Unlock()

	o.publish(*next, false)
	return nil
}

// dispatchLoop admits queued jobs into execution as slots free up. It never
// waits for a job to finish.
func (o *Orchestrator) dispatchLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if err := o.slots.Acquire(ctx, 1); err != nil {
			return
		}

		job, scope, jobCtx, ok := o.claimNext(ctx)
		if !ok {
			o.slots.Release(1)
			return
		}

		go o.execute(jobCtx, job, scope)
	}
}

// claimNext blocks until a queued job is available, moves it to Downloading
// and opens its cancellation scope. The caller holds a slot.
func (o *Orchestrator) claimNext(ctx context.Context) (domain.Job, *jobScope, context.Context, bool) {
	for {
		o.mu.Lock()
		if ctx.Err() != nil {
			o.mu.Unlock()
			return domain.Job{}, nil, nil, false
		}

		for len(o.pending) > 0 {
			id := o.pending[0]
			o.pending = o.pending[1:]

			job, ok := o.jobs[id]
			// Cancelled or failed while waiting
			if !ok || job.State != domain.StateQueued {
				continue
			}

			jobCtx, cancel := context.WithCancel(o.baseCtx)
			scope := &jobScope{cancel: cancel}
			next := job.Clone()
			next.MarkDownloading()
			o.jobs[id] = next
			o.scopes[id] = scope
			o.workerWg.Add(1)
			o.mu.Unlock()

			o.multiLogger.LogQueueEvent("job_started",
				zap.String("job_id", id),
				zap.Int("retry_count", next.RetryCount))
			o.publish(*next, false)
			return *next, scope, jobCtx, true
		}
		o.mu.Unlock()

		select {
		case <-o.notify:
		case <-ctx.Done():
			return domain.Job{}, nil, nil, false
		}
	}
}

// execute runs one transfer and finalizes the job. A panic in the transfer
// fails this job only.
func (o *Orchestrator) execute(ctx context.Context, job domain.Job, scope *jobScope) {
	defer o.workerWg.Done()
	defer o.slots.Release(1)

	err := o.runTransfer(ctx, job, scope)
	o.finish(job.ID, scope, err)
}

func (o *Orchestrator) runTransfer(ctx context.Context, job domain.Job, scope *jobScope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transfer panicked: %v", r)
			o.multiLogger.LogAppError("Transfer panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	req := domain.TransferRequest{
		JobID:          job.ID,
		PeerID:         job.Candidate.PeerID,
		RemoteFilename: job.Candidate.Filename,
		Destination:    job.Destination,
		ExpectedSize:   job.Candidate.SizeBytes,
	}
	return o.transferer.Download(ctx, req, func(p domain.TransferProgress) {
		o.updateProgress(job.ID, scope, p)
	})
}

// updateProgress applies a progress report unless the scope is already closed
func (o *Orchestrator) updateProgress(id string, scope *jobScope, p domain.TransferProgress) {
	o.mu.Lock()
	job, ok := o.jobs[id]
	if !ok || o.scopes[id] != scope || scope.intent != intentNone || job.IsTerminal() {
		o.mu.Unlock()
		return
	}
	next := job.Clone()
	next.MarkProgress(p.BytesTransferred, p.TotalBytes, p.RemoteQueued, p.QueuePosition)
	o.jobs[id] = next
	o.mu.Unlock()

	o.publish(*next, false)
}

// finish moves an executed job to its next state. The recorded intent
// decides what a cancellation meant.
func (o *Orchestrator) finish(id string, scope *jobScope, err error) {
	o.mu.Lock()
	scope.cancel()
	delete(o.scopes, id)

	job, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return
	}

	next := job.Clone()
	event := ""
	switch {
	case err == nil:
		next.MarkCompleted()
		event = "job_completed"
	case scope.intent == intentRetry:
		next.MarkRequeued(scope.reason)
		event = "job_requeued"
	case scope.intent == intentFail:
		cause := scope.err
		if cause == nil {
			cause = err
		}
		next.MarkFailed(cause)
		event = "job_failed"
	case scope.intent == intentUser, errors.Is(err, context.Canceled):
		next.MarkCancelled()
		event = "job_cancelled"
	default:
		next.MarkFailed(err)
		event = "job_failed"
	}
	o.jobs[id] = next
	o.mu.Unlock()

	fields := []zap.Field{
		zap.String("job_id", id),
		zap.String("state", string(next.State)),
		zap.Int("retry_count", next.RetryCount),
	}
	if next.State == domain.StateFailed {
		fields = append(fields, zap.String("error", next.ErrorMessage))
		o.logger.Warn("Job failed", fields...)
	} else {
		o.logger.Info("Job finished", fields...)
	}
	o.multiLogger.LogQueueEvent(event, fields...)

	o.publish(*next, next.IsTerminal())

	if next.State == domain.StateQueued {
		o.requeue(id)
	}
}

// requeue returns a job to the intake queue unless it was cancelled or
// failed after finish released the lock
func (o *Orchestrator) requeue(id string) {
	o.mu.Lock()
	job, ok := o.jobs[id]
	if !ok || job.State != domain.StateQueued {
		o.mu.Unlock()
		return
	}
	o.pending = append(o.pending, id)
	o.mu.Unlock()

	o.wake()
}

// requestCancel records intent unless a stronger one is already pending and
// cancels the transfer context. A user cancel or a failure overrides a retry.
func (s *jobScope) requestCancel(intent cancelIntent, reason string, err error) bool {
	if intent <= s.intent {
		return false
	}
	s.intent = intent
	s.reason = reason
	s.err = err
	s.cancel()
	return true
}

func (o *Orchestrator) wake() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// publish delivers a snapshot to every observer, isolating observer panics
func (o *Orchestrator) publish(job domain.Job, completed bool) {
	o.mu.RLock()
	observers := append([]domain.JobObserver(nil), o.observers...)
	o.mu.RUnlock()

	for _, observer := range observers {
		o.notifyObserver(observer, job, completed)
	}
}

func (o *Orchestrator) notifyObserver(observer domain.JobObserver, job domain.Job, completed bool) {
	defer func() {
		if r := recover(); r != nil {
			o.multiLogger.LogAppError("Job observer panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r))
		}
	}()

	observer.OnJobUpdated(job)
	if completed {
		observer.OnJobCompleted(job)
	}
}
