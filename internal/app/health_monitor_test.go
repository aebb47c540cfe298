package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/trackfetch-go/internal/domain"
)

// fakeController implements JobController for testing
type fakeController struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	order       []string
	retries     []string
	fails       []string
	stallCounts map[string][]int
	deferFail   bool // record Fail without finalizing, like a running job
}

func newFakeController() *fakeController {
	return &fakeController{
		jobs:        make(map[string]*domain.Job),
		stallCounts: make(map[string][]int),
	}
}

func (f *fakeController) add(job *domain.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	f.order = append(f.order, job.ID)
}

func (f *fakeController) update(id string, fn func(job *domain.Job)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.jobs[id])
}

func (f *fakeController) job(id string) domain.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.jobs[id]
}

func (f *fakeController) Jobs() []domain.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	jobs := make([]domain.Job, 0, len(f.order))
	for _, id := range f.order {
		jobs = append(jobs, *f.jobs[id])
	}
	return jobs
}

func (f *fakeController) Retry(id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, id)
	f.jobs[id].MarkRequeued(reason)
	return nil
}

func (f *fakeController) Fail(id string, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails = append(f.fails, id)
	if !f.deferFail {
		f.jobs[id].MarkFailed(cause)
	}
	return nil
}

func (f *fakeController) SetStallCount(id string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stallCounts[id] = append(f.stallCounts[id], count)
	f.jobs[id].StallCount = count
	return nil
}

func (f *fakeController) counts() (retries, fails int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.retries), len(f.fails)
}

func testHealthConfig() domain.HealthConfig {
	return domain.HealthConfig{
		TickInterval:          15 * time.Second,
		StallTicksBeforeRetry: 4,
		MaxAutoRetries:        3,
		ZombieThreshold:       5 * time.Minute,
	}
}

func downloadingJob() *domain.Job {
	job := domain.NewJob(domain.TrackQuery{Title: "x"}, testCandidate("x"), "/music/x.mp3")
	job.MarkDownloading()
	return job
}

func TestHealthMonitor_FourStalledTicksTriggerOneRetry(t *testing.T) {
	controller := newFakeController()
	job := downloadingJob()
	controller.add(job)
	monitor := NewHealthMonitor(controller, testHealthConfig(), nil, nil)

	for i := 0; i < 3; i++ {
		monitor.Tick()
	}
	retries, _ := controller.counts()
	assert.Equal(t, 0, retries)
	assert.Equal(t, []int{1, 2, 3}, controller.stallCounts[job.ID])
	assert.Equal(t, 3, controller.job(job.ID).StallCount)

	monitor.Tick()

	retries, fails := controller.counts()
	assert.Equal(t, 1, retries)
	assert.Equal(t, 0, fails)
	after := controller.job(job.ID)
	assert.Equal(t, 1, after.RetryCount)
	assert.Equal(t, 0, after.StallCount)
	assert.Equal(t, job.ID, after.ID)
}

func TestHealthMonitor_ExhaustedRetriesFailOnce(t *testing.T) {
	controller := newFakeController()
	job := downloadingJob()
	controller.add(job)
	monitor := NewHealthMonitor(controller, testHealthConfig(), nil, nil)

	for attempt := 0; attempt < 4; attempt++ {
		// the orchestrator redispatches the requeued job
		controller.update(job.ID, func(j *domain.Job) { j.MarkDownloading() })
		for tick := 0; tick < 4; tick++ {
			monitor.Tick()
		}
	}

	retries, fails := controller.counts()
	assert.Equal(t, 3, retries)
	assert.Equal(t, 1, fails)

	final := controller.job(job.ID)
	assert.Equal(t, domain.StateFailed, final.State)
	assert.Equal(t, 3, final.RetryCount)
	assert.Contains(t, final.ErrorMessage, "3 automatic retries")

	for tick := 0; tick < 10; tick++ {
		monitor.Tick()
	}
	retries, fails = controller.counts()
	assert.Equal(t, 3, retries)
	assert.Equal(t, 1, fails)
}

func TestHealthMonitor_AbandonedJobIsNotFailedTwice(t *testing.T) {
	controller := newFakeController()
	controller.deferFail = true
	job := downloadingJob()
	job.RetryCount = 3
	controller.add(job)
	monitor := NewHealthMonitor(controller, testHealthConfig(), nil, nil)

	for tick := 0; tick < 12; tick++ {
		monitor.Tick()
	}

	retries, fails := controller.counts()
	assert.Equal(t, 0, retries)
	assert.Equal(t, 1, fails)
	assert.Empty(t, monitor.Report().Jobs)
}

func TestHealthMonitor_QueuedJobsAreNeverRetried(t *testing.T) {
	controller := newFakeController()
	waiting := domain.NewJob(domain.TrackQuery{Title: "a"}, testCandidate("a"), "/music/a.mp3")
	remote := downloadingJob()
	remote.MarkProgress(0, 0, true, 250)
	controller.add(waiting)
	controller.add(remote)
	monitor := NewHealthMonitor(controller, testHealthConfig(), nil, nil)

	for i := 0; i < 100; i++ {
		monitor.Tick()
	}

	retries, fails := controller.counts()
	assert.Equal(t, 0, retries)
	assert.Equal(t, 0, fails)
	assert.Equal(t, 0, controller.job(remote.ID).StallCount)

	report := monitor.Report()
	require.Len(t, report.Jobs, 2)
	for _, health := range report.Jobs {
		assert.Equal(t, StatusQueued, health.Status)
		assert.Equal(t, 0, health.StallTicks)
	}
}

func TestHealthMonitor_ProgressResetsStallCounter(t *testing.T) {
	controller := newFakeController()
	job := downloadingJob()
	controller.add(job)
	monitor := NewHealthMonitor(controller, testHealthConfig(), nil, nil)

	for i := 0; i < 3; i++ {
		monitor.Tick()
	}
	controller.update(job.ID, func(j *domain.Job) { j.MarkProgress(4096, 0, false, 0) })
	monitor.Tick()
	assert.Equal(t, StatusHealthy, monitor.Report().Jobs[0].Status)
	assert.Equal(t, 0, controller.job(job.ID).StallCount)

	for i := 0; i < 3; i++ {
		monitor.Tick()
	}
	retries, _ := controller.counts()
	assert.Equal(t, 0, retries)
	assert.Equal(t, 3, monitor.Report().Jobs[0].StallTicks)
}

func TestHealthMonitor_ZombieIsReportedNotRetried(t *testing.T) {
	controller := newFakeController()
	remote := downloadingJob()
	remote.MarkProgress(0, 0, true, 900)
	remote.LastProgressAt = time.Now().Add(-6 * time.Minute)
	fresh := downloadingJob()
	fresh.MarkProgress(0, 0, true, 2)
	controller.add(remote)
	controller.add(fresh)

	monitor := NewHealthMonitor(controller, testHealthConfig(), nil, nil)
	monitor.Tick()

	report := monitor.Report()
	assert.Equal(t, 1, report.Zombies)
	assert.Equal(t, 0, report.Stalled)
	require.Len(t, report.Jobs, 2)
	assert.True(t, report.Jobs[0].Zombie)
	assert.False(t, report.Jobs[1].Zombie)

	retries, _ := controller.counts()
	assert.Equal(t, 0, retries)
}

func TestClassifiers(t *testing.T) {
	assert.Equal(t, StatusHealthy, ClassifyStall(10, 20, domain.StateDownloading))
	assert.Equal(t, StatusHealthy, ClassifyStall(500, 0, domain.StateDownloading))
	assert.Equal(t, StatusStalled, ClassifyStall(10, 10, domain.StateDownloading))
	assert.Equal(t, StatusQueued, ClassifyStall(10, 10, domain.StateQueued))

	now := time.Now()
	job := domain.Job{State: domain.StateDownloading, LastProgressAt: now.Add(-10 * time.Minute)}
	assert.True(t, IsZombie(job, now, 5*time.Minute))
	job.State = domain.StateFailed
	assert.False(t, IsZombie(job, now, 5*time.Minute))
}

func TestHealthMonitor_StartStop(t *testing.T) {
	controller := newFakeController()
	controller.add(downloadingJob())
	config := testHealthConfig()
	config.TickInterval = 5 * time.Millisecond
	config.StallTicksBeforeRetry = 2
	monitor := NewHealthMonitor(controller, config, nil, nil)

	assert.ErrorIs(t, monitor.Stop(), ErrNotRunning)
	require.NoError(t, monitor.Start(context.Background()))
	assert.ErrorIs(t, monitor.Start(context.Background()), ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		retries, _ := controller.counts()
		return retries > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, monitor.Stop())
	assert.False(t, monitor.IsRunning())
}

func TestHealthMonitor_DrivesOrchestrator(t *testing.T) {
	var attempts int32
	transferer := &fakeTransferer{
		behavior: func(ctx context.Context, req domain.TransferRequest, onProgress domain.ProgressFunc) error {
			atomic.AddInt32(&attempts, 1)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	o := NewOrchestrator(transferer, 1, nil, nil)
	id := o.Enqueue(domain.TrackQuery{Title: "x"}, testCandidate("x"), "/music/x.mp3")
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop()

	config := testHealthConfig()
	config.StallTicksBeforeRetry = 2
	config.MaxAutoRetries = 1
	monitor := NewHealthMonitor(o, config, nil, nil)

	downloading := func() bool {
		job, _ := o.Job(id)
		return job.State == domain.StateDownloading
	}

	require.Eventually(t, downloading, time.Second, 5*time.Millisecond)
	monitor.Tick()
	monitor.Tick()

	// requeued and redispatched under the same id
	require.Eventually(t, func() bool {
		job, _ := o.Job(id)
		return job.RetryCount == 1 && job.State == domain.StateDownloading
	}, time.Second, 5*time.Millisecond)

	monitor.Tick()
	monitor.Tick()

	require.Eventually(t, func() bool {
		job, _ := o.Job(id)
		return job.State == domain.StateFailed
	}, time.Second, 5*time.Millisecond)

	job, _ := o.Job(id)
	assert.Equal(t, 1, job.RetryCount)
	assert.Contains(t, job.ErrorMessage, "1 automatic retries")
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	assert.Len(t, o.Jobs(), 1)
}
