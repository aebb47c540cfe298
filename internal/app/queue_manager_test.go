package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/trackfetch-go/internal/domain"
)

// mockRecordRepo implements domain.JobRecordRepository for testing
type mockRecordRepo struct {
	mu      sync.Mutex
	records map[string]*domain.JobRecord
	order   []string
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: make(map[string]*domain.JobRecord)}
}

func (m *mockRecordRepo) Save(record *domain.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.ID]; !ok {
		m.order = append(m.order, record.ID)
	}
	m.records[record.ID] = record
	return nil
}

func (m *mockRecordRepo) FindByID(id string) (*domain.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.records[id]; ok {
		return record, nil
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockRecordRepo) FindAll(state domain.JobState, limit int) ([]*domain.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.JobRecord
	for i := len(m.order) - 1; i >= 0; i-- {
		record := m.records[m.order[i]]
		if state != "" && record.State != state {
			continue
		}
		out = append(out, record)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockRecordRepo) GetStats() (*domain.JobStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.JobStats{}
	for _, record := range m.records {
		stats.Add(record.State)
	}
	return stats, nil
}

func newTestQueueManager(t *testing.T, searcher *fakeSearcher, transferer *fakeTransferer, history domain.JobRecordRepository) (*QueueManager, *domain.Config) {
	t.Helper()

	config := domain.DefaultConfig()
	config.Download.CompletedDir = t.TempDir()
	config.Health.TickInterval = time.Hour

	orchestrator := NewOrchestrator(transferer, config.Download.MaxConcurrent, nil, nil)
	monitor := NewHealthMonitor(orchestrator, config.Health, nil, nil)
	discovery := NewDiscovery(searcher, nil, nil)

	qm := NewQueueManager(discovery, orchestrator, monitor, history, config, nil, nil)
	return qm, config
}

func TestRequestTrack_EnqueuesBestCandidate(t *testing.T) {
	searcher := &fakeSearcher{pool: []domain.Candidate{
		mp3(`music\Artist - Target Song.mp3`, "peer", 320, true),
	}}
	qm, config := newTestQueueManager(t, searcher, &fakeTransferer{behavior: blockUntilCancelled}, nil)

	job, err := qm.RequestTrack(context.Background(), testQuery)
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.StateQueued, job.State)
	assert.Equal(t, "peer", job.Candidate.PeerID)
	assert.Equal(t, filepath.Join(config.Download.CompletedDir, "Artist - Target Song.mp3"), job.Destination)
	assert.Len(t, qm.ListJobs(""), 1)
}

func TestRequestTrack_NoMatch(t *testing.T) {
	policy := domain.DefaultSearchPolicy()
	policy.Relaxation.Enabled = false

	qm, _ := newTestQueueManager(t, &fakeSearcher{}, &fakeTransferer{}, nil)
	require.NoError(t, qm.SetPolicy(policy))

	job, err := qm.RequestTrack(context.Background(), testQuery)
	assert.ErrorIs(t, err, domain.ErrNoMatch)
	assert.Nil(t, job)
	assert.Empty(t, qm.ListJobs(""))
}

func TestRequestTrack_InvalidQuery(t *testing.T) {
	searcher := &fakeSearcher{}
	qm, _ := newTestQueueManager(t, searcher, &fakeTransferer{}, nil)

	_, err := qm.RequestTrack(context.Background(), domain.TrackQuery{})
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
	assert.Empty(t, searcher.Requests())
}

func TestRequestTrack_DuplicateQueued(t *testing.T) {
	searcher := &fakeSearcher{pool: []domain.Candidate{
		mp3("Artist - Target Song.mp3", "peer", 320, true),
	}}
	qm, _ := newTestQueueManager(t, searcher, &fakeTransferer{}, nil)

	first, err := qm.RequestTrack(context.Background(), testQuery)
	require.NoError(t, err)

	// Case and accents differ but the track is the same
	second, err := qm.RequestTrack(context.Background(), domain.TrackQuery{Artist: "ARTIST", Title: "Tárget Song"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, searcher.Requests(), 1)
	assert.Len(t, qm.ListJobs(""), 1)
}

func TestRequestTrack_DuplicateCompleted(t *testing.T) {
	searcher := &fakeSearcher{pool: []domain.Candidate{
		mp3("Artist - Target Song.mp3", "peer", 320, true),
	}}
	qm, _ := newTestQueueManager(t, searcher, &fakeTransferer{}, nil)
	require.NoError(t, qm.Start(context.Background()))
	defer qm.Stop()

	first, err := qm.RequestTrack(context.Background(), testQuery)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		job, _ := qm.GetJob(first.ID)
		return job.State == domain.StateCompleted
	}, time.Second, 5*time.Millisecond)

	// File still on disk: the completed job is returned
	require.NoError(t, os.WriteFile(first.Destination, []byte("audio"), 0644))
	again, err := qm.RequestTrack(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// File gone: a new download starts
	require.NoError(t, os.Remove(first.Destination))
	fresh, err := qm.RequestTrack(context.Background(), testQuery)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, fresh.ID)
	assert.Len(t, searcher.Requests(), 2)
}

func TestSearch_DoesNotEnqueue(t *testing.T) {
	searcher := &fakeSearcher{pool: []domain.Candidate{
		mp3("Artist - Target Song.mp3", "a", 320, true),
		mp3("Artist - Target Song.mp3", "b", 320, false),
	}}
	qm, _ := newTestQueueManager(t, searcher, &fakeTransferer{}, nil)

	ranked, err := qm.Search(context.Background(), testQuery)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].PeerID)
	assert.Empty(t, qm.ListJobs(""))
}

func TestListJobs_FilterByState(t *testing.T) {
	searcher := &fakeSearcher{pool: []domain.Candidate{
		mp3("Artist - Target Song.mp3", "peer", 320, true),
		mp3("Other - Track.mp3", "peer", 320, true),
	}}
	qm, _ := newTestQueueManager(t, searcher, &fakeTransferer{}, nil)

	first, err := qm.RequestTrack(context.Background(), testQuery)
	require.NoError(t, err)
	_, err = qm.RequestTrack(context.Background(), domain.TrackQuery{Artist: "Other", Title: "Track"})
	require.NoError(t, err)

	require.NoError(t, qm.CancelJob(first.ID))

	assert.Len(t, qm.ListJobs(""), 2)
	assert.Len(t, qm.ListJobs(domain.StateQueued), 1)
	cancelled := qm.ListJobs(domain.StateCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, first.ID, cancelled[0].ID)

	stats := qm.Stats()
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Cancelled)

	require.NoError(t, qm.RemoveJob(first.ID))
	_, err = qm.GetJob(first.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestQueueManager_StartStopAndCancelAll(t *testing.T) {
	searcher := &fakeSearcher{pool: []domain.Candidate{
		mp3("Artist - Target Song.mp3", "peer", 320, true),
	}}
	qm, _ := newTestQueueManager(t, searcher, &fakeTransferer{behavior: blockUntilCancelled}, nil)

	assert.ErrorIs(t, qm.Stop(), ErrNotRunning)
	require.NoError(t, qm.Start(context.Background()))
	assert.ErrorIs(t, qm.Start(context.Background()), ErrAlreadyRunning)
	assert.True(t, qm.IsRunning())

	job, err := qm.RequestTrack(context.Background(), testQuery)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		current, _ := qm.GetJob(job.ID)
		return current.State == domain.StateDownloading
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, qm.CancelAll())
	assert.False(t, qm.IsRunning())

	current, err := qm.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, current.State)

	// Resume reuses the context of the first Start
	require.NoError(t, qm.Resume())
	assert.ErrorIs(t, qm.Resume(), ErrAlreadyRunning)

	next, err := qm.RequestTrack(context.Background(), domain.TrackQuery{Artist: "Artist", Title: "Target Song"})
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, next.ID)
	require.Eventually(t, func() bool {
		current, _ := qm.GetJob(next.ID)
		return current.State == domain.StateDownloading
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, qm.Stop())
}

func TestHistory(t *testing.T) {
	qm, _ := newTestQueueManager(t, &fakeSearcher{}, &fakeTransferer{}, nil)
	records, err := qm.History("", 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	repo := newMockRecordRepo()
	qm, _ = newTestQueueManager(t, &fakeSearcher{}, &fakeTransferer{}, repo)

	done := domain.NewJob(testQuery, testCandidate("a"), "/music/a.mp3")
	done.MarkCompleted()
	failed := domain.NewJob(testQuery, testCandidate("b"), "/music/b.mp3")
	failed.MarkFailed(assert.AnError)
	require.NoError(t, repo.Save(domain.NewJobRecord(*done)))
	require.NoError(t, repo.Save(domain.NewJobRecord(*failed)))

	records, err = qm.History("", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, failed.ID, records[0].ID)

	records, err = qm.History(domain.StateCompleted, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, done.ID, records[0].ID)

	stats, err := qm.HistoryStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestDestinationPath(t *testing.T) {
	flac := domain.Candidate{Filename: `@@share\Music\01 - Song.FLAC`}

	tests := []struct {
		name      string
		query     domain.TrackQuery
		candidate domain.Candidate
		expected  string
	}{
		{"artist and title", domain.TrackQuery{Artist: "AC/DC", Title: "T.N.T."}, flac, "AC_DC - T.N.T..flac"},
		{"title only uses peer name", domain.TrackQuery{Title: "Song"}, flac, "01 - Song.FLAC"},
		{"format fallback", domain.TrackQuery{Artist: "A", Title: "B"}, domain.Candidate{Filename: "noext", Format: "MP3"}, "A - B.mp3"},
		{"reserved characters", domain.TrackQuery{Artist: "Who?", Title: "What: <Live>"}, flac, "Who_ - What_ _Live_.flac"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.Join("/music", tt.expected), destinationPath("/music", tt.query, tt.candidate))
		})
	}
}
