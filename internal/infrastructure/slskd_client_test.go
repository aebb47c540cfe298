package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/trackfetch-go/internal/domain"
)

// fakeSlskd is a scripted slskd daemon
type fakeSlskd struct {
	t *testing.T

	mu        sync.Mutex
	requests  []string
	apiKeys   []string
	polls     int
	responses [][]searchResponse // responses visible after each state poll
	complete  int                // poll index at which the search completes, -1 never
	transfers []transferFile     // state returned by successive transfer polls
	deleted   []string
	enqueued  []enqueueFile
}

func (f *fakeSlskd) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
	f.apiKeys = append(f.apiKeys, r.Header.Get("X-API-Key"))

	path := strings.TrimPrefix(r.URL.Path, apiPrefix)
	switch {
	case r.Method == http.MethodDelete:
		f.deleted = append(f.deleted, r.URL.RequestURI())
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodPost && path == "/searches":
		var body searchRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, searchState{ID: body.ID})

	case r.Method == http.MethodGet && strings.HasSuffix(path, "/responses"):
		idx := f.polls - 1
		if idx >= len(f.responses) {
			idx = len(f.responses) - 1
		}
		if idx < 0 {
			writeJSON(w, []searchResponse{})
			return
		}
		writeJSON(w, f.responses[idx])

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/searches/"):
		f.polls++
		writeJSON(w, searchState{IsComplete: f.complete >= 0 && f.polls >= f.complete})

	case r.Method == http.MethodPost && strings.HasPrefix(path, "/transfers/downloads/"):
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.enqueued))
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/transfers/downloads/"):
		idx := f.polls
		f.polls++
		if idx >= len(f.transfers) {
			idx = len(f.transfers) - 1
		}
		file := f.transfers[idx]
		writeJSON(w, userTransfers{
			Username:    "peer",
			Directories: []transferDirectory{{Directory: `music\Album`, Files: []transferFile{file}}},
		})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeSlskd) deletedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestSlskd(t *testing.T, fake *fakeSlskd, downloadsDir string) *SlskdClient {
	t.Helper()
	fake.t = t
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	return NewSlskdClient(&domain.SlskdConfig{
		URL:          server.URL + "/",
		APIKey:       "secret",
		DownloadsDir: downloadsDir,
		PollInterval: time.Millisecond,
	}, domain.DiscoveryConfig{SearchTimeout: 10 * time.Second, ResponseLimit: 100, FileLimit: 1000}, nil, nil)
}

var peerResponses = []searchResponse{
	{
		Username:          "alice",
		HasFreeUploadSlot: true,
		UploadSpeed:       5000,
		QueueLength:       2,
		Files: []searchFile{
			{Filename: `music\Artist - Song (128 BPM) 8A.mp3`, Size: 11_500_000, BitRate: 320, Length: 300, Extension: "mp3"},
			{Filename: `music\Artist - Song.mp3`, Size: 4_000_000, BitRate: 128, Length: 300, Extension: "mp3"},
		},
	},
	{
		Username: "bob",
		Files: []searchFile{
			{Filename: `lossless\Artist - Song.flac`, Size: 40_000_000, Length: 300},
			{Filename: `other\Artist - Song.wma`, Size: 9_000_000, BitRate: 320, Extension: "wma"},
			{Filename: `locked\Artist - Song.mp3`, Size: 11_000_000, BitRate: 320, IsLocked: true},
		},
	},
}

func TestSlskdSearch_FlattensAndFilters(t *testing.T) {
	fake := &fakeSlskd{
		responses: [][]searchResponse{peerResponses[:1], peerResponses},
		complete:  2,
	}
	client := newTestSlskd(t, fake, t.TempDir())

	var partials [][]domain.Candidate
	candidates, err := client.Search(context.Background(), domain.SearchRequest{
		Query:            "Artist Song",
		PreferredFormats: []string{"MP3", ".flac"},
		MinBitrateKbps:   192,
	}, func(batch []domain.Candidate) {
		partials = append(partials, batch)
	})
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	mp3 := candidates[0]
	assert.Equal(t, "alice", mp3.PeerID)
	assert.Equal(t, "mp3", mp3.Format)
	assert.Equal(t, 320, mp3.BitrateKbps)
	assert.Equal(t, 300, mp3.DurationSeconds)
	assert.Equal(t, int64(11_500_000), mp3.SizeBytes)
	assert.True(t, mp3.FreeSlot)
	assert.Equal(t, 2, mp3.QueueDepth)
	assert.Equal(t, int64(5000), mp3.UploadSpeed)
	assert.Equal(t, "Artist", mp3.Artist)
	assert.Equal(t, 128.0, mp3.BPM)
	assert.Equal(t, "8A", mp3.Key)

	// Unknown bitrate passes and the format comes from the filename
	flac := candidates[1]
	assert.Equal(t, "bob", flac.PeerID)
	assert.Equal(t, "flac", flac.Format)
	assert.Equal(t, 0, flac.BitrateKbps)

	// Each response is reported once
	require.Len(t, partials, 2)
	assert.Len(t, partials[0], 1)
	assert.Equal(t, "alice", partials[0][0].PeerID)
	assert.Len(t, partials[1], 1)
	assert.Equal(t, "bob", partials[1][0].PeerID)

	for _, key := range fake.apiKeys {
		assert.Equal(t, "secret", key)
	}
}

func TestSlskdSearch_CancellationDeletesSearch(t *testing.T) {
	fake := &fakeSlskd{complete: -1}
	client := newTestSlskd(t, fake, t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	candidates, err := client.Search(ctx, domain.SearchRequest{Query: "x"}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, candidates)

	deleted := fake.deletedPaths()
	require.Len(t, deleted, 1)
	assert.True(t, strings.HasPrefix(deleted[0], "/api/v0/searches/"))
}

func TestSlskdSearch_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewSlskdClient(&domain.SlskdConfig{URL: server.URL, PollInterval: time.Millisecond}, domain.DiscoveryConfig{}, nil, nil)
	_, err := client.Search(context.Background(), domain.SearchRequest{Query: "x"}, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "bad key", apiErr.Body)
	assert.Error(t, client.Ping(context.Background()))
}

func TestSlskdDownload_Succeeds(t *testing.T) {
	downloads := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(downloads, "Album"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(downloads, "Album", "Song.flac"), []byte("flac-bytes"), 0644))

	remote := `music\Album\Song.flac`
	fake := &fakeSlskd{transfers: []transferFile{
		{ID: "t1", Filename: remote, State: "Queued, Remotely", Size: 10, PlaceInQueue: 4},
		{ID: "t1", Filename: remote, State: "InProgress", Size: 10, BytesTransferred: 5},
		{ID: "t1", Filename: remote, State: "Completed, Succeeded", Size: 10, BytesTransferred: 10},
	}}
	client := newTestSlskd(t, fake, downloads)

	destination := filepath.Join(t.TempDir(), "completed", "Artist - Song.flac")
	var progress []domain.TransferProgress
	err := client.Download(context.Background(), domain.TransferRequest{
		JobID:          "job",
		PeerID:         "peer",
		RemoteFilename: remote,
		Destination:    destination,
		ExpectedSize:   10,
	}, func(p domain.TransferProgress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	data, err := os.ReadFile(destination)
	require.NoError(t, err)
	assert.Equal(t, "flac-bytes", string(data))
	assert.False(t, fileExists(filepath.Join(downloads, "Album", "Song.flac")))

	require.Len(t, progress, 3)
	assert.True(t, progress[0].RemoteQueued)
	assert.Equal(t, 4, progress[0].QueuePosition)
	assert.False(t, progress[1].RemoteQueued)
	assert.Equal(t, int64(5), progress[1].BytesTransferred)
	assert.Equal(t, int64(10), progress[2].BytesTransferred)

	assert.Equal(t, []enqueueFile{{Filename: remote, Size: 10}}, fake.enqueued)
	assert.Equal(t, []string{"/api/v0/transfers/downloads/peer/t1?remove=true"}, fake.deletedPaths())
}

func TestSlskdDownload_RemoteFailure(t *testing.T) {
	fake := &fakeSlskd{transfers: []transferFile{
		{ID: "t2", Filename: "a.mp3", State: "Completed, Rejected"},
	}}
	client := newTestSlskd(t, fake, t.TempDir())

	err := client.Download(context.Background(), domain.TransferRequest{
		PeerID:         "peer",
		RemoteFilename: "a.mp3",
		Destination:    filepath.Join(t.TempDir(), "a.mp3"),
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Completed, Rejected")
}

func TestSlskdDownload_CancellationRemovesTransfer(t *testing.T) {
	fake := &fakeSlskd{transfers: []transferFile{
		{ID: "t3", Filename: "a.mp3", State: "InProgress", Size: 100, BytesTransferred: 1},
	}}
	client := newTestSlskd(t, fake, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	err := client.Download(ctx, domain.TransferRequest{
		PeerID:         "peer",
		RemoteFilename: "a.mp3",
		Destination:    filepath.Join(t.TempDir(), "a.mp3"),
	}, func(domain.TransferProgress) { cancel() })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"/api/v0/transfers/downloads/peer/t3?remove=true"}, fake.deletedPaths())
}

func TestLocateDownload_FlatLayout(t *testing.T) {
	downloads := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(downloads, "Song.mp3"), []byte("x"), 0644))

	client := newTestSlskd(t, &fakeSlskd{}, downloads)
	path, err := client.locateDownload(`share\Album\Song.mp3`)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(downloads, "Song.mp3"), path)

	_, err = client.locateDownload(`share\Album\Missing.mp3`)
	assert.Error(t, err)
}
