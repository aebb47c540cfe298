package domain

import "context"

// SearchRequest is a raw network search
type SearchRequest struct {
	Query            string
	PreferredFormats []string
	MinBitrateKbps   int
	MaxBitrateKbps   int // 0 = unbounded
	AlbumSearch      bool
}

// PartialResultsFunc receives candidates as they arrive during a search
type PartialResultsFunc func(batch []Candidate)

// Searcher returns unranked, unfiltered candidates from the peer network
type Searcher interface {
	// Search blocks until the network search ends or ctx is done. On
	// cancellation it aborts the in-flight call and returns ctx.Err().
	Search(ctx context.Context, req SearchRequest, onPartial PartialResultsFunc) ([]Candidate, error)
}

// TransferRequest describes one file to fetch from a peer
type TransferRequest struct {
	JobID          string
	PeerID         string
	RemoteFilename string
	Destination    string
	ExpectedSize   int64 // 0 when unknown
}

// TransferProgress is reported while a transfer runs
type TransferProgress struct {
	BytesTransferred int64
	TotalBytes       int64
	RemoteQueued     bool // peer is holding the transfer in its upload queue
	QueuePosition    int
}

// ProgressFunc receives transfer progress updates
type ProgressFunc func(TransferProgress)

// Transferer performs the byte transfer of a single file
type Transferer interface {
	// Download returns nil on success. Cancellation of ctx must abort the
	// transfer; the caller decides what the cancellation meant.
	Download(ctx context.Context, req TransferRequest, onProgress ProgressFunc) error
}

// JobObserver receives job lifecycle notifications
type JobObserver interface {
	OnJobUpdated(job Job)
	OnJobCompleted(job Job)
}

// JobRemovalObserver is implemented by observers that track evicted jobs
type JobRemovalObserver interface {
	OnJobRemoved(id string)
}
