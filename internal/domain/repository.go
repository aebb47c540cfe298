package domain

import "time"

// JobRecord is the persisted terminal outcome of a job
type JobRecord struct {
	ID               string     `json:"id" gorm:"primaryKey"`
	Artist           string     `json:"artist"`
	Title            string     `json:"title"`
	PeerID           string     `json:"peer_id" gorm:"index"`
	Filename         string     `json:"filename"`
	Format           string     `json:"format"`
	BitrateKbps      int        `json:"bitrate_kbps"`
	Destination      string     `json:"destination"`
	State            JobState   `json:"state" gorm:"not null;index"`
	BytesTransferred int64      `json:"bytes_transferred"`
	SizeBytes        int64      `json:"size_bytes"`
	RetryCount       int        `json:"retry_count"`
	ErrorMessage     string     `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ArchivedAt       time.Time  `json:"archived_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (JobRecord) TableName() string {
	return "job_records"
}

// NewJobRecord flattens a job snapshot for storage
func NewJobRecord(job Job) *JobRecord {
	return &JobRecord{
		ID:               job.ID,
		Artist:           job.Query.Artist,
		Title:            job.Query.Title,
		PeerID:           job.Candidate.PeerID,
		Filename:         job.Candidate.Filename,
		Format:           job.Candidate.Format,
		BitrateKbps:      job.Candidate.BitrateKbps,
		Destination:      job.Destination,
		State:            job.State,
		BytesTransferred: job.BytesTransferred,
		SizeBytes:        job.Candidate.SizeBytes,
		RetryCount:       job.RetryCount,
		ErrorMessage:     job.ErrorMessage,
		CreatedAt:        job.CreatedAt,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
	}
}

// BlockedPeer is a peer the user never wants to download from
type BlockedPeer struct {
	PeerID    string    `json:"peer_id" gorm:"primaryKey"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (BlockedPeer) TableName() string {
	return "blocked_peers"
}

// JobRecordRepository defines persistence of terminal job outcomes
type JobRecordRepository interface {
	// Save inserts or replaces a record
	Save(record *JobRecord) error

	// FindByID finds a record by job id
	FindByID(id string) (*JobRecord, error)

	// FindAll lists records, newest first, optionally filtered by state
	FindAll(state JobState, limit int) ([]*JobRecord, error)

	// GetStats returns record counts per state
	GetStats() (*JobStats, error)
}

// BanList answers the Safety Gate's block-list lookup
type BanList interface {
	IsBlocked(peerID string) bool
}

// BlockListRepository defines persistence of blocked peers
type BlockListRepository interface {
	BanList

	// Block adds or updates a blocked peer
	Block(peerID, reason string) error

	// Unblock removes a peer from the block list
	Unblock(peerID string) error

	// List returns all blocked peers
	List() ([]*BlockedPeer, error)
}
