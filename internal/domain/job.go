package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobState represents the current state of a download job
type JobState string

const (
	StateQueued      JobState = "queued"
	StateDownloading JobState = "downloading"
	StateCompleted   JobState = "completed"
	StateFailed      JobState = "failed"
	StateCancelled   JobState = "cancelled"
	StatePaused      JobState = "paused" // reserved; no transition produces it yet
)

// ValidateState checks if a job state is known
func ValidateState(state JobState) bool {
	switch state {
	case StateQueued, StateDownloading, StateCompleted, StateFailed, StateCancelled, StatePaused:
		return true
	default:
		return false
	}
}

// Job is one download of a resolved candidate. A published Job is never
// mutated: the orchestrator clones, changes and swaps the registry entry.
type Job struct {
	ID               string     `json:"id"`
	Query            TrackQuery `json:"query"`
	Candidate        Candidate  `json:"candidate"`
	Destination      string     `json:"destination"`
	State            JobState   `json:"state"`
	Progress         float64    `json:"progress"`
	BytesTransferred int64      `json:"bytes_transferred"`
	TotalBytes       *int64     `json:"total_bytes,omitempty"`
	RemoteQueued     bool       `json:"remote_queued"`
	QueuePosition    int        `json:"queue_position,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	StallCount       int        `json:"stall_count"`
	RetryCount       int        `json:"retry_count"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	LastProgressAt   time.Time  `json:"last_progress_at"`
}

// NewJob creates a queued job for a candidate
func NewJob(query TrackQuery, candidate Candidate, destination string) *Job {
	now := time.Now()
	job := &Job{
		ID:             uuid.New().String(),
		Query:          query,
		Candidate:      candidate,
		Destination:    destination,
		State:          StateQueued,
		CreatedAt:      now,
		LastProgressAt: now,
	}
	if candidate.SizeBytes > 0 {
		size := candidate.SizeBytes
		job.TotalBytes = &size
	}
	return job
}

// Clone returns a deep copy safe to modify
func (j *Job) Clone() *Job {
	c := *j
	if j.TotalBytes != nil {
		v := *j.TotalBytes
		c.TotalBytes = &v
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		c.StartedAt = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

// MarkDownloading marks the job as holding an execution slot
func (j *Job) MarkDownloading() {
	now := time.Now()
	j.State = StateDownloading
	j.StartedAt = &now
	j.LastProgressAt = now
	j.RemoteQueued = false
	j.QueuePosition = 0
}

// MarkProgress records transferred bytes. A transfer held in the peer's
// upload queue is shown as Queued while it keeps its slot.
func (j *Job) MarkProgress(transferred int64, total int64, remoteQueued bool, queuePosition int) {
	now := time.Now()
	if transferred != j.BytesTransferred {
		j.LastProgressAt = now
	}
	j.BytesTransferred = transferred
	if total > 0 {
		j.TotalBytes = &total
	}
	if j.TotalBytes != nil && *j.TotalBytes > 0 {
		j.Progress = clampFraction(float64(transferred) / float64(*j.TotalBytes))
	}
	j.RemoteQueued = remoteQueued
	j.QueuePosition = queuePosition
	if remoteQueued {
		j.State = StateQueued
	} else {
		j.State = StateDownloading
	}
}

// MarkCompleted marks the job as completed
func (j *Job) MarkCompleted() {
	now := time.Now()
	j.State = StateCompleted
	j.Progress = 1
	if j.TotalBytes != nil {
		j.BytesTransferred = *j.TotalBytes
	}
	j.CompletedAt = &now
	j.RemoteQueued = false
}

// MarkFailed marks the job as failed and keeps the message for the user
func (j *Job) MarkFailed(err error) {
	now := time.Now()
	j.State = StateFailed
	if err != nil {
		j.ErrorMessage = err.Error()
	}
	j.CompletedAt = &now
	j.RemoteQueued = false
}

// MarkCancelled marks the job as cancelled by the user
func (j *Job) MarkCancelled() {
	now := time.Now()
	j.State = StateCancelled
	j.CompletedAt = &now
	j.RemoteQueued = false
}

// MarkRequeued sends a stalled job back to the intake queue under the same id
func (j *Job) MarkRequeued(reason string) {
	now := time.Now()
	j.State = StateQueued
	j.RetryCount++
	j.StallCount = 0
	j.BytesTransferred = 0
	j.Progress = 0
	j.RemoteQueued = false
	j.QueuePosition = 0
	j.StartedAt = nil
	j.LastProgressAt = now
	if reason != "" {
		j.ErrorMessage = reason
	}
}

// IsTerminal checks if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return IsTerminalState(j.State)
}

// IsActive reports whether the health monitor watches this job
func (j *Job) IsActive() bool {
	return j.State == StateQueued || j.State == StateDownloading
}

// IsTerminalState reports whether no transition leaves the state
func IsTerminalState(state JobState) bool {
	return state == StateCompleted || state == StateFailed || state == StateCancelled
}

func clampFraction(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// JobStats counts jobs per state
type JobStats struct {
	Total       int64 `json:"total"`
	Queued      int64 `json:"queued"`
	Downloading int64 `json:"downloading"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Cancelled   int64 `json:"cancelled"`
}

// Add counts one job in its state bucket
func (s *JobStats) Add(state JobState) {
	s.Total++
	switch state {
	case StateQueued:
		s.Queued++
	case StateDownloading:
		s.Downloading++
	case StateCompleted:
		s.Completed++
	case StateFailed:
		s.Failed++
	case StateCancelled:
		s.Cancelled++
	}
}
