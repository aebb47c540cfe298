package infrastructure

import (
	"errors"
	"fmt"
	"sync"

	"github.com/yourusername/trackfetch-go/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLiteRepository implements JobRecordRepository and BlockListRepository using SQLite
type SQLiteRepository struct {
	db *gorm.DB

	// blocked mirrors the blocked_peers table so ban-list lookups stay in memory
	mu      sync.RWMutex
	blocked map[string]bool
}

// NewSQLiteRepository opens (or creates) the database at dbPath
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Auto-migrate the schema for JobRecord and BlockedPeer
	if err := db.AutoMigrate(&domain.JobRecord{}, &domain.BlockedPeer{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	r := &SQLiteRepository{db: db, blocked: make(map[string]bool)}
	if err := r.loadBlocked(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRepository) loadBlocked() error {
	var peers []*domain.BlockedPeer
	if err := r.db.Find(&peers).Error; err != nil {
		return fmt.Errorf("failed to load block list: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range peers {
		r.blocked[p.PeerID] = true
	}
	return nil
}

// ============================================================================
// JobRecordRepository implementation
// ============================================================================

// Save inserts or replaces a job record
func (r *SQLiteRepository) Save(record *domain.JobRecord) error {
	return r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(record).Error
}

// FindByID finds a job record by job id
func (r *SQLiteRepository) FindByID(id string) (*domain.JobRecord, error) {
	var record domain.JobRecord
	err := r.db.First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &record, nil
}

// FindAll lists job records newest first. An empty state matches every
// record and a limit of 0 means no limit.
func (r *SQLiteRepository) FindAll(state domain.JobState, limit int) ([]*domain.JobRecord, error) {
	var records []*domain.JobRecord
	query := r.db.Order("archived_at DESC, created_at DESC")

	if state != "" {
		query = query.Where("state = ?", state)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&records).Error
	return records, err
}

// Count returns the total number of job records
func (r *SQLiteRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&domain.JobRecord{}).Count(&count).Error
	return count, err
}

// GetStats returns job record counts per state
func (r *SQLiteRepository) GetStats() (*domain.JobStats, error) {
	stats := &domain.JobStats{}

	stateCounts := []struct {
		State domain.JobState
		Count int64
	}{}

	if err := r.db.Model(&domain.JobRecord{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&stateCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range stateCounts {
		stats.Total += sc.Count
		switch sc.State {
		case domain.StateQueued:
			stats.Queued = sc.Count
		case domain.StateDownloading:
			stats.Downloading = sc.Count
		case domain.StateCompleted:
			stats.Completed = sc.Count
		case domain.StateFailed:
			stats.Failed = sc.Count
		case domain.StateCancelled:
			stats.Cancelled = sc.Count
		}
	}

	return stats, nil
}

// ============================================================================
// BlockListRepository implementation
// ============================================================================

// IsBlocked reports whether peerID is on the block list
func (r *SQLiteRepository) IsBlocked(peerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.blocked[peerID]
}

// Block adds a peer to the block list, updating the reason if it is already there
func (r *SQLiteRepository) Block(peerID, reason string) error {
	if peerID == "" {
		return fmt.Errorf("peer id is required")
	}

	peer := &domain.BlockedPeer{PeerID: peerID, Reason: reason}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "peer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason"}),
	}).Create(peer).Error
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.blocked[peerID] = true
	r.mu.Unlock()
	return nil
}

// Unblock removes a peer from the block list
func (r *SQLiteRepository) Unblock(peerID string) error {
	if err := r.db.Delete(&domain.BlockedPeer{}, "peer_id = ?", peerID).Error; err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.blocked, peerID)
	r.mu.Unlock()
	return nil
}

// List returns all blocked peers, oldest first
func (r *SQLiteRepository) List() ([]*domain.BlockedPeer, error) {
	var peers []*domain.BlockedPeer
	err := r.db.Order("created_at ASC").Find(&peers).Error
	return peers, err
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
