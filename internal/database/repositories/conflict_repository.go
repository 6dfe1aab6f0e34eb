package repositories

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pulsepoint/svnsync/internal/database"
	"github.com/pulsepoint/svnsync/pkg/models"
)

// ConflictRepository manages resolved-conflict records in the database
type ConflictRepository struct {
	db *database.Manager
}

// NewConflictRepository creates a new conflict repository
func NewConflictRepository(db *database.Manager) *ConflictRepository {
	return &ConflictRepository{db: db}
}

// Create stores a conflict record, assigning an ID and detection time if unset
func (r *ConflictRepository) Create(conflict *models.Conflict) error {
	if conflict.ID == "" {
		conflict.ID = models.GenerateConflictID()
	}
	if conflict.DetectedAt.IsZero() {
		conflict.DetectedAt = time.Now()
	}

	return r.db.Put(database.BucketConflicts, conflict.ID, conflict)
}

// CreateBatch stores several conflict records in one write transaction
func (r *ConflictRepository) CreateBatch(conflicts []*models.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}

	return r.db.Transaction(true, func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(database.BucketConflicts))
		if b == nil {
			return fmt.Errorf("bucket %s not found", database.BucketConflicts)
		}

		for _, conflict := range conflicts {
			if conflict.ID == "" {
				conflict.ID = models.GenerateConflictID()
			}
			if conflict.DetectedAt.IsZero() {
				conflict.DetectedAt = time.Now()
			}

			data, err := json.Marshal(conflict)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(conflict.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get retrieves a conflict by ID
func (r *ConflictRepository) Get(id string) (*models.Conflict, error) {
	var conflict models.Conflict
	if err := r.db.Get(database.BucketConflicts, id, &conflict); err != nil {
		return nil, err
	}
	return &conflict, nil
}

// List lists all conflicts, oldest first
func (r *ConflictRepository) List() ([]*models.Conflict, error) {
	var conflicts []*models.Conflict

	err := r.db.Transaction(false, func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(database.BucketConflicts))
		if b == nil {
			return fmt.Errorf("bucket %s not found", database.BucketConflicts)
		}

		return b.ForEach(func(k, v []byte) error {
			var conflict models.Conflict
			if err := json.Unmarshal(v, &conflict); err != nil {
				return err
			}
			conflicts = append(conflicts, &conflict)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].DetectedAt.Before(conflicts[j].DetectedAt)
	})
	return conflicts, nil
}

// ListByTransaction lists the conflicts resolved by one transaction
func (r *ConflictRepository) ListByTransaction(transactionID string) ([]*models.Conflict, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}

	var filtered []*models.Conflict
	for _, conflict := range all {
		if conflict.TransactionID == transactionID {
			filtered = append(filtered, conflict)
		}
	}
	return filtered, nil
}

// GetByPath retrieves conflicts for a specific path
func (r *ConflictRepository) GetByPath(path string) ([]*models.Conflict, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}

	var filtered []*models.Conflict
	for _, conflict := range all {
		if conflict.Path == path {
			filtered = append(filtered, conflict)
		}
	}
	return filtered, nil
}

// Count returns the total number of conflicts
func (r *ConflictRepository) Count() (int, error) {
	return r.db.Count(database.BucketConflicts)
}

// Clear removes all conflicts from the database
func (r *ConflictRepository) Clear() error {
	return r.db.Clear(database.BucketConflicts)
}

// GetStatistics returns conflict statistics
func (r *ConflictRepository) GetStatistics() (*ConflictStatistics, error) {
	conflicts, err := r.List()
	if err != nil {
		return nil, err
	}

	stats := &ConflictStatistics{
		Total:      len(conflicts),
		ByKind:     make(map[string]int),
		ByDecision: make(map[string]int),
	}
	for _, conflict := range conflicts {
		stats.ByKind[conflict.Kind.String()]++
		stats.ByDecision[conflict.Decision.String()]++
	}
	return stats, nil
}

// ConflictStatistics represents statistics about resolved conflicts
type ConflictStatistics struct {
	Total      int            `json:"total"`
	ByKind     map[string]int `json:"by_kind"`
	ByDecision map[string]int `json:"by_decision"`
}
