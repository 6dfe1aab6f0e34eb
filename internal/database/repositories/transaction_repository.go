package repositories

import (
	"encoding/json"
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/pulsepoint/svnsync/internal/database"
	"github.com/pulsepoint/svnsync/pkg/models"
)

// TransactionRepository manages sync transaction records
type TransactionRepository struct {
	db *database.Manager
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.Manager) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Save stores or replaces a transaction record
func (r *TransactionRepository) Save(tx *models.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	return r.db.Put(database.BucketTransactions, tx.ID, tx)
}

// Get retrieves a transaction by ID
func (r *TransactionRepository) Get(id string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.Get(database.BucketTransactions, id, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// List returns all transactions, newest first
func (r *TransactionRepository) List() ([]*models.Transaction, error) {
	var txs []*models.Transaction

	err := r.db.Transaction(false, func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(database.BucketTransactions))
		if b == nil {
			return fmt.Errorf("bucket %s not found", database.BucketTransactions)
		}

		return b.ForEach(func(k, v []byte) error {
			var t models.Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			txs = append(txs, &t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].StartTime.After(txs[j].StartTime)
	})
	return txs, nil
}

// ListRecent returns at most limit transactions, newest first.
// A limit of zero or less returns everything.
func (r *TransactionRepository) ListRecent(limit int) ([]*models.Transaction, error) {
	txs, err := r.List()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// ListByStatus returns transactions with the given status, newest first
func (r *TransactionRepository) ListByStatus(status models.TransactionStatus) ([]*models.Transaction, error) {
	txs, err := r.List()
	if err != nil {
		return nil, err
	}

	var filtered []*models.Transaction
	for _, t := range txs {
		if t.Status == status {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// Count returns the number of stored transactions
func (r *TransactionRepository) Count() (int, error) {
	return r.db.Count(database.BucketTransactions)
}

// Clear removes every transaction
func (r *TransactionRepository) Clear() error {
	return r.db.Clear(database.BucketTransactions)
}
