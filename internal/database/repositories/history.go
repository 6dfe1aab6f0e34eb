package repositories

import (
	"github.com/pulsepoint/svnsync/internal/database"
	"github.com/pulsepoint/svnsync/pkg/models"
)

// History is the bbolt-backed operation history used by the sync engine
type History struct {
	db           *database.Manager
	Transactions *TransactionRepository
	Conflicts    *ConflictRepository
}

// OpenHistory opens (creating if needed) the history database at path
func OpenHistory(path string) (*History, error) {
	db, err := database.NewManager(database.DefaultOptions(path))
	if err != nil {
		return nil, err
	}
	if err := db.Open(); err != nil {
		return nil, err
	}
	return NewHistory(db), nil
}

// NewHistory wraps an open database manager
func NewHistory(db *database.Manager) *History {
	return &History{
		db:           db,
		Transactions: NewTransactionRepository(db),
		Conflicts:    NewConflictRepository(db),
	}
}

// SaveTransaction stores or replaces a transaction record
func (h *History) SaveTransaction(tx *models.Transaction) error {
	return h.Transactions.Save(tx)
}

// SaveConflicts stores the conflicts resolved during a transaction
func (h *History) SaveConflicts(conflicts []*models.Conflict) error {
	return h.Conflicts.CreateBatch(conflicts)
}

// Backup copies the history database to path
func (h *History) Backup(path string) error {
	return h.db.Backup(path)
}

// Close closes the underlying database
func (h *History) Close() error {
	return h.db.Close()
}
