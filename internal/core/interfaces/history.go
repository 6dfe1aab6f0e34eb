package interfaces

import (
	"github.com/pulsepoint/svnsync/pkg/models"
)

// HistoryStore persists the outcome of sync operations
type HistoryStore interface {
	// SaveTransaction stores or replaces a transaction record
	SaveTransaction(tx *models.Transaction) error

	// SaveConflicts stores the conflicts resolved during a transaction
	SaveConflicts(conflicts []*models.Conflict) error
}
