package sync

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsepoint/svnsync/internal/config"
	"github.com/pulsepoint/svnsync/pkg/models"
)

// Metrics summarizes the operations an engine has run
type Metrics struct {
	TotalOperations      int64
	SuccessfulOperations int64
	FailedOperations     int64
	ConflictsResolved    int64

	LastOperation models.OperationType
	LastDuration  time.Duration
	LastError     string
	StartTime     time.Time
}

type metricsRecorder struct {
	mu      sync.RWMutex
	metrics Metrics
}

func newMetricsRecorder() *metricsRecorder {
	return &metricsRecorder{metrics: Metrics{StartTime: time.Now()}}
}

func (m *metricsRecorder) record(tx *models.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.TotalOperations++
	if tx.Status == models.TransactionStatusFailed {
		m.metrics.FailedOperations++
		m.metrics.LastError = tx.Error
	} else {
		m.metrics.SuccessfulOperations++
	}
	m.metrics.ConflictsResolved += int64(len(tx.Resolutions))
	m.metrics.LastOperation = tx.Type
	m.metrics.LastDuration = tx.Duration()
}

func (m *metricsRecorder) snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

func (e *Engine) createTransaction(op models.OperationType, path string, cfg config.Config) *models.Transaction {
	return &models.Transaction{
		ID:        uuid.New().String(),
		Type:      op,
		Path:      path,
		Root:      cfg.RootPath,
		RemoteURL: cfg.RemoteURL,
		Status:    models.TransactionStatusRunning,
		StartTime: time.Now(),
	}
}

// saveTransaction persists the finished transaction and its resolved
// conflicts. History failures are logged and never fail the operation.
func (e *Engine) saveTransaction(tx *models.Transaction, log *zap.Logger) {
	if e.history == nil {
		return
	}

	if err := e.history.SaveTransaction(tx); err != nil {
		log.Warn("Failed to save transaction", zap.Error(err))
		return
	}

	if len(tx.Resolutions) == 0 {
		return
	}

	conflicts := make([]*models.Conflict, 0, len(tx.Resolutions))
	for _, r := range tx.Resolutions {
		kind, ok := tx.ConflictKinds[r.Path]
		if !ok {
			kind = tx.ConflictOn
		}
		conflicts = append(conflicts, &models.Conflict{
			TransactionID: tx.ID,
			Path:          r.Path,
			Kind:          kind,
			Decision:      r.Decision,
			Action:        r.Action,
			DetectedAt:    tx.StartTime,
		})
	}

	if err := e.history.SaveConflicts(conflicts); err != nil {
		log.Warn("Failed to save conflicts", zap.Error(err))
	}
}
