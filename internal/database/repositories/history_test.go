package repositories

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsepoint/svnsync/internal/core/interfaces"
	"github.com/pulsepoint/svnsync/internal/database"
	"github.com/pulsepoint/svnsync/pkg/models"
)

var _ interfaces.HistoryStore = (*History)(nil)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestTransactionRepository(t *testing.T) {
	h := openTestHistory(t)
	base := time.Now()

	older := &models.Transaction{ID: "tx-1", Type: models.OperationPull, Status: models.TransactionStatusCompleted, StartTime: base}
	newer := &models.Transaction{ID: "tx-2", Type: models.OperationPush, Status: models.TransactionStatusFailed, StartTime: base.Add(time.Minute), Error: "boom"}
	require.NoError(t, h.SaveTransaction(older))
	require.NoError(t, h.SaveTransaction(newer))

	got, err := h.Transactions.Get("tx-2")
	require.NoError(t, err)
	assert.Equal(t, models.OperationPush, got.Type)
	assert.Equal(t, "boom", got.Error)

	list, err := h.Transactions.ListRecent(0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "tx-2", list[0].ID)

	limited, err := h.Transactions.ListRecent(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	failed, err := h.Transactions.ListByStatus(models.TransactionStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "tx-2", failed[0].ID)

	// saving again replaces
	older.Status = models.TransactionStatusFailed
	require.NoError(t, h.SaveTransaction(older))
	count, err := h.Transactions.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = h.Transactions.Get("missing")
	assert.ErrorIs(t, err, database.ErrNotFound)

	assert.Error(t, h.SaveTransaction(&models.Transaction{}))
}

func TestConflictRepository(t *testing.T) {
	h := openTestHistory(t)

	conflicts := []*models.Conflict{
		{TransactionID: "tx-1", Path: "/wc/a.txt", Kind: models.ConflictKind{Type: models.ConflictTypeText}, Decision: models.KeepLocal, Action: models.ResolvedMineFull},
		{TransactionID: "tx-1", Path: "/wc/b.txt", Kind: models.ConflictKind{Type: models.ConflictTypeTree, Action: models.ActionDelete, Reason: models.ReasonEdited}, Decision: models.KeepRemote, Action: models.ResolvedRemoved},
		{TransactionID: "tx-2", Path: "/wc/a.txt", Decision: models.KeepRemote, Action: models.ResolvedTheirsFull},
	}
	require.NoError(t, h.SaveConflicts(conflicts))
	for _, c := range conflicts {
		assert.NotEmpty(t, c.ID)
		assert.False(t, c.DetectedAt.IsZero())
	}

	byTx, err := h.Conflicts.ListByTransaction("tx-1")
	require.NoError(t, err)
	assert.Len(t, byTx, 2)

	byPath, err := h.Conflicts.GetByPath("/wc/a.txt")
	require.NoError(t, err)
	assert.Len(t, byPath, 2)

	stats, err := h.Conflicts.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByDecision["keep-remote"])
	assert.Equal(t, 1, stats.ByKind["delete/edited"])

	require.NoError(t, h.SaveConflicts(nil))
	require.NoError(t, h.Conflicts.Clear())
	count, err := h.Conflicts.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHistoryBackup(t *testing.T) {
	h := openTestHistory(t)
	require.NoError(t, h.SaveTransaction(&models.Transaction{ID: "tx-1", StartTime: time.Now()}))

	backup := filepath.Join(t.TempDir(), "nested", "backup.db")
	require.NoError(t, h.Backup(backup))

	restored, err := OpenHistory(backup)
	require.NoError(t, err)
	defer restored.Close()

	got, err := restored.Transactions.Get("tx-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", got.ID)
}
