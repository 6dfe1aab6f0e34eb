package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulsepoint/svnsync/internal/config"
	pplogger "github.com/pulsepoint/svnsync/pkg/logger"
	"github.com/pulsepoint/svnsync/pkg/models"
)

func TestMain(m *testing.M) {
	pplogger.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

func TestCommandsAreRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"init", "config", "download", "upload", "delete", "pull", "push", "watch", "status", "remote", "history"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestConflictPolicy(t *testing.T) {
	newCmd := func(value string) *cobra.Command {
		cmd := &cobra.Command{Use: "test"}
		cmd.Flags().String("conflict", "keep-local", "")
		require.NoError(t, cmd.Flags().Set("conflict", value))
		return cmd
	}

	paths := []string{"/wc/a.txt", "/wc/b.txt"}

	policy, err := conflictPolicy(newCmd("keep-remote"))
	require.NoError(t, err)
	decisions, err := policy(paths)
	require.NoError(t, err)
	assert.Equal(t, models.KeepRemote, decisions["/wc/a.txt"])
	assert.Equal(t, models.KeepRemote, decisions["/wc/b.txt"])

	policy, err = conflictPolicy(newCmd("local"))
	require.NoError(t, err)
	decisions, err = policy(paths)
	require.NoError(t, err)
	assert.Equal(t, models.KeepLocal, decisions["/wc/a.txt"])

	_, err = conflictPolicy(newCmd("merge"))
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "wc"), expandHome("~/wc"))
	assert.Equal(t, "/srv/wc", expandHome("/srv/wc"))
	assert.Equal(t, "~user/wc", expandHome("~user/wc"))
	assert.Equal(t, "", expandHome(""))
}

func TestHistoryCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	viper.Set(config.KeyHistoryPath, path)
	t.Cleanup(func() { viper.Set(config.KeyHistoryPath, "") })

	history, err := openHistory()
	require.NoError(t, err)
	tx := &models.Transaction{
		ID:        "tx-1",
		Type:      models.OperationPush,
		Root:      "/wc",
		Status:    models.TransactionStatusCompleted,
		StartTime: time.Now().Add(-time.Minute),
		EndTime:   time.Now(),
		Conflicts: []string{"/wc/a.txt"},
	}
	require.NoError(t, history.SaveTransaction(tx))
	require.NoError(t, history.SaveConflicts([]*models.Conflict{{
		ID:            models.GenerateConflictID(),
		TransactionID: tx.ID,
		Path:          "/wc/a.txt",
		Kind:          models.ConflictKind{Type: models.ConflictTypeText},
		Decision:      models.KeepLocal,
		Action:        models.ResolvedMineFull,
		DetectedAt:    time.Now(),
	}}))
	require.NoError(t, history.Close())

	require.NoError(t, runHistory(historyCmd, nil))
	require.NoError(t, runHistoryShow(historyShowCmd, []string{"tx-1"}))
	require.NoError(t, runHistoryConflicts(historyConflictsCmd, nil))
	assert.Error(t, runHistoryShow(historyShowCmd, []string{"missing"}))

	backup := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, runHistoryBackup(historyBackupCmd, []string{backup}))
	assert.FileExists(t, backup)

	require.NoError(t, runHistoryClear(historyClearCmd, nil))
	history, err = openHistory()
	require.NoError(t, err)
	defer history.Close()
	count, err := history.Transactions.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStatusIcon(t *testing.T) {
	assert.Equal(t, "✅", statusIcon(models.TransactionStatusCompleted))
	assert.Equal(t, "❌", statusIcon(models.TransactionStatusFailed))
	assert.Equal(t, "⏳", statusIcon(models.TransactionStatusRunning))
}
