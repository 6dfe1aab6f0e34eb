package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pulsepoint/svnsync/internal/config"
	"github.com/pulsepoint/svnsync/internal/database/repositories"
	"github.com/pulsepoint/svnsync/pkg/models"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View the operation history",
	Long: `Display the recorded sync operations, newest first, including the
conflicts each one resolved.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <transaction-id>",
	Short: "Show one operation and its conflicts",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Summarize resolved conflicts",
	Args:  cobra.NoArgs,
	RunE:  runHistoryConflicts,
}

var historyBackupCmd = &cobra.Command{
	Use:   "backup <file>",
	Short: "Copy the history database to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryBackup,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded operations and conflicts",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Number of operations to display")
	historyCmd.Flags().String("status", "", "Filter by status (completed, skipped, failed)")
	historyCmd.Flags().Bool("json", false, "Output history in JSON format")

	historyConflictsCmd.Flags().String("path", "", "List the conflicts recorded for one path")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyConflictsCmd)
	historyCmd.AddCommand(historyBackupCmd)
	historyCmd.AddCommand(historyClearCmd)
}

// openHistory opens the history store without requiring a complete configuration
func openHistory() (*repositories.History, error) {
	config.SetDefaults(viper.GetViper())
	path := expandHome(viper.GetString(config.KeyHistoryPath))
	if path == "" {
		return nil, fmt.Errorf("history_path is not configured")
	}
	history, err := repositories.OpenHistory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history at %s: %w", path, err)
	}
	return history, nil
}

// statusIcon returns the marker printed for a transaction status
func statusIcon(status models.TransactionStatus) string {
	switch status {
	case models.TransactionStatusCompleted:
		return "✅"
	case models.TransactionStatusSkipped:
		return "⏭️ "
	case models.TransactionStatusFailed:
		return "❌"
	default:
		return "⏳"
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	status, _ := cmd.Flags().GetString("status")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	history, err := openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	var txs []*models.Transaction
	if status != "" {
		txs, err = history.Transactions.ListByStatus(models.TransactionStatus(status))
		if err == nil && limit > 0 && len(txs) > limit {
			txs = txs[:limit]
		}
	} else {
		txs, err = history.Transactions.ListRecent(limit)
	}
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(txs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal history: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("📜 svnsync History\n")
	fmt.Printf("═══════════════════════════════════════\n")
	if status != "" {
		fmt.Printf("🔍 Filter: %s\n", status)
	}
	fmt.Printf("\n")

	if len(txs) == 0 {
		fmt.Printf("No operations recorded yet\n")
		return nil
	}

	for _, tx := range txs {
		target := tx.Path
		if target == "" {
			target = tx.Root
		}
		fmt.Printf("%s %-8s %-14s %-9s %s\n",
			statusIcon(tx.Status),
			tx.Type,
			humanize.Time(tx.StartTime),
			tx.Duration().Round(time.Millisecond),
			target)
		if len(tx.Conflicts) > 0 {
			fmt.Printf("   ⚔️  %d conflicts resolved\n", len(tx.Resolutions))
		}
		if tx.Error != "" {
			fmt.Printf("   ⚠️  %s\n", tx.Error)
		}
	}

	fmt.Printf("\n═══════════════════════════════════════\n")
	fmt.Printf("💡 Tip: Use 'svnsync history --json' to see transaction IDs, then 'svnsync history show <id>'\n")
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	history, err := openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	tx, err := history.Transactions.Get(args[0])
	if err != nil {
		return fmt.Errorf("transaction %s not found: %w", args[0], err)
	}
	conflicts, err := history.Conflicts.ListByTransaction(tx.ID)
	if err != nil {
		return fmt.Errorf("failed to read conflicts: %w", err)
	}

	fmt.Printf("🧾 Transaction %s\n", tx.ID)
	fmt.Printf("═══════════════════════════════════════\n")
	fmt.Printf("  Operation: %s\n", tx.Type)
	fmt.Printf("  Status:    %s %s\n", statusIcon(tx.Status), tx.Status)
	fmt.Printf("  Started:   %s (%s)\n", tx.StartTime.Format("2006-01-02 15:04:05"), humanize.Time(tx.StartTime))
	fmt.Printf("  Duration:  %s\n", tx.Duration().Round(time.Millisecond))
	fmt.Printf("  Root:      %s\n", tx.Root)
	fmt.Printf("  Remote:    %s\n", tx.RemoteURL)
	if tx.Path != "" {
		fmt.Printf("  Path:      %s\n", tx.Path)
	}
	if tx.Message != "" {
		fmt.Printf("  Message:   %q\n", tx.Message)
	}
	if tx.Error != "" {
		fmt.Printf("  Error:     %s\n", tx.Error)
	}

	if len(tx.Added) > 0 {
		fmt.Printf("\n➕ Added (%d)\n", len(tx.Added))
		for _, p := range tx.Added {
			fmt.Printf("  %s\n", p)
		}
	}
	if len(tx.Modified) > 0 {
		fmt.Printf("\n✏️  Committed (%d)\n", len(tx.Modified))
		for _, p := range tx.Modified {
			fmt.Printf("  %s\n", p)
		}
	}
	if len(conflicts) > 0 {
		fmt.Printf("\n⚔️  Conflicts (%d)\n", len(conflicts))
		for _, c := range conflicts {
			fmt.Printf("  %-12s %-11s %-18s %s\n", c.Decision, c.Action, c.Kind, c.Path)
		}
	}
	return nil
}

func runHistoryConflicts(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")

	history, err := openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	if path != "" {
		conflicts, err := history.Conflicts.GetByPath(path)
		if err != nil {
			return fmt.Errorf("failed to read conflicts: %w", err)
		}
		fmt.Printf("⚔️  %d conflicts on %s\n", len(conflicts), path)
		for _, c := range conflicts {
			fmt.Printf("  %-14s %-12s %-11s %-18s %s\n",
				humanize.Time(c.DetectedAt), c.Decision, c.Action, c.Kind, c.TransactionID)
		}
		return nil
	}

	stats, err := history.Conflicts.GetStatistics()
	if err != nil {
		return fmt.Errorf("failed to read conflicts: %w", err)
	}

	fmt.Printf("⚔️  Resolved conflicts: %s\n", humanize.Comma(int64(stats.Total)))
	if stats.Total == 0 {
		return nil
	}

	printCounts("By kind", stats.ByKind)
	printCounts("By decision", stats.ByDecision)
	return nil
}

func printCounts(title string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("\n%s\n", title)
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", k, counts[k])
	}
}

func runHistoryBackup(cmd *cobra.Command, args []string) error {
	history, err := openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	dest := expandHome(args[0])
	if err := history.Backup(dest); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	fmt.Printf("💾 History copied to %s\n", dest)
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	history, err := openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	if err := history.Transactions.Clear(); err != nil {
		return fmt.Errorf("failed to clear operations: %w", err)
	}
	if err := history.Conflicts.Clear(); err != nil {
		return fmt.Errorf("failed to clear conflicts: %w", err)
	}
	fmt.Printf("🗑️  History cleared\n")
	return nil
}
