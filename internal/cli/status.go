package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pulsepoint/svnsync/internal/core/interfaces"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local changes in the working copy",
	Long: `Display the entries below the root directory that differ from the
checked-out revision.

With --remote the latest repository revision is shown as well.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("remote", false, "Also query the latest repository revision")
	statusCmd.Flags().Bool("json", false, "Output status in JSON format")
}

type statusReport struct {
	Root      string                   `json:"root"`
	RemoteURL string                   `json:"remote_url"`
	Revision  int64                    `json:"revision,omitempty"`
	Entries   []interfaces.StatusEntry `json:"entries"`
}

// statusIcons maps each content status to its marker
var statusIcons = map[interfaces.ContentStatus]string{
	interfaces.StatusModified:    "✏️ ",
	interfaces.StatusAdded:       "➕",
	interfaces.StatusDeleted:     "🗑️ ",
	interfaces.StatusConflicted:  "⚔️ ",
	interfaces.StatusUnversioned: "❓",
	interfaces.StatusMissing:     "❗",
	interfaces.StatusIgnored:     "🚫",
}

func runStatus(cmd *cobra.Command, args []string) error {
	remote, _ := cmd.Flags().GetBool("remote")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	engine, cleanup, err := newEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	cfg := engine.Config()
	report := statusReport{Root: cfg.RootPath, RemoteURL: cfg.RemoteURL}

	entries, err := engine.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	report.Entries = entries

	if remote {
		rev, err := engine.LatestRevision(ctx)
		if err != nil {
			return fmt.Errorf("failed to query repository: %w", err)
		}
		report.Revision = rev
	}

	if jsonOutput {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("🎯 svnsync Status\n")
	fmt.Printf("═══════════════════════════════════════\n\n")
	fmt.Printf("  📁 Root: %s\n", report.Root)
	fmt.Printf("  ☁️  Remote: %s\n", report.RemoteURL)
	if remote {
		fmt.Printf("  🔢 Latest revision: %d\n", report.Revision)
	}
	fmt.Printf("\n")

	if entries == nil {
		fmt.Printf("ℹ️  %s is not a working copy yet. Run 'svnsync pull' to check it out.\n", report.Root)
		return nil
	}
	if len(entries) == 0 {
		fmt.Printf("✅ No local changes\n")
		return nil
	}

	counts := make(map[interfaces.ContentStatus]int)
	for _, entry := range entries {
		counts[entry.ContentStatus]++
		rel, err := filepath.Rel(report.Root, entry.Path)
		if err != nil {
			rel = entry.Path
		}
		icon := statusIcons[entry.ContentStatus]
		if entry.TreeConflict {
			icon = statusIcons[interfaces.StatusConflicted]
		}
		fmt.Printf("  %s %-12s %s\n", icon, entry.ContentStatus, filepath.ToSlash(rel))
	}

	fmt.Printf("\n═══════════════════════════════════════\n")
	fmt.Printf("📊 %d changed entries", len(entries))
	if n := counts[interfaces.StatusConflicted]; n > 0 {
		fmt.Printf(" | ⚔️  %d conflicted", n)
	}
	fmt.Printf("\n")
	return nil
}
