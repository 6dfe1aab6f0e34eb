package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulsepoint/svnsync/internal/sync"
	"github.com/pulsepoint/svnsync/internal/watcher"
)

// watchCmd represents the watch command (main monitoring command)
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Push local changes automatically",
	Long: `Monitor the root directory and push as soon as local changes settle.

The working copy is pulled once at startup. With --pull-interval remote
changes are pulled periodically as well. Failed pushes are logged and
retried on the next change.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("debounce", 2*time.Second, "Quiet period after the last change before pushing")
	watchCmd.Flags().Duration("pull-interval", 0, "Pull remote changes periodically (e.g., 5m); 0 disables")
	watchCmd.Flags().StringSlice("ignore", []string{}, "Additional patterns to ignore (gitignore style)")
	watchCmd.Flags().Duration("report-interval", 30*time.Second, "How often to print watcher statistics")
}

func runWatch(cmd *cobra.Command, args []string) error {
	debounce, _ := cmd.Flags().GetDuration("debounce")
	pullInterval, _ := cmd.Flags().GetDuration("pull-interval")
	extraIgnore, _ := cmd.Flags().GetStringSlice("ignore")
	reportInterval, _ := cmd.Flags().GetDuration("report-interval")

	policy, err := conflictPolicy(cmd)
	if err != nil {
		return err
	}

	engine, cleanup, err := newEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	cfg := engine.Config()

	fmt.Printf("🚀 Starting svnsync watch\n")
	fmt.Printf("📁 Root: %s\n", cfg.RootPath)
	fmt.Printf("☁️  Remote: %s\n", cfg.RemoteURL)
	fmt.Printf("⏳ Debounce: %s\n", debounce)
	if pullInterval > 0 {
		fmt.Printf("⏱️  Pull interval: %s\n", pullInterval)
	}

	// The root must be a working copy before it can be watched
	if err := engine.Pull(ctx, policy); err != nil {
		return fmt.Errorf("initial pull failed: %w", err)
	}

	patterns := append(cfg.IgnorePatterns, extraIgnore...)
	patterns = sync.IgnoreLines(cfg.RootPath, patterns, logger)
	if len(patterns) > 0 {
		fmt.Printf("🚫 Ignore patterns: %v\n", patterns)
	}

	push := func(ctx context.Context) error {
		fmt.Printf("[%s] ⬆️  Pushing local changes\n", time.Now().Format("15:04:05"))
		if err := engine.Push(ctx, policy); err != nil {
			fmt.Printf("[%s] ❌ Push failed: %v\n", time.Now().Format("15:04:05"), err)
			return err
		}
		fmt.Printf("[%s] ✅ Pushed\n", time.Now().Format("15:04:05"))
		return nil
	}
	pull := func(ctx context.Context) error {
		return engine.Pull(ctx, policy)
	}

	w, err := watcher.New(watcher.Config{
		Root:           cfg.RootPath,
		Debounce:       debounce,
		PullInterval:   pullInterval,
		IgnorePatterns: patterns,
	}, push, pull)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case err := <-done:
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	fmt.Printf("💓 svnsync is watching... Press Ctrl+C to stop\n\n")

	var tickC <-chan time.Time
	if reportInterval > 0 {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case err := <-done:
			fmt.Printf("\n[%s] 🛑 Stopped\n", time.Now().Format("15:04:05"))
			printWatchStats(w.Stats())
			return err
		case <-tickC:
			stats := w.Stats()
			logger.Debug("Watcher statistics",
				zap.Int64("events", stats.Events),
				zap.Int64("pushes", stats.Pushes),
				zap.Int64("failures", stats.Failures))
			if stats.Events > 0 {
				printWatchStats(stats)
			}
		}
	}
}

func printWatchStats(stats watcher.Stats) {
	last := "never"
	if !stats.LastPush.IsZero() {
		last = humanize.Time(stats.LastPush)
	}
	fmt.Printf("[%s] 📊 %s changes | %d pushes | %d pulls | %d failures | last push %s | %d directories\n",
		time.Now().Format("15:04:05"),
		humanize.Comma(stats.Events),
		stats.Pushes,
		stats.Pulls,
		stats.Failures,
		last,
		stats.WatchedDirs)
}
