package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pulsepoint/svnsync/internal/config"
	"github.com/pulsepoint/svnsync/internal/database/repositories"
	"github.com/pulsepoint/svnsync/internal/sync"
	"github.com/pulsepoint/svnsync/internal/vcs/svn"
	"github.com/pulsepoint/svnsync/pkg/models"
)

// loadConfig reads the validated configuration from viper
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	cfg.RootPath = expandHome(cfg.RootPath)
	cfg.HistoryPath = expandHome(cfg.HistoryPath)
	cfg.LockFile = expandHome(cfg.LockFile)
	return cfg, nil
}

// newEngine builds an engine backed by the svn binary. The returned cleanup
// closes the history store and must always be called.
func newEngine() (*sync.Engine, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	var opts []sync.Option
	cleanup := func() {}
	if cfg.HistoryPath != "" {
		history, err := repositories.OpenHistory(cfg.HistoryPath)
		if err != nil {
			// Sync still works without history
			logger.Warn("Operation history disabled",
				zap.String("path", cfg.HistoryPath),
				zap.Error(err))
		} else {
			opts = append(opts, sync.WithHistory(history))
			cleanup = func() {
				if err := history.Close(); err != nil {
					logger.Warn("Failed to close history", zap.Error(err))
				}
			}
		}
	}

	engine, err := sync.NewEngine(cfg, svn.NewClient(svn.OptionsFromConfig(cfg)), opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return engine, cleanup, nil
}

// conflictPolicy returns the callback selected by the --conflict flag
func conflictPolicy(cmd *cobra.Command) (sync.ConflictCallback, error) {
	value, _ := cmd.Flags().GetString("conflict")
	decision, err := models.ParseDecision(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --conflict value: %w", err)
	}
	return sync.PolicyFor(decision), nil
}

// printSummary reports the outcome of the last engine operation
func printSummary(engine *sync.Engine) {
	m := engine.Metrics()
	fmt.Printf("⏱️  Duration: %s\n", m.LastDuration.Round(time.Millisecond))
	if m.ConflictsResolved > 0 {
		fmt.Printf("⚔️  Conflicts resolved: %d\n", m.ConflictsResolved)
	}
}
