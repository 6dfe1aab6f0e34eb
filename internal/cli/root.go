// Package cli implements the command-line interface for svnsync
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pulsepoint/svnsync/internal/config"
	pplogger "github.com/pulsepoint/svnsync/pkg/logger"
)

var (
	cfgFile     string
	verboseMode bool
	logger      *zap.Logger
	version     string
	buildDate   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "svnsync",
	Short: "svnsync - Keep a local directory in sync with a Subversion repository",
	Long: `svnsync mirrors a local directory against a Subversion repository.

It checks out and updates the working copy, commits local changes, and
resolves conflicts with a keep-local or keep-remote policy. The watch
command pushes automatically whenever local files change.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, bd string) {
	version = v
	buildDate = bd
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildDate)
}

func init() {
	// Replaced in initConfig
	logger = zap.NewNop()

	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.svnsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("root", "", "local working copy (overrides root_path)")
	rootCmd.PersistentFlags().String("conflict", "keep-local", "conflict policy: keep-local or keep-remote")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag(config.KeyRootPath, rootCmd.PersistentFlags().Lookup("root"))

	// Add all subcommands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(historyCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(config.Dir())
		viper.AddConfigPath("/etc/svnsync/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	configErr := viper.ReadInConfig()

	initLogger()

	if configErr == nil {
		logger.Debug("Using config file", zap.String("file", viper.ConfigFileUsed()))
	} else if _, ok := configErr.(viper.ConfigFileNotFoundError); !ok {
		logger.Warn("Failed to read config file", zap.Error(configErr))
	}
}

// initLogger configures the global logger from the logging.* keys
func initLogger() {
	logConfig := pplogger.DefaultConfig()
	if level := viper.GetString("logging.level"); level != "" {
		logConfig.Level = level
	}
	if file := viper.GetString("logging.file"); file != "" {
		logConfig.OutputPath = file
	}
	if viper.IsSet("logging.max_size") {
		logConfig.MaxSize = viper.GetInt("logging.max_size")
	}
	if viper.IsSet("logging.max_backups") {
		logConfig.MaxBackups = viper.GetInt("logging.max_backups")
	}
	if viper.IsSet("logging.max_age") {
		logConfig.MaxAge = viper.GetInt("logging.max_age")
	}
	logConfig.EnableJSON = viper.GetBool("logging.json")
	if verboseMode {
		logConfig.Level = "debug"
		logConfig.Development = true
	}

	if err := pplogger.Initialize(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  File logging disabled: %v\n", err)
		if fallback, err := zap.NewProduction(); err == nil {
			pplogger.SetLogger(fallback)
		}
	}
	logger = pplogger.Named("cli")
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// expandHome resolves a leading ~ in path
func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
