package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pulsepoint/svnsync/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize svnsync configuration",
	Long: `Initialize svnsync configuration in your home directory.

This command creates the necessary configuration files and directories
for svnsync to operate. It will create:
- ~/.svnsync/config.yaml - Main configuration file
- ~/.svnsync/logs/ - Directory for log files

Values not given as flags are left empty; fill them in with
'svnsync config set' or by editing the file.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite existing configuration")
	initCmd.Flags().String("url", "", "Repository URL")
	initCmd.Flags().String("username", "", "Repository user")
	initCmd.Flags().String("password", "", "Repository password")
	initCmd.Flags().String("lock-file", "", "Lock file shared by svnsync processes")
}

func runInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	remoteURL, _ := cmd.Flags().GetString("url")
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	lockFile, _ := cmd.Flags().GetString("lock-file")
	root, _ := cmd.Flags().GetString("root")

	svnsyncDir := config.Dir()

	// Create svnsync directory
	if err := os.MkdirAll(filepath.Join(svnsyncDir, "logs"), 0700); err != nil {
		return fmt.Errorf("failed to create svnsync directory: %w", err)
	}

	configPath := filepath.Join(svnsyncDir, "config.yaml")

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration already exists at %s. Use --force to overwrite", configPath)
	}

	if root != "" {
		abs, err := filepath.Abs(expandHome(root))
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		root = abs
	}

	// Default configuration
	defaults := config.Default()
	defaultConfig := map[string]interface{}{
		config.KeyRootPath:        root,
		config.KeyRemoteURL:       remoteURL,
		config.KeyUsername:        username,
		config.KeyPassword:        password,
		config.KeyIgnorePatterns:  []string{"*.tmp", "*.swp", ".DS_Store", "Thumbs.db"},
		config.KeyLockFile:        lockFile,
		config.KeyHistoryPath:     defaults.HistoryPath,
		config.KeySVNBinary:       defaults.SVNBinary,
		config.KeyTrustServerCert: defaults.TrustServerCert,
		config.KeyCheckoutDepth:   defaults.CheckoutDepth,
		"logging": map[string]interface{}{
			"level":       "info",
			"file":        filepath.Join(svnsyncDir, "logs", "svnsync.log"),
			"max_size":    100,
			"max_backups": 5,
			"max_age":     30,
		},
	}

	// Write configuration file
	configData, err := yaml.Marshal(defaultConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	// The file may hold the repository password
	if err := os.WriteFile(configPath, configData, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Printf("✅ svnsync initialized successfully!\n")
	fmt.Printf("📁 Configuration directory: %s\n", svnsyncDir)
	fmt.Printf("📝 Configuration file: %s\n", configPath)
	fmt.Printf("\n")
	fmt.Printf("Next steps:\n")
	fmt.Printf("1. Set root_path, remote_url, username and password with 'svnsync config set'\n")
	fmt.Printf("2. Run 'svnsync pull' to check out the repository\n")
	fmt.Printf("3. Run 'svnsync watch' to push changes automatically\n")

	return nil
}
