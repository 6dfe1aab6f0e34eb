package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pulsepoint/svnsync/internal/config"
)

const redactedValue = "********"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage svnsync configuration",
	Long:  `View and modify svnsync configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that every required setting is present",
	RunE:  runConfigValidate,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open configuration file in editor",
	RunE:  runConfigEdit,
}

func init() {
	configShowCmd.Flags().Bool("show-secrets", false, "Print the password instead of masking it")
	configGetCmd.Flags().Bool("show-secrets", false, "Print the password instead of masking it")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configEditCmd)
}

// configFilePath returns the file in use, or the default location
func configFilePath() string {
	if configFile := viper.ConfigFileUsed(); configFile != "" {
		return configFile
	}
	return filepath.Join(config.Dir(), "config.yaml")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	showSecrets, _ := cmd.Flags().GetBool("show-secrets")

	fmt.Printf("📋 svnsync Configuration\n")
	fmt.Printf("═══════════════════════════════════════\n\n")
	fmt.Printf("📁 Config File: %s\n\n", configFilePath())

	// Display all settings, defaults included
	config.SetDefaults(viper.GetViper())
	settings := viper.AllSettings()
	if !showSecrets {
		if pw, ok := settings[config.KeyPassword].(string); ok && pw != "" {
			settings[config.KeyPassword] = redactedValue
		}
	}

	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	fmt.Println(string(yamlData))

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	// Set the value
	viper.Set(key, value)

	// Write config to file
	if err := viper.WriteConfig(); err != nil {
		if err := os.MkdirAll(config.Dir(), 0700); err != nil {
			return fmt.Errorf("failed to create svnsync directory: %w", err)
		}
		if err := viper.WriteConfigAs(configFilePath()); err != nil {
			return fmt.Errorf("failed to write configuration: %w", err)
		}
	}

	if key == config.KeyPassword {
		value = redactedValue
	}
	fmt.Printf("✅ Configuration updated\n")
	fmt.Printf("   %s = %s\n", key, value)

	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	showSecrets, _ := cmd.Flags().GetBool("show-secrets")

	key := args[0]
	config.SetDefaults(viper.GetViper())
	value := viper.Get(key)

	if value == nil {
		return fmt.Errorf("configuration key '%s' not found", key)
	}
	if key == config.KeyPassword && !showSecrets {
		value = redactedValue
	}

	fmt.Printf("%v\n", value)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("✅ Configuration is valid\n")
	fmt.Printf("   📁 Root: %s\n", cfg.RootPath)
	fmt.Printf("   ☁️  Remote: %s\n", cfg.RemoteURL)
	fmt.Printf("   👤 User: %s\n", cfg.Username)
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configFile := configFilePath()

	// Try to find an editor
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		// Default to common editors
		for _, e := range []string{"nano", "vim", "vi"} {
			if path, err := exec.LookPath(e); err == nil {
				editor = path
				break
			}
		}
	}

	if editor == "" {
		return fmt.Errorf("no editor found. Please set EDITOR environment variable")
	}

	fmt.Printf("📝 Opening %s in %s...\n", configFile, editor)

	c := exec.Command(editor, configFile)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor exited with error: %w", err)
	}
	return nil
}
