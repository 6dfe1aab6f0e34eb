// Package config loads and validates the settings a sync engine is built from
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/pulsepoint/svnsync/internal/core/interfaces"
	pperrors "github.com/pulsepoint/svnsync/pkg/errors"
)

// Config keys as they appear in the YAML file and, upper-cased with an
// SVNSYNC_ prefix, in the environment.
const (
	KeyRootPath        = "root_path"
	KeyRemoteURL       = "remote_url"
	KeyUsername        = "username"
	KeyPassword        = "password"
	KeyIgnorePatterns  = "ignore_patterns"
	KeyLockFile        = "lock_file"
	KeyHistoryPath     = "history_path"
	KeySVNBinary       = "svn_binary"
	KeyTrustServerCert = "trust_server_cert"
	KeyCheckoutDepth   = "checkout_depth"
)

// EnvPrefix is the prefix of environment variables overriding config keys
const EnvPrefix = "SVNSYNC"

// Config holds everything needed to construct a sync engine
type Config struct {
	RootPath  string `mapstructure:"root_path" yaml:"root_path"`
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	Username  string `mapstructure:"username" yaml:"username"`
	Password  string `mapstructure:"password" yaml:"password"`

	IgnorePatterns  []string `mapstructure:"ignore_patterns" yaml:"ignore_patterns"`
	LockFile        string   `mapstructure:"lock_file" yaml:"lock_file"`
	HistoryPath     string   `mapstructure:"history_path" yaml:"history_path"`
	SVNBinary       string   `mapstructure:"svn_binary" yaml:"svn_binary"`
	TrustServerCert bool     `mapstructure:"trust_server_cert" yaml:"trust_server_cert"`
	CheckoutDepth   string   `mapstructure:"checkout_depth" yaml:"checkout_depth"`
}

// Default returns a config with every optional field set and the required ones empty
func Default() *Config {
	return &Config{
		IgnorePatterns:  []string{},
		HistoryPath:     filepath.Join(Dir(), "history.db"),
		SVNBinary:       "svn",
		TrustServerCert: true,
		CheckoutDepth:   string(interfaces.DepthInfinity),
	}
}

// Dir returns the svnsync home directory (~/.svnsync)
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".svnsync"
	}
	return filepath.Join(home, ".svnsync")
}

// SetDefaults registers defaults for every key so that environment overrides
// are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyRootPath, "")
	v.SetDefault(KeyRemoteURL, "")
	v.SetDefault(KeyUsername, "")
	v.SetDefault(KeyPassword, "")
	v.SetDefault(KeyIgnorePatterns, d.IgnorePatterns)
	v.SetDefault(KeyLockFile, d.LockFile)
	v.SetDefault(KeyHistoryPath, d.HistoryPath)
	v.SetDefault(KeySVNBinary, d.SVNBinary)
	v.SetDefault(KeyTrustServerCert, d.TrustServerCert)
	v.SetDefault(KeyCheckoutDepth, d.CheckoutDepth)
}

// Load builds a validated Config from a viper instance
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, pperrors.NewConfigError("failed to decode configuration", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// settingsAliases maps keys of the flat settings form onto config keys.
// The Svn* spellings are the ones older settings files use.
var settingsAliases = map[string]string{
	"RootPath":    KeyRootPath,
	"RemoteUrl":   KeyRemoteURL,
	"SvnUrl":      KeyRemoteURL,
	"Username":    KeyUsername,
	"SvnUser":     KeyUsername,
	"Password":    KeyPassword,
	"SvnPassword": KeyPassword,
}

// FromSettings builds a validated Config from a flat key/value settings map
func FromSettings(settings map[string]string) (*Config, error) {
	cfg := Default()
	for key, value := range settings {
		name, ok := settingsAliases[key]
		if !ok {
			name = key
		}
		switch name {
		case KeyRootPath:
			cfg.RootPath = value
		case KeyRemoteURL:
			cfg.RemoteURL = value
		case KeyUsername:
			cfg.Username = value
		case KeyPassword:
			cfg.Password = value
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the four required settings are present and well formed
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.RootPath) == "" {
		missing = append(missing, KeyRootPath)
	}
	if strings.TrimSpace(c.RemoteURL) == "" {
		missing = append(missing, KeyRemoteURL)
	}
	if c.Username == "" {
		missing = append(missing, KeyUsername)
	}
	if c.Password == "" {
		missing = append(missing, KeyPassword)
	}
	if len(missing) > 0 {
		return pperrors.NewConfigError(
			fmt.Sprintf("missing required settings: %s", strings.Join(missing, ", ")), nil,
		).WithContext("missing", missing)
	}

	u, err := url.Parse(c.RemoteURL)
	if err != nil {
		return pperrors.NewConfigError("remote_url is not a valid URL", err)
	}
	if u.Scheme == "" {
		return pperrors.NewConfigError(fmt.Sprintf("remote_url %q has no scheme", c.RemoteURL), nil)
	}

	switch interfaces.Depth(c.CheckoutDepth) {
	case "", interfaces.DepthEmpty, interfaces.DepthFiles, interfaces.DepthImmediates, interfaces.DepthInfinity:
	default:
		return pperrors.NewConfigError(fmt.Sprintf("unknown checkout_depth %q", c.CheckoutDepth), nil)
	}

	return nil
}

// Depth returns the configured checkout depth, defaulting to infinity
func (c *Config) Depth() interfaces.Depth {
	if c.CheckoutDepth == "" {
		return interfaces.DepthInfinity
	}
	return interfaces.Depth(c.CheckoutDepth)
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() Config {
	out := *c
	if out.Password != "" {
		out.Password = "********"
	}
	return out
}
