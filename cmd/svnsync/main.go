// Package main is the entry point for the svnsync CLI application
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/pulsepoint/svnsync/internal/cli"
	pplogger "github.com/pulsepoint/svnsync/pkg/logger"
)

// Version information (set during build)
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	// Set version info for CLI
	cli.SetVersionInfo(Version, BuildDate)

	// Execute the root command; the logger is configured once flags are parsed
	err := cli.Execute()
	if err != nil {
		pplogger.Get().Error("svnsync execution failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	_ = pplogger.Sync()

	if err != nil {
		os.Exit(1)
	}
}
