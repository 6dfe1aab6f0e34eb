package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// remoteCmd groups queries against the repository
var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Query the repository without touching the working copy",
}

var remoteExistsCmd = &cobra.Command{
	Use:   "exists <path>...",
	Short: "Check whether entries exist in the repository",
	Long: `Check whether each path, relative to remote_url, exists in the
repository. The command fails when any path is missing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemoteExists,
}

var remoteRevisionCmd = &cobra.Command{
	Use:   "revision",
	Short: "Print the latest repository revision",
	Args:  cobra.NoArgs,
	RunE:  runRemoteRevision,
}

func init() {
	remoteCmd.AddCommand(remoteExistsCmd)
	remoteCmd.AddCommand(remoteRevisionCmd)
}

func runRemoteExists(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := newEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	missing := 0
	for _, path := range args {
		ok, err := engine.RemoteExists(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", path, err)
		}
		if ok {
			fmt.Printf("✅ %s\n", path)
		} else {
			fmt.Printf("❌ %s\n", path)
			missing++
		}
	}

	if missing > 0 {
		return fmt.Errorf("%d of %d entries missing from the repository", missing, len(args))
	}
	return nil
}

func runRemoteRevision(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := newEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	rev, err := engine.LatestRevision(ctx)
	if err != nil {
		return fmt.Errorf("failed to query repository: %w", err)
	}
	fmt.Println(rev)
	return nil
}
