package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// pullCmd represents the pull command
var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Bring the working copy up to date with the repository",
	Long: `Check out the repository into the root directory if needed, update it
to the latest revision, and resolve any conflicts with the --conflict policy.`,
	Args: cobra.NoArgs,
	RunE: runPull,
}

// pushCmd represents the push command
var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Commit every local change to the repository",
	Long: `Pull first, then schedule every unversioned file that is not ignored
and commit all local changes in a single revision.

Ignore patterns come from ignore_patterns and the .svnsyncignore file in the
root directory.`,
	Args: cobra.NoArgs,
	RunE: runPush,
}

func runPull(cmd *cobra.Command, args []string) error {
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
	fmt.Printf("⬇️  Pulling %s\n", cfg.RemoteURL)
	fmt.Printf("📁 Into: %s\n", cfg.RootPath)

	if err := engine.Pull(ctx, policy); err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	fmt.Printf("✅ Working copy is up to date\n")
	printSummary(engine)
	return nil
}

func runPush(cmd *cobra.Command, args []string) error {
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
	fmt.Printf("⬆️  Pushing %s\n", cfg.RootPath)
	fmt.Printf("☁️  To: %s\n", cfg.RemoteURL)

	if err := engine.Push(ctx, policy); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	fmt.Printf("✅ Local changes committed\n")
	printSummary(engine)
	return nil
}
