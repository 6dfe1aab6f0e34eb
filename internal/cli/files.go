package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <entry>",
	Short: "Make sure an entry exists locally",
	Long: `Return the local path of an entry below the root directory. When the
entry is missing the working copy is pulled first.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Add a file to the repository",
	Long: `Schedule a file or directory below the root directory for addition and
commit it. Relative paths are resolved against the root directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <path>",
	Short: "Remove a file from the working copy and the repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func runDownload(cmd *cobra.Command, args []string) error {
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

	path, err := engine.Download(ctx, args[0], policy)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Println(path)
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
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

	path, err := engine.Upload(ctx, args[0], policy)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	if path == "" {
		fmt.Printf("ℹ️  Nothing to upload: %s\n", args[0])
		return nil
	}
	fmt.Printf("✅ Uploaded: %s\n", path)
	printSummary(engine)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
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

	if err := engine.Delete(ctx, args[0], policy); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	fmt.Printf("🗑️  Deleted: %s\n", args[0])
	printSummary(engine)
	return nil
}
