package cmd

import (
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/spf13/cobra"
	"s3mirror/internal/syncer"
	"s3mirror/pkg/utils"
)

var pullTreeCmd = &cobra.Command{
	Use:   "pull-tree [remote-dir]",
	Short: "Mirror a remote directory tree into a local directory",
	Long: `Mirror a directory of the bucket, browsed folder by folder, into a local directory.

Each folder is listed separately and its sub-folders are walked concurrently,
down to --depth levels below the starting directory. Deeper folders are logged
and left alone. Files are downloaded when they are missing locally or their
modification time differs from the remote one by more than a millisecond.

A folder that cannot be listed is reported in the result and its siblings are
still mirrored, unless --strict is given.

If no remote directory is given, REMOTE_DIR from the configuration is used.`,
	Example: `  # Mirror the configured remote directory
  s3mirror pull-tree --confirm

  # Mirror one folder, at most two levels deep
  s3mirror pull-tree /exports/daily --depth 2 --destination ./daily

  # Fail the run if any folder cannot be listed
  s3mirror pull-tree /exports --strict --confirm`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPullTree(cmd, args)
	},
}

func runPullTree(cmd *cobra.Command, args []string) error {
	remoteDir := cfg.RemoteDir
	if len(args) > 0 {
		remoteDir = args[0]
	}
	remoteDir = path.Clean("/" + remoteDir)
	destination := destinationDir(cmd)
	bucketName := getBucketName(cmd)

	opts, err := engineOptions(cmd)
	if err != nil {
		utils.PrintError(err, "pull-tree")
		return err
	}

	confirm, _ := cmd.Flags().GetBool("confirm")
	if !confirm {
		ok := confirmOperation(cmd, "Pull", [][2]string{
			{"Bucket", bucketName},
			{"Remote directory", remoteDir},
			{"Destination", destination},
			{"Max depth", strconv.Itoa(opts.MaxDepth)},
			{"Max file size", utils.FormatBytes(opts.MaxFileSize)},
		})
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Pull cancelled.")
			return nil
		}
	}

	ctx, cancel := runContext(cmd)
	defer cancel()

	creds, err := resolveCredentials(ctx, cmd)
	if err != nil {
		utils.PrintError(err, "pull-tree")
		return err
	}

	store, err := newTreeStore(bucketConfig(cmd), creds)
	if err != nil {
		utils.PrintError(err, "pull-tree")
		return err
	}

	if err := syncer.CheckRoot(ctx, store, remoteDir); err != nil {
		if errors.Is(err, syncer.ErrRootNotFound) {
			err = fmt.Errorf("remote directory %s does not exist in bucket %s: %w", remoteDir, bucketName, err)
		}
		utils.PrintError(err, "pull-tree")
		return err
	}

	if isVerbose(cmd) {
		cmd.Printf("Starting pull operation...\n")
		cmd.Printf("  Bucket: %s\n", bucketName)
		cmd.Printf("  Remote directory: %s\n", remoteDir)
		cmd.Printf("  Destination: %s\n", destination)
	}

	engine := syncer.New(store, localFs, opts, logger.With("bucket", bucketName))
	result, syncErr := engine.SyncTree(ctx, remoteDir, destination)
	result.BucketName = bucketName

	if err := utils.PrintJSON(result); err != nil {
		utils.PrintError(err, "pull-tree")
		return err
	}
	if syncErr != nil {
		utils.PrintError(syncErr, "pull-tree")
		return syncErr
	}

	if isVerbose(cmd) {
		cmd.Printf("Pull operation completed: %d downloaded, %d skipped, %d failed\n",
			result.TotalFiles, len(result.Skipped), len(result.Failed))
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d entries failed", len(result.Failed))
	}
	return nil
}

func init() {
	addPullFlags(pullTreeCmd)
	pullTreeCmd.Flags().Int("depth", 4, "Deepest folder level below the remote directory that is listed (default: MAX_DEPTH from config)")
	pullTreeCmd.Flags().Bool("strict", false, "Fail the run when any folder cannot be listed")
}
