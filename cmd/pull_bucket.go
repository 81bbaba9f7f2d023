package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"s3mirror/internal/s3client"
	"s3mirror/internal/syncer"
	"s3mirror/pkg/utils"
)

var pullBucketCmd = &cobra.Command{
	Use:     "pull-bucket [prefix]",
	Aliases: []string{"download"},
	Short:   "Mirror every object of a bucket into a local directory",
	Long: `Mirror every object of an S3 bucket, optionally limited to a key prefix, into a local directory.

The bucket is listed in one pass. Each object key becomes a path under the destination,
so "reports/2024/q1.csv" is written to "<destination>/reports/2024/q1.csv".
A file is downloaded only when it is missing locally or its modification time differs
from the object's by more than a millisecond, and only when it is smaller than --max-size.
Objects in archival storage classes and folder placeholders are skipped.

If no destination is specified, LOCAL_DIR from the configuration is used.`,
	Example: `  # Mirror the whole configured bucket
  s3mirror pull-bucket --confirm

  # Mirror one prefix to a specific destination
  s3mirror pull-bucket backups/ --destination /srv/mirror/backups

  # Mirror from a different bucket, four downloads at a time
  s3mirror pull-bucket --bucket my-other-bucket --concurrency 4

  # Skip anything of 100 MiB or more
  s3mirror pull-bucket logs/ --max-size 104857600 --verbose`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPullBucket(cmd, args)
	},
}

func runPullBucket(cmd *cobra.Command, args []string) error {
	var prefix string
	if len(args) > 0 {
		prefix = args[0]
	}
	prefix = s3client.NormalizePrefix(prefix)
	destination := destinationDir(cmd)
	bucketName := getBucketName(cmd)

	opts, err := engineOptions(cmd)
	if err != nil {
		utils.PrintError(err, "pull-bucket")
		return err
	}

	confirm, _ := cmd.Flags().GetBool("confirm")
	if !confirm {
		ok := confirmOperation(cmd, "Pull", [][2]string{
			{"Bucket", bucketName},
			{"Prefix", prefix},
			{"Destination", destination},
			{"Max file size", utils.FormatBytes(opts.MaxFileSize)},
			{"Concurrency", strconv.Itoa(opts.Concurrency)},
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
		utils.PrintError(err, "pull-bucket")
		return err
	}

	store, err := newFlatStore(bucketConfig(cmd), creds)
	if err != nil {
		utils.PrintError(err, "pull-bucket")
		return err
	}

	exists, err := store.Exists(ctx)
	if err != nil {
		utils.PrintError(err, "pull-bucket")
		return err
	}
	if !exists {
		err := fmt.Errorf("bucket %s does not exist", bucketName)
		utils.PrintError(err, "pull-bucket")
		return err
	}

	if isVerbose(cmd) {
		cmd.Printf("Starting pull operation...\n")
		cmd.Printf("  Bucket: %s\n", bucketName)
		cmd.Printf("  Prefix: %s\n", prefix)
		cmd.Printf("  Destination: %s\n", destination)
	}

	engine := syncer.New(store, localFs, opts, logger.With("bucket", bucketName))
	result, syncErr := engine.SyncFlat(ctx, prefix, destination)
	result.BucketName = bucketName

	if err := utils.PrintJSON(result); err != nil {
		utils.PrintError(err, "pull-bucket")
		return err
	}
	if syncErr != nil {
		utils.PrintError(syncErr, "pull-bucket")
		return syncErr
	}

	if isVerbose(cmd) {
		cmd.Printf("Pull operation completed: %d downloaded, %d skipped, %d failed\n",
			result.TotalFiles, len(result.Skipped), len(result.Failed))
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d files failed", len(result.Failed), len(result.Failed)+result.TotalFiles)
	}
	return nil
}

func init() {
	addPullFlags(pullBucketCmd)
}
