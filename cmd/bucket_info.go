package cmd

import (
	"github.com/spf13/cobra"
	"s3mirror/internal/s3client"
	"s3mirror/pkg/utils"
)

var bucketInfoCmd = &cobra.Command{
	Use:   "bucket-info",
	Short: "Get comprehensive bucket information",
	Long: `Get detailed information about the S3 bucket: region, object count, total size
and the most recent modification, useful to size a mirror before pulling it.
The bucket name is taken from the configuration file unless overridden with --bucket flag.`,
	Example: `  # Get info for configured bucket
  s3mirror bucket-info

  # Get info for specific bucket
  s3mirror bucket-info --bucket my-other-bucket

  # Verbose output
  s3mirror bucket-info --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBucketInfo(cmd)
	},
}

func runBucketInfo(cmd *cobra.Command) error {
	ctx, cancel := runContext(cmd)
	defer cancel()

	creds, err := resolveCredentials(ctx, cmd)
	if err != nil {
		utils.PrintError(err, "bucket-info")
		return err
	}

	client, err := s3client.New(bucketConfig(cmd), creds)
	if err != nil {
		utils.PrintError(err, "bucket-info")
		return err
	}

	if isVerbose(cmd) {
		cmd.Printf("Getting bucket information for: %s\n", getBucketName(cmd))
	}

	info, err := client.GetBucketInfo(ctx)
	if err != nil {
		utils.PrintError(err, "bucket-info")
		return err
	}

	if err := utils.PrintJSON(info); err != nil {
		utils.PrintError(err, "bucket-info")
		return err
	}

	if isVerbose(cmd) {
		cmd.Printf("Bucket info retrieved successfully\n")
	}
	return nil
}

func init() {
	bucketInfoCmd.Flags().Int("timeout", 300, "Timeout in seconds for the operation")
	bucketInfoCmd.Flags().Bool("login", false, "Ignore cached credentials and log in interactively")
}
