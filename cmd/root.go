package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"s3mirror/config"
	"s3mirror/internal/logging"
)

var (
	cfg      *config.Config
	logger   = slog.Default()
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "s3mirror",
	Short: "Mirror a remote bucket into a local directory",
	Long: `s3mirror is a one-way pull mirror for S3-compatible storage.
It downloads files that are missing locally or whose modification time differs
from the remote copy, and stamps each local file with the remote modification time.
Local-only files are never deleted and nothing is uploaded.
Configuration is loaded from .env file, environment variables or the file named by S3MIRROR_CONFIG`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = closeLog()
	},
}

func Execute(config *config.Config) error {
	cfg = config
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(bucketInfoCmd)
	rootCmd.AddCommand(pullBucketCmd)
	rootCmd.AddCommand(pullTreeCmd)

	rootCmd.PersistentFlags().StringP("bucket", "b", "", "Override bucket name from config")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs as JSON lines to this file (rotated)")
}

func setupLogging(cmd *cobra.Command) {
	logFile, _ := cmd.Flags().GetString("log-file")
	if logFile == "" && cfg != nil {
		logFile = cfg.LogFile
	}
	logger, closeLog = logging.New(logging.Options{
		Console: cmd.ErrOrStderr(),
		Verbose: isVerbose(cmd),
		LogFile: logFile,
	})
	slog.SetDefault(logger)
}

func getBucketName(cmd *cobra.Command) string {
	bucket, _ := cmd.Flags().GetString("bucket")
	if bucket != "" {
		return bucket
	}
	return cfg.BucketName
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}

// bucketConfig is cfg with the --bucket override applied.
func bucketConfig(cmd *cobra.Command) *config.Config {
	c := *cfg
	c.BucketName = getBucketName(cmd)
	return &c
}
