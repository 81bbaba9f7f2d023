package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"s3mirror/config"
	"s3mirror/internal/credentials"
	"s3mirror/internal/minioclient"
	"s3mirror/internal/s3client"
	"s3mirror/internal/syncer"
)

// flatStore is a bucket listed in one pass, with an existence check.
type flatStore interface {
	syncer.Store
	Exists(ctx context.Context) (bool, error)
}

var newFlatStore = func(c *config.Config, creds credentials.Credentials) (flatStore, error) {
	client, err := s3client.New(c, creds)
	if err != nil {
		return nil, err
	}
	return client, nil
}

var newTreeStore = func(c *config.Config, creds credentials.Credentials) (syncer.Store, error) {
	client, err := minioclient.New(c, creds)
	if err != nil {
		return nil, err
	}
	return client, nil
}

var localFs = afero.NewOsFs()

func addPullFlags(c *cobra.Command) {
	c.Flags().StringP("destination", "d", "", "Local destination directory (default: LOCAL_DIR from config)")
	c.Flags().Bool("confirm", false, "Skip confirmation prompt")
	c.Flags().Int("timeout", 3600, "Timeout in seconds for the whole run (default: 1 hour)")
	c.Flags().Int("concurrency", 0, "Maximum concurrent list/download calls (default: CONCURRENCY from config)")
	c.Flags().Int64("max-size", 0, "Skip files of this many bytes or more (default: MAX_FILE_SIZE from config)")
	c.Flags().Bool("login", false, "Ignore cached credentials and log in interactively")
}

func destinationDir(cmd *cobra.Command) string {
	destination, _ := cmd.Flags().GetString("destination")
	if destination == "" {
		destination = cfg.LocalDir
	}
	if destination == "" {
		destination = "."
	}
	return destination
}

// engineOptions starts from the loaded config and applies any flags the
// user set explicitly.
func engineOptions(cmd *cobra.Command) (syncer.Options, error) {
	opts := syncer.Options{
		MaxDepth:    cfg.MaxDepth,
		MaxFileSize: cfg.MaxFileSize,
		Concurrency: cfg.Concurrency,
		OpTimeout:   cfg.OperationTimeout,
	}

	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		opts.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("max-size") {
		opts.MaxFileSize, _ = flags.GetInt64("max-size")
	}
	if flags.Changed("depth") {
		opts.MaxDepth, _ = flags.GetInt("depth")
	}
	if flags.Lookup("strict") != nil {
		opts.Strict, _ = flags.GetBool("strict")
	}

	if opts.Concurrency < 1 {
		return opts, fmt.Errorf("concurrency must be at least 1, got %d", opts.Concurrency)
	}
	if opts.MaxFileSize <= 0 {
		return opts, fmt.Errorf("max-size must be positive, got %d", opts.MaxFileSize)
	}
	if opts.MaxDepth < 0 {
		return opts, fmt.Errorf("depth must not be negative, got %d", opts.MaxDepth)
	}
	return opts, nil
}

// runContext is cancelled by the --timeout flag or by SIGINT/SIGTERM.
func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetInt("timeout")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	return ctx, func() {
		cancel()
		stop()
	}
}

// confirmOperation prints a summary and asks for y/yes. An empty answer
// means no.
func confirmOperation(cmd *cobra.Command, operation string, summary [][2]string) bool {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s operation summary:\n", operation)
	for _, line := range summary {
		fmt.Fprintf(out, "%s: %s\n", line[0], line[1])
	}
	fmt.Fprintf(out, "Continue with %s? (y/N): ", strings.ToLower(operation))

	var response string
	_, _ = fmt.Fscanln(cmd.InOrStdin(), &response)
	return slices.Contains([]string{"y", "yes"}, strings.ToLower(strings.TrimSpace(response)))
}

// resolveCredentials prefers keys from config. Without them, or with
// --login, it goes through the credentials cache and prompts when needed.
func resolveCredentials(ctx context.Context, cmd *cobra.Command) (credentials.Credentials, error) {
	login, _ := cmd.Flags().GetBool("login")
	if !login && cfg.AccessKey != "" {
		return credentials.StaticSource{
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		}.Login(ctx)
	}

	cache := credentials.NewCache(cfg.CredentialsCache, localFs, &credentials.PromptSource{
		In:  cmd.InOrStdin(),
		Out: cmd.ErrOrStderr(),
		TTL: cfg.CredentialsTTL,
	}, logger)
	return cache.Get(ctx, login)
}
