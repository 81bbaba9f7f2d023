package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s3mirror/config"
	"s3mirror/internal/credentials"
	"s3mirror/internal/models"
	"s3mirror/internal/syncer"
)

// memStore serves either one flat listing or a per-directory tree.
type memStore struct {
	flat   []models.RemoteEntry
	tree   map[string][]models.RemoteEntry
	data   map[string]string
	exists bool
}

func (s *memStore) List(_ context.Context, path string) ([]models.RemoteEntry, error) {
	if s.tree != nil {
		return s.tree[path], nil
	}
	return s.flat, nil
}

func (s *memStore) Fetch(_ context.Context, entry models.RemoteEntry, dst io.WriterAt) (int64, error) {
	n, err := io.NewOffsetWriter(dst, 0).Write([]byte(s.data[entry.Key]))
	return int64(n), err
}

func (s *memStore) Exists(context.Context) (bool, error) {
	return s.exists, nil
}

var remoteTime = time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		AccessKey:        "test-access-key",
		SecretKey:        "test-secret-key",
		BucketName:       "test-bucket",
		LocalDir:         "./data",
		RemoteDir:        "/",
		MaxDepth:         4,
		MaxFileSize:      1 << 30,
		Concurrency:      2,
		OperationTimeout: time.Minute,
	}
}

// resetFlags clears values left over from a previous Execute.
func resetFlags(cmds ...*cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	for _, c := range cmds {
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd, pullBucketCmd, pullTreeCmd, bucketInfoCmd)
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetErr(io.Discard)
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetOut(nil)
	})

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	rootCmd.SetOut(w)

	err := rootCmd.Execute()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String(), err
}

func useStores(t *testing.T, flat flatStore, tree syncer.Store) {
	t.Helper()
	oldFlat, oldTree, oldCfg := newFlatStore, newTreeStore, cfg
	newFlatStore = func(c *config.Config, creds credentials.Credentials) (flatStore, error) {
		assert.Equal(t, "test-access-key", creds.AccessKey)
		return flat, nil
	}
	newTreeStore = func(c *config.Config, creds credentials.Credentials) (syncer.Store, error) {
		return tree, nil
	}
	cfg = testConfig()
	t.Cleanup(func() {
		newFlatStore, newTreeStore, cfg = oldFlat, oldTree, oldCfg
	})
}

func decodeResult(t *testing.T, output string) models.SyncResult {
	t.Helper()
	var result models.SyncResult
	require.NoError(t, json.NewDecoder(strings.NewReader(output)).Decode(&result), output)
	return result
}

func TestPullBucketCommand(t *testing.T) {
	store := &memStore{
		exists: true,
		flat: []models.RemoteEntry{
			{Name: "a.csv", Key: "reports/a.csv", Kind: models.KindFile, Size: 3, ModifiedAt: remoteTime},
			{Name: "2024/q1.csv", Key: "reports/2024/q1.csv", Kind: models.KindFile, Size: 5, ModifiedAt: remoteTime},
			{Name: "2024/", Key: "reports/2024/", Kind: models.KindDirectory, ModifiedAt: remoteTime},
		},
		data: map[string]string{"reports/a.csv": "abc", "reports/2024/q1.csv": "hello"},
	}
	useStores(t, store, nil)
	dest := t.TempDir()

	output, err := execute(t, "", "pull-bucket", "reports", "--destination", dest, "--confirm")
	require.NoError(t, err)

	result := decodeResult(t, output)
	assert.Equal(t, "test-bucket", result.BucketName)
	assert.Equal(t, "reports/", result.SourcePath)
	assert.Equal(t, 2, result.TotalFiles)
	assert.Equal(t, int64(8), result.TotalSizeBytes)
	require.Len(t, result.Skipped, 1)
	assert.Contains(t, result.Skipped[0].Reason, "unsupported entry type")

	data, err := os.ReadFile(filepath.Join(dest, "2024", "q1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	info, err := os.Stat(filepath.Join(dest, "a.csv"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(remoteTime))

	output, err = execute(t, "", "pull-bucket", "reports", "--destination", dest, "--confirm")
	require.NoError(t, err)
	assert.Zero(t, decodeResult(t, output).TotalFiles, "second run downloads nothing")
}

func TestPullBucketMissingBucket(t *testing.T) {
	useStores(t, &memStore{exists: false}, nil)

	output, err := execute(t, "", "pull-bucket", "--destination", t.TempDir(), "--confirm")
	require.Error(t, err)
	assert.Contains(t, output, "does not exist")
	assert.Contains(t, output, `"command": "pull-bucket"`)
}

func TestPullBucketDeclined(t *testing.T) {
	called := false
	useStores(t, nil, nil)
	newFlatStore = func(*config.Config, credentials.Credentials) (flatStore, error) {
		called = true
		return &memStore{}, nil
	}

	output, err := execute(t, "n\n", "pull-bucket", "--destination", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, output, "Pull operation summary:")
	assert.Contains(t, output, "Bucket: test-bucket")
	assert.Contains(t, output, "Pull cancelled.")
	assert.False(t, called)
}

func TestPullTreeCommand(t *testing.T) {
	store := &memStore{
		tree: map[string][]models.RemoteEntry{
			"/": {{Name: "exports", Key: "exports/", Kind: models.KindDirectory}},
			"/exports": {
				{Name: "daily", Key: "exports/daily/", Kind: models.KindDirectory},
				{Name: "big.bin", Key: "exports/big.bin", Kind: models.KindFile, Size: 2 << 30, ModifiedAt: remoteTime},
			},
			"/exports/daily": {
				{Name: "d1.csv", Key: "exports/daily/d1.csv", Kind: models.KindFile, Size: 2, ModifiedAt: remoteTime},
			},
		},
		data: map[string]string{"exports/daily/d1.csv": "ok"},
	}
	useStores(t, nil, store)
	dest := t.TempDir()

	output, err := execute(t, "", "pull-tree", "exports", "--destination", dest, "--confirm")
	require.NoError(t, err)

	result := decodeResult(t, output)
	assert.Equal(t, "/exports", result.SourcePath)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "/exports/daily/d1.csv", result.Items[0].RemotePath)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "file too large: 2.00 GB", result.Skipped[0].Reason)

	data, err := os.ReadFile(filepath.Join(dest, "daily", "d1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	_, err = os.Stat(filepath.Join(dest, "big.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestPullTreeMissingRoot(t *testing.T) {
	store := &memStore{tree: map[string][]models.RemoteEntry{"/": {}}}
	useStores(t, nil, store)

	output, err := execute(t, "", "pull-tree", "/nope", "--destination", t.TempDir(), "--confirm")
	require.ErrorIs(t, err, syncer.ErrRootNotFound)
	assert.Contains(t, output, "remote directory /nope does not exist")
}

func TestEngineOptions(t *testing.T) {
	useStores(t, nil, nil)

	t.Run("config values", func(t *testing.T) {
		resetFlags(pullTreeCmd)
		opts, err := engineOptions(pullTreeCmd)
		require.NoError(t, err)
		assert.Equal(t, syncer.Options{
			MaxDepth: 4, MaxFileSize: 1 << 30, Concurrency: 2, OpTimeout: time.Minute,
		}, opts)
	})

	t.Run("flags win", func(t *testing.T) {
		resetFlags(pullTreeCmd)
		require.NoError(t, pullTreeCmd.Flags().Parse([]string{"--depth", "1", "--concurrency", "6", "--max-size", "100", "--strict"}))
		opts, err := engineOptions(pullTreeCmd)
		require.NoError(t, err)
		assert.Equal(t, 1, opts.MaxDepth)
		assert.Equal(t, 6, opts.Concurrency)
		assert.Equal(t, int64(100), opts.MaxFileSize)
		assert.True(t, opts.Strict)
	})

	t.Run("invalid concurrency", func(t *testing.T) {
		resetFlags(pullBucketCmd)
		require.NoError(t, pullBucketCmd.Flags().Parse([]string{"--concurrency", "0"}))
		_, err := engineOptions(pullBucketCmd)
		assert.Error(t, err)
	})
}

func TestResolveCredentialsPrefersConfig(t *testing.T) {
	useStores(t, nil, nil)
	resetFlags(pullBucketCmd)

	creds, err := resolveCredentials(context.Background(), pullBucketCmd)
	require.NoError(t, err)
	assert.Equal(t, "test-secret-key", creds.SecretKey)
}

func TestResolveCredentialsPromptsWithoutKeys(t *testing.T) {
	useStores(t, nil, nil)
	cfg.AccessKey, cfg.SecretKey = "", ""
	cfg.CredentialsCache = filepath.Join(t.TempDir(), "cached-credentials.json")
	resetFlags(pullBucketCmd)
	pullBucketCmd.SetIn(strings.NewReader("typed-key\ntyped-secret\n"))
	pullBucketCmd.SetErr(io.Discard)
	t.Cleanup(func() {
		pullBucketCmd.SetIn(nil)
		pullBucketCmd.SetErr(nil)
	})

	creds, err := resolveCredentials(context.Background(), pullBucketCmd)
	require.NoError(t, err)
	assert.Equal(t, "typed-key", creds.AccessKey)

	_, err = os.Stat(cfg.CredentialsCache)
	assert.NoError(t, err, "prompted credentials are cached")
}
