// Package syncer mirrors a remote Store into a local directory, downloading
// only files that are missing or whose modification time differs from the
// remote one. Local-only files are never touched.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"s3mirror/internal/models"
	"s3mirror/pkg/utils"
)

// ErrRootNotFound is returned by CheckRoot when the remote root is missing
// or is not a directory.
var ErrRootNotFound = errors.New("remote root does not exist or is not a directory")

type Engine struct {
	store  Store
	fs     afero.Fs
	opts   Options
	sem    *semaphore.Weighted
	logger *slog.Logger
}

func New(store Store, fs afero.Fs, opts Options, logger *slog.Logger) *Engine {
	defaults := DefaultOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.Concurrency
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaults.MaxFileSize
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		fs:     fs,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.Concurrency)),
		logger: logger,
	}
}

func (e *Engine) Options() Options {
	return e.opts
}

// SyncTree mirrors a hierarchical store, recursing into directories up to
// MaxDepth levels below remoteRoot. Sibling entries are processed
// concurrently and a directory is done only when its whole subtree is.
//
// A failure to list remoteRoot itself fails the run. Failures below it are
// recorded in the result unless Options.Strict is set.
func (e *Engine) SyncTree(ctx context.Context, remoteRoot, localRoot string) (*models.SyncResult, error) {
	r := e.newRun()
	err := r.walk(ctx, remoteRoot, localRoot, 0)
	if err == nil {
		err = ctx.Err()
	}
	return r.result(remoteRoot, localRoot), err
}

// SyncFlat mirrors every object a flat store lists under prefix. Keys
// containing slashes become nested local paths.
func (e *Engine) SyncFlat(ctx context.Context, prefix, localRoot string) (*models.SyncResult, error) {
	r := e.newRun()

	entries, err := r.list(ctx, prefix)
	if err != nil {
		return r.result(prefix, localRoot), err
	}
	if len(entries) > 0 {
		if err := ensureDir(e.fs, localRoot); err != nil {
			return r.result(prefix, localRoot), err
		}
	}

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for _, entry := range entries {
		target := models.SyncTarget{Entry: entry, RemotePath: entry.Key}
		localPath, err := localPathFor(localRoot, entry.Name)
		if err != nil {
			r.record(models.Failed(target, err))
			continue
		}
		target.LocalPath = localPath

		if entry.Kind != models.KindFile {
			r.record(models.Skipped(target, unsupportedReason(entry)))
			continue
		}
		g.Go(func() error {
			r.syncFile(ctx, target, true)
			return nil
		})
	}
	_ = g.Wait()

	return r.result(prefix, localRoot), ctx.Err()
}

// CheckRoot verifies that remoteRoot is listed as a directory by its parent.
// The store root "/" is always valid.
func CheckRoot(ctx context.Context, store Store, remoteRoot string) error {
	clean := path.Clean("/" + remoteRoot)
	if clean == "/" {
		return nil
	}
	parent, name := path.Dir(clean), path.Base(clean)
	entries, err := store.List(ctx, parent)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name == name && entry.Kind == models.KindDirectory {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRootNotFound, clean)
}

type run struct {
	*Engine
	id       string
	start    time.Time
	claimed  sync.Map
	mu       sync.Mutex
	outcomes []models.DownloadOutcome
}

func (e *Engine) newRun() *run {
	return &run{
		Engine: e,
		id:     uuid.NewString(),
		start:  time.Now(),
	}
}

func (r *run) walk(ctx context.Context, remotePath, localPath string, depth int) error {
	if depth > r.opts.MaxDepth {
		r.logger.Warn("Recursion too deep", "path", remotePath, "depth", depth)
		r.record(models.Skipped(models.SyncTarget{RemotePath: remotePath, LocalPath: localPath}, "recursion too deep"))
		return nil
	}

	entries, err := r.list(ctx, remotePath)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		if err := ensureDir(r.fs, localPath); err != nil {
			return err
		}
	}

	var g errgroup.Group
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			return r.visit(ctx, remotePath, localPath, entry, depth)
		})
	}
	return g.Wait()
}

func (r *run) visit(ctx context.Context, remotePath, localPath string, entry models.RemoteEntry, depth int) error {
	target := models.SyncTarget{Entry: entry, RemotePath: joinRemote(remotePath, entry.Name)}
	childLocal, err := localPathFor(localPath, entry.Name)
	if err != nil {
		r.record(models.Failed(target, err))
		return nil
	}
	target.LocalPath = childLocal

	switch entry.Kind {
	case models.KindDirectory:
		r.logger.Debug("Expanding", "path", target.RemotePath)
		err := r.walk(ctx, target.RemotePath, target.LocalPath, depth+1)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || r.opts.Strict {
			return err
		}
		// Only this directory's own list or mkdir failure reaches here.
		r.record(models.Failed(target, err))
		return nil
	case models.KindFile:
		r.syncFile(ctx, target, false)
		return nil
	default:
		r.record(models.Skipped(target, unsupportedReason(entry)))
		return nil
	}
}

func (r *run) list(ctx context.Context, remotePath string) ([]models.RemoteEntry, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	opCtx, cancel := r.opContext(ctx)
	defer cancel()

	entries, err := r.store.List(opCtx, remotePath)
	if err != nil {
		var le *models.ListError
		var ve *models.ValidationError
		if !errors.As(err, &le) && !errors.As(err, &ve) {
			err = &models.ListError{Path: remotePath, Err: err}
		}
		return nil, err
	}
	return entries, nil
}

func (r *run) syncFile(ctx context.Context, target models.SyncTarget, makeParent bool) {
	r.record(r.materialize(ctx, target, makeParent))
}

func (r *run) materialize(ctx context.Context, target models.SyncTarget, makeParent bool) models.DownloadOutcome {
	entry := target.Entry
	if entry.Kind != models.KindFile {
		return models.Skipped(target, unsupportedReason(entry))
	}
	if _, taken := r.claimed.LoadOrStore(target.LocalPath, struct{}{}); taken {
		return models.Skipped(target, "duplicate destination")
	}

	local, err := statLocal(r.fs, target.LocalPath)
	if err != nil {
		return models.Failed(target, err)
	}
	if !IsStale(local, entry.ModifiedAt) {
		return models.Skipped(target, "up to date")
	}
	if !IsEligible(entry.Size, r.opts.MaxFileSize) {
		return models.Skipped(target, tooLargeReason(entry.Size))
	}
	if makeParent {
		if err := ensureDir(r.fs, filepath.Dir(target.LocalPath)); err != nil {
			return models.Failed(target, err)
		}
	}

	r.logger.Info("Downloading", "path", target.RemotePath, "size", utils.FormatBytes(entry.Size))
	attempt := 0
	n, err := WithRetry(ctx, func(ctx context.Context) (int64, error) {
		attempt++
		if attempt > 1 {
			r.logger.Warn("Retrying after connection reset", "path", target.RemotePath)
		}
		return r.fetchOnce(ctx, target)
	})
	if err != nil {
		return models.Failed(target, err)
	}

	if err := restoreModTime(r.fs, target.LocalPath, entry.ModifiedAt); err != nil {
		r.logger.Warn("Failed to restore modification time", "path", target.LocalPath, "error", err)
	}
	return models.Downloaded(target, n)
}

func (r *run) fetchOnce(ctx context.Context, target models.SyncTarget) (int64, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer r.sem.Release(1)

	f, err := r.fs.OpenFile(target.LocalPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, &models.LocalIOError{Op: "create", Path: target.LocalPath, Err: err}
	}

	opCtx, cancel := r.opContext(ctx)
	defer cancel()

	n, err := r.store.Fetch(opCtx, target.Entry, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = &models.LocalIOError{Op: "close", Path: target.LocalPath, Err: closeErr}
	}
	if err == nil {
		return n, nil
	}

	if rmErr := r.fs.Remove(target.LocalPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		r.logger.Debug("Failed to remove partial file", "path", target.LocalPath, "error", rmErr)
	}
	var fe *models.FetchError
	var le *models.LocalIOError
	if !errors.As(err, &fe) && !errors.As(err, &le) {
		err = models.NewFetchError(target.Entry.Key, err)
	}
	return n, err
}

func (r *run) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opts.OpTimeout)
}

func (r *run) record(o models.DownloadOutcome) {
	switch o.Status {
	case models.StatusSkipped:
		r.logger.Info("Skipping", "path", o.RemotePath, "reason", o.Reason)
	case models.StatusDownloaded:
		r.logger.Info("Downloaded", "path", o.RemotePath, "bytes", o.BytesWritten)
	case models.StatusFailed:
		r.logger.Error("Failed", "path", o.RemotePath, "error", o.Err)
	}

	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func (r *run) result(source, destination string) *models.SyncResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := &models.SyncResult{
		RunID:         r.id,
		SourcePath:    source,
		Destination:   destination,
		Items:         []models.DownloadItem{},
		Skipped:       []models.SkippedItem{},
		Failed:        []models.FailedItem{},
		OperationTime: utils.FormatTime(r.start),
	}
	for _, o := range r.outcomes {
		switch o.Status {
		case models.StatusDownloaded:
			res.Items = append(res.Items, models.DownloadItem{
				RemotePath:   o.RemotePath,
				LocalPath:    o.LocalPath,
				Size:         o.BytesWritten,
				LastModified: utils.FormatTime(o.Target.Entry.ModifiedAt),
			})
			res.TotalSizeBytes += o.BytesWritten
		case models.StatusSkipped:
			res.Skipped = append(res.Skipped, models.SkippedItem{
				RemotePath: o.RemotePath,
				LocalPath:  o.LocalPath,
				Reason:     o.Reason,
			})
		case models.StatusFailed:
			res.Failed = append(res.Failed, models.FailedItem{
				RemotePath: o.RemotePath,
				LocalPath:  o.LocalPath,
				Error:      o.Err.Error(),
			})
		}
	}

	sort.Slice(res.Items, func(i, j int) bool { return res.Items[i].RemotePath < res.Items[j].RemotePath })
	sort.Slice(res.Skipped, func(i, j int) bool { return res.Skipped[i].RemotePath < res.Skipped[j].RemotePath })
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].RemotePath < res.Failed[j].RemotePath })

	res.TotalFiles = len(res.Items)
	res.TotalSizeHuman = utils.FormatBytes(res.TotalSizeBytes)
	res.DownloadDuration = time.Since(r.start).String()
	return res
}

func unsupportedReason(entry models.RemoteEntry) string {
	kind := entry.RawKind
	if kind == "" {
		kind = string(entry.Kind)
	}
	return fmt.Sprintf("unsupported entry type %q", kind)
}
