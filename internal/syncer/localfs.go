package syncer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"s3mirror/internal/models"
)

func statLocal(fs afero.Fs, path string) (models.LocalFileStat, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.LocalFileStat{}, nil
		}
		return models.LocalFileStat{}, &models.LocalIOError{Op: "stat", Path: path, Err: err}
	}
	if info.IsDir() {
		return models.LocalFileStat{}, &models.LocalIOError{Op: "stat", Path: path, Err: errors.New("destination is a directory")}
	}
	return models.LocalFileStat{
		Exists:  true,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}, nil
}

func ensureDir(fs afero.Fs, path string) error {
	if err := fs.MkdirAll(path, 0o755); err != nil {
		return &models.LocalIOError{Op: "mkdir", Path: path, Err: err}
	}
	return nil
}

// restoreModTime stamps the local file with the remote modification time so
// the next run sees it as up to date.
func restoreModTime(fs afero.Fs, path string, modTime time.Time) error {
	if err := fs.Chtimes(path, modTime, modTime); err != nil {
		return &models.LocalIOError{Op: "chtimes", Path: path, Err: err}
	}
	return nil
}

// localPathFor joins a slash-separated remote name onto root. Names that
// would leave root are rejected.
func localPathFor(root, name string) (string, error) {
	if name == "" || name == "." {
		return "", &models.ValidationError{Field: "name", Reason: "empty entry name"}
	}
	if strings.HasPrefix(name, "/") {
		return "", &models.ValidationError{Field: "name", Reason: fmt.Sprintf("%q is not a relative path", name)}
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return "", &models.ValidationError{Field: "name", Reason: fmt.Sprintf("%q escapes the destination", name)}
		}
	}
	return filepath.Join(root, filepath.FromSlash(name)), nil
}

func joinRemote(dir, name string) string {
	return strings.TrimSuffix(dir, "/") + "/" + name
}
