// Package credentials resolves the access keys used to talk to the remote
// store, keeping interactively entered keys in a small JSON cache file so
// later runs can reuse them until they expire.
package credentials

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"s3mirror/internal/models"
)

// ExpiryMargin is how close to its expiry a cached entry may be and still
// count as expired.
const ExpiryMargin = 100 * time.Millisecond

type Credentials struct {
	AccessKey    string    `json:"access_key"`
	SecretKey    string    `json:"secret_key"`
	SessionToken string    `json:"session_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

func (c Credentials) Valid() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// Expired reports whether c expires within ExpiryMargin of now. A zero
// ExpiresAt never expires.
func (c Credentials) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return c.ExpiresAt.Sub(now) < ExpiryMargin
}

// Source produces fresh credentials.
type Source interface {
	Login(ctx context.Context) (Credentials, error)
}

// StaticSource hands out keys taken from configuration.
type StaticSource struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
}

func (s StaticSource) Login(context.Context) (Credentials, error) {
	creds := Credentials{AccessKey: s.AccessKey, SecretKey: s.SecretKey, SessionToken: s.SessionToken}
	if !creds.Valid() {
		return Credentials{}, fmt.Errorf("%w: ACCESS_KEY and SECRET_KEY must both be set", models.ErrAuth)
	}
	return creds, nil
}

// PromptSource asks for keys on Out and reads them from In. TTL sets the
// expiry written to the cache; zero means the keys never expire.
type PromptSource struct {
	In  io.Reader
	Out io.Writer
	TTL time.Duration
	Now func() time.Time
}

func (p *PromptSource) Login(ctx context.Context) (Credentials, error) {
	scanner := bufio.NewScanner(p.In)
	ask := func(label string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprintf(p.Out, "%s: ", label)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("%w: reading %s: %v", models.ErrAuth, strings.ToLower(label), err)
			}
			return "", fmt.Errorf("%w: no %s entered", models.ErrAuth, strings.ToLower(label))
		}
		return strings.TrimSpace(scanner.Text()), nil
	}

	accessKey, err := ask("Access key")
	if err != nil {
		return Credentials{}, err
	}
	secretKey, err := ask("Secret key")
	if err != nil {
		return Credentials{}, err
	}

	creds := Credentials{AccessKey: accessKey, SecretKey: secretKey}
	if !creds.Valid() {
		return Credentials{}, fmt.Errorf("%w: access key and secret key are required", models.ErrAuth)
	}
	if p.TTL > 0 {
		now := time.Now
		if p.Now != nil {
			now = p.Now
		}
		creds.ExpiresAt = now().Add(p.TTL)
	}
	return creds, nil
}

// Cache keeps the last credentials returned by Source in a JSON file.
type Cache struct {
	Path   string
	Fs     afero.Fs
	Source Source
	Now    func() time.Time
	Logger *slog.Logger
}

func NewCache(path string, fsys afero.Fs, source Source, logger *slog.Logger) *Cache {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{Path: path, Fs: fsys, Source: source, Now: time.Now, Logger: logger}
}

// Get returns cached credentials when present and unexpired, unless
// forceInteractive is set. Otherwise it logs in through Source and
// refreshes the cache. A cache that cannot be read or written is logged
// and otherwise ignored.
func (c *Cache) Get(ctx context.Context, forceInteractive bool) (Credentials, error) {
	if !forceInteractive {
		creds, ok, err := c.load()
		switch {
		case err != nil:
			c.Logger.Warn("Could not read cached credentials", "path", c.Path, "error", err)
		case ok && creds.Valid() && !creds.Expired(c.Now()):
			c.Logger.Info("Using cached credentials", "path", c.Path)
			return creds, nil
		case ok:
			c.Logger.Info("Cached credentials expired", "path", c.Path)
		}
	}

	creds, err := c.Source.Login(ctx)
	if err != nil {
		if errors.Is(err, models.ErrAuth) {
			return Credentials{}, err
		}
		return Credentials{}, fmt.Errorf("%w: %v", models.ErrAuth, err)
	}
	if !creds.Valid() {
		return Credentials{}, fmt.Errorf("%w: login returned incomplete credentials", models.ErrAuth)
	}

	if err := c.store(creds); err != nil {
		c.Logger.Warn("Could not cache credentials", "path", c.Path, "error", err)
	}
	return creds, nil
}

func (c *Cache) load() (Credentials, bool, error) {
	data, err := afero.ReadFile(c.Fs, c.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, false, fmt.Errorf("failed to parse %s: %w", c.Path, err)
	}
	return creds, true, nil
}

func (c *Cache) store(creds Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.Path); dir != "." {
		if err := c.Fs.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return afero.WriteFile(c.Fs, c.Path, data, 0o600)
}
