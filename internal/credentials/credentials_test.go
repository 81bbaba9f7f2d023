package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s3mirror/internal/models"
)

type countingSource struct {
	creds Credentials
	err   error
	calls int
}

func (s *countingSource) Login(context.Context) (Credentials, error) {
	s.calls++
	return s.creds, s.err
}

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, source Source) (*Cache, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	c := NewCache("/state/cached-credentials.json", fsys, source, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.Now = func() time.Time { return now }
	return c, fsys
}

func writeCache(t *testing.T, fsys afero.Fs, creds Credentials) {
	t.Helper()
	data, err := json.Marshal(creds)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fsys, "/state/cached-credentials.json", data, 0o600))
}

func TestExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"no expiry", time.Time{}, false},
		{"an hour left", now.Add(time.Hour), false},
		{"exactly the margin left", now.Add(ExpiryMargin), false},
		{"inside the margin", now.Add(50 * time.Millisecond), true},
		{"in the past", now.Add(-time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Credentials{ExpiresAt: tt.expiresAt}.Expired(now))
		})
	}
}

func TestCacheUsesFreshEntry(t *testing.T) {
	source := &countingSource{}
	c, fsys := newTestCache(t, source)
	cached := Credentials{AccessKey: "AK", SecretKey: "SK", ExpiresAt: now.Add(time.Hour)}
	writeCache(t, fsys, cached)

	got, err := c.Get(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(cached.ExpiresAt))
	assert.Equal(t, "AK", got.AccessKey)
	assert.Zero(t, source.calls)
}

func TestCacheRefreshesExpiredEntry(t *testing.T) {
	source := &countingSource{creds: Credentials{AccessKey: "NEW", SecretKey: "S", ExpiresAt: now.Add(time.Hour)}}
	c, fsys := newTestCache(t, source)
	writeCache(t, fsys, Credentials{AccessKey: "OLD", SecretKey: "S", ExpiresAt: now.Add(10 * time.Millisecond)})

	got, err := c.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "NEW", got.AccessKey)
	assert.Equal(t, 1, source.calls)

	info, err := fsys.Stat("/state/cached-credentials.json")
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", info.Mode().Perm().String())

	data, err := afero.ReadFile(fsys, "/state/cached-credentials.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"access_key": "NEW"`)
}

func TestCacheForceInteractive(t *testing.T) {
	source := &countingSource{creds: Credentials{AccessKey: "NEW", SecretKey: "S"}}
	c, fsys := newTestCache(t, source)
	writeCache(t, fsys, Credentials{AccessKey: "OLD", SecretKey: "S"})

	got, err := c.Get(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "NEW", got.AccessKey)
	assert.Equal(t, 1, source.calls)
}

func TestCacheCorruptFileFallsThrough(t *testing.T) {
	source := &countingSource{creds: Credentials{AccessKey: "A", SecretKey: "S"}}
	c, fsys := newTestCache(t, source)
	require.NoError(t, afero.WriteFile(fsys, "/state/cached-credentials.json", []byte("{not json"), 0o600))

	_, err := c.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
}

func TestCacheLoginFailure(t *testing.T) {
	source := &countingSource{err: errors.New("device code expired")}
	c, fsys := newTestCache(t, source)

	_, err := c.Get(context.Background(), false)
	assert.ErrorIs(t, err, models.ErrAuth)
	assert.Contains(t, err.Error(), "device code expired")

	exists, _ := afero.Exists(fsys, "/state/cached-credentials.json")
	assert.False(t, exists)
}

func TestCacheWriteFailureIsNotFatal(t *testing.T) {
	source := &countingSource{creds: Credentials{AccessKey: "A", SecretKey: "S"}}
	c, fsys := newTestCache(t, source)
	c.Fs = afero.NewReadOnlyFs(fsys)

	got, err := c.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "A", got.AccessKey)
}

func TestStaticSource(t *testing.T) {
	creds, err := StaticSource{AccessKey: "A", SecretKey: "S"}.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", creds.AccessKey)

	_, err = StaticSource{AccessKey: "A"}.Login(context.Background())
	assert.ErrorIs(t, err, models.ErrAuth)
}

func TestPromptSource(t *testing.T) {
	var out bytes.Buffer
	p := &PromptSource{
		In:  strings.NewReader("  AKIA \nsecret\n"),
		Out: &out,
		TTL: time.Hour,
		Now: func() time.Time { return now },
	}

	creds, err := p.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIA", creds.AccessKey)
	assert.Equal(t, "secret", creds.SecretKey)
	assert.Equal(t, now.Add(time.Hour), creds.ExpiresAt)
	assert.Equal(t, "Access key: Secret key: ", out.String())
}

func TestPromptSourceMissingInput(t *testing.T) {
	p := &PromptSource{In: strings.NewReader("only-access\n"), Out: io.Discard}
	_, err := p.Login(context.Background())
	assert.ErrorIs(t, err, models.ErrAuth)
}
