// Package minioclient exposes a bucket as a directory tree: listings use
// the "/" delimiter so each call returns the immediate children of one
// folder, the way a hierarchical file service would.
package minioclient

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	appConfig "s3mirror/config"
	"s3mirror/internal/credentials"
	"s3mirror/internal/models"
)

// ObjectAPI is the subset of the MinIO client the tree mirror uses.
type ObjectAPI interface {
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) ([]minio.ObjectInfo, error)
	GetObjectReader(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
}

// wrappedClient adapts *minio.Client to ObjectAPI.
type wrappedClient struct {
	client *minio.Client
}

func (c *wrappedClient) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) ([]minio.ObjectInfo, error) {
	// cancelling stops the lister goroutine if we return early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var objects []minio.ObjectInfo
	for obj := range c.client.ListObjects(ctx, bucketName, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func (c *wrappedClient) GetObjectReader(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

type Client struct {
	api        ObjectAPI
	bucketName string
}

func New(cfg *appConfig.Config, creds credentials.Credentials) (*Client, error) {
	endpoint, secure, err := ParseEndpoint(cfg.ApiURL)
	if err != nil {
		return nil, err
	}

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(creds.AccessKey, creds.SecretKey, creds.SessionToken),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return NewWithAPI(&wrappedClient{client: mc}, cfg.BucketName), nil
}

func NewWithAPI(api ObjectAPI, bucketName string) *Client {
	return &Client{api: api, bucketName: bucketName}
}

// List returns the immediate children of dir. Sub-folders come back as
// DIRECTORY entries named by their last segment.
func (c *Client) List(ctx context.Context, dir string) ([]models.RemoteEntry, error) {
	prefix := folderPrefix(dir)
	objects, err := c.api.ListObjects(ctx, c.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	})
	if err != nil {
		return nil, &models.ListError{Path: dir, Err: err}
	}

	entries := make([]models.RemoteEntry, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == prefix {
			// folder marker of dir itself
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), "/")
		if name == "" || strings.Contains(name, "/") {
			return nil, &models.ValidationError{Field: "key", Reason: fmt.Sprintf("unexpected key %q under %q", obj.Key, prefix)}
		}

		entry := models.RemoteEntry{
			Name:       name,
			Key:        obj.Key,
			Kind:       models.KindFile,
			RawKind:    obj.StorageClass,
			Size:       obj.Size,
			ModifiedAt: obj.LastModified,
		}
		if strings.HasSuffix(obj.Key, "/") {
			entry.Kind = models.KindDirectory
			entry.RawKind = "prefix"
		} else if obj.LastModified.IsZero() {
			return nil, &models.ValidationError{Field: "last_modified", Reason: fmt.Sprintf("object %q has no modification time", obj.Key)}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Fetch streams the object into dst starting at offset zero.
func (c *Client) Fetch(ctx context.Context, entry models.RemoteEntry, dst io.WriterAt) (int64, error) {
	if entry.Kind != models.KindFile {
		return 0, &models.ValidationError{Field: "kind", Reason: fmt.Sprintf("%s %q cannot be fetched", entry.Kind, entry.Key)}
	}

	rc, err := c.api.GetObjectReader(ctx, c.bucketName, entry.Key, minio.GetObjectOptions{})
	if err != nil {
		return 0, models.NewFetchError(entry.Key, err)
	}
	defer rc.Close()

	n, err := io.Copy(io.NewOffsetWriter(dst, 0), rc)
	if err != nil {
		return n, models.NewFetchError(entry.Key, err)
	}
	return n, nil
}

// folderPrefix maps a tree path such as "/exports/daily" to the listing
// prefix "exports/daily/". The root maps to "".
func folderPrefix(dir string) string {
	prefix := strings.Trim(dir, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// ParseEndpoint splits API_URL into the host[:port] minio.New expects and
// whether TLS is used. Bare hosts default to TLS except for local
// development endpoints.
func ParseEndpoint(apiURL string) (string, bool, error) {
	if apiURL == "" {
		return "s3.amazonaws.com", true, nil
	}
	if !strings.Contains(apiURL, "://") {
		host := strings.TrimSuffix(apiURL, "/")
		return host, !isLocal(host), nil
	}

	u, err := url.Parse(apiURL)
	if err != nil {
		return "", false, fmt.Errorf("invalid API_URL %q: %w", apiURL, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid API_URL %q: missing host", apiURL)
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("invalid API_URL %q: unsupported scheme %q", apiURL, u.Scheme)
	}
}

func isLocal(host string) bool {
	name := host
	if i := strings.LastIndex(host, ":"); i >= 0 {
		name = host[:i]
	}
	return name == "localhost" || name == "127.0.0.1"
}
