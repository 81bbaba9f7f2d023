package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	appConfig "s3mirror/config"
	"s3mirror/internal/credentials"
	"s3mirror/internal/models"
	"s3mirror/pkg/utils"
)

// API is the subset of *s3.Client the mirror needs.
type API interface {
	manager.DownloadAPIClient
	s3.ListObjectsV2APIClient
	s3.HeadBucketAPIClient
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

// Client is a flat store: one listing returns every object in the bucket
// under a prefix, and keys are mirrored as slash-separated local paths.
type Client struct {
	s3Client        API
	bucketName      string
	region          string
	apiURL          string
	partConcurrency int
}

func New(cfg *appConfig.Config, creds credentials.Credentials) (*Client, error) {
	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			creds.AccessKey,
			creds.SecretKey,
			creds.SessionToken,
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Client *s3.Client
	if cfg.ApiURL != "" {
		s3Client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.ApiURL)
			o.UsePathStyle = true
		})
	} else {
		s3Client = s3.NewFromConfig(awsConfig)
	}

	c := NewWithAPI(s3Client, cfg.BucketName)
	c.region = cfg.Region
	c.apiURL = cfg.ApiURL
	return c, nil
}

func NewWithAPI(api API, bucketName string) *Client {
	return &Client{
		s3Client:        api,
		bucketName:      bucketName,
		partConcurrency: manager.DefaultDownloadConcurrency,
	}
}

// Exists reports whether the bucket exists and is reachable with the
// current credentials.
func (c *Client) Exists(ctx context.Context) (bool, error) {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucketName),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchBucket") {
		return false, nil
	}
	return false, fmt.Errorf("failed to check bucket %s: %w", c.bucketName, err)
}

// List returns every object whose key starts with prefix. Entry names are
// the keys with prefix removed.
func (c *Client) List(ctx context.Context, prefix string) ([]models.RemoteEntry, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucketName),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var entries []models.RemoteEntry
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &models.ListError{Path: prefix, Err: fmt.Errorf("failed to list objects: %w", err)}
		}
		for _, obj := range page.Contents {
			entry, err := toEntry(obj, prefix)
			if err != nil {
				return nil, err
			}
			if entry.Name == "" {
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func toEntry(obj types.Object, prefix string) (models.RemoteEntry, error) {
	if obj.Key == nil {
		return models.RemoteEntry{}, &models.ValidationError{Field: "key", Reason: "object without key in listing"}
	}
	key := aws.ToString(obj.Key)
	if obj.LastModified == nil {
		return models.RemoteEntry{}, &models.ValidationError{Field: "last_modified", Reason: fmt.Sprintf("object %q has no modification time", key)}
	}

	entry := models.RemoteEntry{
		Name:       strings.TrimPrefix(key, prefix),
		Key:        key,
		Kind:       models.KindFile,
		RawKind:    string(obj.StorageClass),
		Size:       aws.ToInt64(obj.Size),
		ModifiedAt: aws.ToTime(obj.LastModified),
	}
	switch {
	case strings.HasSuffix(key, "/"):
		// folder placeholder written by consoles and some sync tools
		entry.Kind = models.KindDirectory
		entry.RawKind = ""
	case obj.StorageClass == types.ObjectStorageClassGlacier || obj.StorageClass == types.ObjectStorageClassDeepArchive:
		entry.Kind = models.KindUnknown
	}
	return entry, nil
}

// Fetch downloads one object into dst using ranged parallel GETs.
func (c *Client) Fetch(ctx context.Context, entry models.RemoteEntry, dst io.WriterAt) (int64, error) {
	if entry.Kind != models.KindFile {
		return 0, &models.ValidationError{Field: "kind", Reason: fmt.Sprintf("%s %q cannot be fetched", entry.Kind, entry.Key)}
	}

	downloader := manager.NewDownloader(c.s3Client, func(d *manager.Downloader) {
		d.Concurrency = c.partConcurrency
	})
	n, err := downloader.Download(ctx, dst, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(entry.Key),
	})
	if err != nil {
		return n, models.NewFetchError(entry.Key, err)
	}
	return n, nil
}

func (c *Client) GetBucketInfo(ctx context.Context) (*models.BucketInfo, error) {
	bucketName := c.bucketName

	locationResp, err := c.s3Client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket location: %w", err)
	}

	region := string(locationResp.LocationConstraint)
	if region == "" {
		region = c.region
	}

	entries, err := c.List(ctx, "")
	if err != nil {
		return nil, err
	}

	var totalSize int64
	var lastModified time.Time
	for _, entry := range entries {
		totalSize += entry.Size
		if entry.ModifiedAt.After(lastModified) {
			lastModified = entry.ModifiedAt
		}
	}

	bucketsResp, err := c.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	var creationDate time.Time
	for _, bucket := range bucketsResp.Buckets {
		if aws.ToString(bucket.Name) == bucketName {
			creationDate = aws.ToTime(bucket.CreationDate)
			break
		}
	}

	return &models.BucketInfo{
		BucketName:     bucketName,
		Region:         region,
		CreationDate:   creationDate,
		ObjectCount:    int64(len(entries)),
		TotalSizeBytes: totalSize,
		TotalSizeHuman: utils.FormatBytes(totalSize),
		LastModified:   lastModified,
		APIEndpoint:    c.apiURL,
	}, nil
}

// NormalizePrefix turns a user supplied folder into a listing prefix:
// no leading slash, one trailing slash, empty for the bucket root.
func NormalizePrefix(folder string) string {
	prefix := strings.TrimLeft(folder, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
