// Package storage fetches payload artifacts from S3 at build time.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/afero"

	"github.com/sequence-downloader/setupusb/pkg/errors"
	"github.com/sequence-downloader/setupusb/pkg/security"
)

// ErrChecksumMismatch is returned when a downloaded object does not hash to the
// expected value.
var ErrChecksumMismatch = errors.New(errors.KindPackaging, "checksum mismatch")

// ObjectAPI is the subset of the S3 client used here.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Client provides S3 storage operations
type Client struct {
	api    ObjectAPI
	bucket string
	fs     afero.Fs
}

// NewClient creates a new S3 client for anonymous access
func NewClient(ctx context.Context, bucket, region string) (*Client, error) {
	slog.Info("s3_client_init", "bucket", bucket, "region", region)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return NewClientWithAPI(s3.NewFromConfig(cfg), bucket, afero.NewOsFs()), nil
}

// NewClientWithAPI creates a client over an existing S3 API and filesystem.
func NewClientWithAPI(api ObjectAPI, bucket string, fs afero.Fs) *Client {
	return &Client{api: api, bucket: bucket, fs: fs}
}

// DownloadResult contains download metadata
type DownloadResult struct {
	LocalPath string
	SHA256    string
	Size      int64
}

// Download fetches s3Key into localPath. The object is written to a temporary
// file and renamed into place only once it passed the size limits and, when
// wantSHA256 is set, the checksum.
func (c *Client) Download(ctx context.Context, s3Key, localPath, wantSHA256 string, validator *security.Validator) (*DownloadResult, error) {
	slog.Info("s3_download_start", "bucket", c.bucket, "s3_key", s3Key)

	result, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(s3Key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "s3_key", s3Key, "error", err)
		return nil, errors.Wrap(err, "failed to get object from S3")
	}
	defer result.Body.Close()

	if result.ContentLength != nil {
		if err := validator.ValidateFileSize(*result.ContentLength); err != nil {
			return nil, err
		}
	}

	if err := c.fs.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create output dir")
	}

	tmpPath := localPath + ".part"
	f, err := c.fs.Create(tmpPath)
	if err != nil {
		slog.Error("local_file_creation_failed", "path", tmpPath, "error", err)
		return nil, errors.Wrap(err, "failed to create local file")
	}

	hash := sha256.New()
	writer := io.MultiWriter(f, hash)

	// Read one byte past the limit so an oversized body without a length is caught
	size, err := io.Copy(writer, io.LimitReader(result.Body, validator.MaxFileSize()+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = validator.ValidateFileSize(size)
	}
	if err == nil {
		err = validator.AddExtractedSize(size)
	}
	if err != nil {
		c.fs.Remove(tmpPath)
		slog.Error("s3_download_failed", "s3_key", s3Key, "error", err)
		return nil, errors.Wrap(err, "failed to download "+s3Key)
	}

	checksum := hex.EncodeToString(hash.Sum(nil))
	if wantSHA256 != "" && !strings.EqualFold(wantSHA256, checksum) {
		c.fs.Remove(tmpPath)
		slog.Error("s3_checksum_mismatch", "s3_key", s3Key, "want", wantSHA256, "got", checksum)
		return nil, &errors.Error{
			Kind: errors.KindPackaging,
			Msg:  fmt.Sprintf("%s: sha256 %s does not match expected %s", s3Key, checksum, wantSHA256),
			Err:  ErrChecksumMismatch,
		}
	}

	if err := c.fs.Rename(tmpPath, localPath); err != nil {
		c.fs.Remove(tmpPath)
		return nil, errors.Wrap(err, "failed to move download into place")
	}

	slog.Info("s3_download_complete",
		"s3_key", s3Key,
		"size_kb", size/1024,
		"local_path", localPath,
		"sha256", checksum[:16]+"...",
	)

	return &DownloadResult{
		LocalPath: localPath,
		SHA256:    checksum,
		Size:      size,
	}, nil
}

// ListObjects lists all objects in the bucket with a given prefix
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	slog.Info("s3_list_start", "bucket", c.bucket, "prefix", prefix)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.api, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("s3_list_failed", "prefix", prefix, "error", err)
			return nil, errors.Wrap(err, "failed to list objects")
		}

		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	slog.Info("s3_list_complete", "prefix", prefix, "object_count", len(keys))
	return keys, nil
}

// Exists checks if an object exists in S3
func (c *Client) Exists(ctx context.Context, s3Key string) (bool, error) {
	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(s3Key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			slog.Info("s3_object_not_found", "s3_key", s3Key)
			return false, nil
		}
		slog.Error("s3_head_object_failed", "s3_key", s3Key, "error", err)
		return false, errors.Wrap(err, "failed to check object existence")
	}
	return true, nil
}
