package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/schemata"
	"go.uber.org/zap"
)

// s3API is what the transfer managers need from an S3 client.
type s3API interface {
	manager.DownloadAPIClient
	manager.UploadAPIClient
}

// S3StaticStore serves static endpoint files from
// s3://<bucket>/<prefix>/<handle>/<localfile>.
type S3StaticStore struct {
	bucket     string
	prefix     string
	downloader *manager.Downloader
	uploader   *manager.Uploader
}

func NewS3StaticStore(client s3API, bucket, prefix string) *S3StaticStore {
	return &S3StaticStore{
		bucket:     bucket,
		prefix:     strings.Trim(prefix, "/"),
		downloader: manager.NewDownloader(client),
		uploader:   manager.NewUploader(client),
	}
}

// OpenS3StaticStore builds an S3 client from the static config. Static
// credentials and a custom endpoint are used when configured.
func OpenS3StaticStore(ctx context.Context, cfg schemata.StaticConfig) (*S3StaticStore, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(cfg.Endpoint))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StaticStore(client, cfg.Bucket, cfg.Prefix), nil
}

func (s *S3StaticStore) key(handle, localfile string) string {
	return path.Join(s.prefix, handle, strings.TrimPrefix(localfile, "/"))
}

func (s *S3StaticStore) Open(ctx context.Context, handle, localfile string) (io.ReadCloser, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(handle, localfile)),
	})
	if err != nil {
		return nil, staticObjectError(localfile, err)
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

func (s *S3StaticStore) Put(ctx context.Context, handle, localfile string, content io.Reader) error {
	key := s.key(handle, localfile)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   content,
	})
	if err != nil {
		return schemata.NewStorageError("s3 upload", err)
	}
	zap.S().Infow("uploaded static file", "bucket", s.bucket, "key", key)
	return nil
}

// staticObjectError maps a missing object to not_found and everything else
// to a storage error.
func staticObjectError(localfile string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return schemata.NewNotFoundError("file", localfile).WithCause(err)
		}
	}
	return schemata.NewStorageError("s3 download", err)
}

var _ schemata.StaticStore = (*S3StaticStore)(nil)
