package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/woozymasta/geoshapes/internal/config"
)

// S3 keeps each record as an object <prefix>/<collection>/<key>.json in an
// S3-compatible bucket.
type S3 struct {
	client *minio.Client
	bucket string
	region string
	prefix string
}

// NewS3 creates a client for the configured endpoint.
func NewS3(cfg config.S3) (*S3, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("store: s3 endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("store: s3 client: %w", err)
	}

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3) dir(c Collection) string {
	return path.Join(s.prefix, string(c)) + "/"
}

func (s *S3) object(c Collection, key string) string {
	return s.dir(c) + key + fileExt
}

// Initialize creates the bucket when it does not exist. Collections are key
// prefixes and need no setup.
func (s *S3) Initialize(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("store: s3 bucket check: %w", unavailable(err))
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("store: s3 make bucket: %w", unavailable(err))
	}
	return nil
}

// Get reads one object.
func (s *S3) Get(ctx context.Context, c Collection, key string) ([]byte, error) {
	if err := check(c, key); err != nil {
		return nil, err
	}
	return s.read(ctx, s.object(c, key))
}

func (s *S3) read(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("store: s3 get %s: %w", name, unavailable(err))
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: s3 get %s: %w", name, unavailable(err))
	}
	return data, nil
}

// GetAll lists the collection prefix and reads every object ordered by key.
func (s *S3) GetAll(ctx context.Context, c Collection) ([][]byte, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}

	names := []string{}
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.dir(c),
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("store: s3 list %s: %w", c, unavailable(info.Err))
		}
		if strings.HasSuffix(info.Key, fileExt) {
			names = append(names, info.Key)
		}
	}
	sort.Strings(names)

	out := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := s.read(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// Put uploads one object, replacing any previous version.
func (s *S3) Put(ctx context.Context, c Collection, key string, value []byte) error {
	if err := check(c, key); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, s.bucket, s.object(c, key),
		bytes.NewReader(value), int64(len(value)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("store: s3 put %s/%s: %w", c, key, unavailable(err))
	}
	return nil
}

// Close is a no-op; the client holds no persistent connection.
func (s *S3) Close() error { return nil }
