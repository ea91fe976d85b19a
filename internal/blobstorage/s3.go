// Package blobstorage serves the mail store from an S3 compatible bucket.
// Objects are keyed <prefix>/<user>/<folder>/<filename>, mirroring the
// directory layout of the filesystem store.
package blobstorage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"kestrel/internal/mailstore"
)

// API is the subset of the S3 client used by the store
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store implements mailstore.Store on top of a bucket
type S3Store struct {
	client  API
	bucket  string
	prefix  string
	timeout time.Duration
	logger  log.Logger
}

// NewS3Store builds an S3 client from cfg. Static credentials are used when
// configured, the default AWS credential chain otherwise.
func NewS3Store(ctx context.Context, cfg Config, logger log.Logger) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	store := NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix, logger)
	store.timeout = cfg.RequestTimeout()
	return store, nil
}

// NewS3StoreWithClient wraps an existing client
func NewS3StoreWithClient(client API, bucket, prefix string, logger log.Logger) *S3Store {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: log.With(logger, "component", "s3store", "bucket", bucket),
	}
}

func (s *S3Store) key(parts ...string) string {
	return path.Join(append([]string{s.prefix}, parts...)...)
}

func (s *S3Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Folders lists the common prefixes directly below the user's prefix
func (s *S3Store) Folders(ctx context.Context, user string) ([]string, error) {
	if err := mailstore.CheckName(user); err != nil {
		return nil, err
	}
	userPrefix := s.key(user) + "/"

	var folders []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(userPrefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := s.nextPage(ctx, paginator)
		if err != nil {
			return nil, s.wrap(err, "list folders", userPrefix)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), userPrefix), "/")
			if name != "" && !strings.HasPrefix(name, ".") {
				folders = append(folders, name)
			}
		}
	}

	if len(folders) == 0 {
		return nil, fmt.Errorf("user %s: %w", user, mailstore.ErrFolderNotFound)
	}
	sort.Strings(folders)
	return folders, nil
}

// Snapshot enumerates the objects of a folder. Buckets have no directories,
// so an empty folder and a missing one both yield an empty snapshot.
func (s *S3Store) Snapshot(ctx context.Context, user, folder string) (mailstore.Snapshot, error) {
	if err := mailstore.CheckName(user); err != nil {
		return nil, err
	}
	if err := mailstore.CheckName(folder); err != nil {
		return nil, err
	}
	folderPrefix := s.key(user, folder) + "/"

	var entries []mailstore.Entry
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(folderPrefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := s.nextPage(ctx, paginator)
		if err != nil {
			return nil, s.wrap(err, "list folder", folderPrefix)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, folderPrefix)
			entry, err := mailstore.NewEntry(folder, name, key)
			if err != nil {
				level.Debug(s.logger).Log("msg", "skipping object", "key", key, "err", err)
				continue
			}
			entries = append(entries, entry)
		}
	}
	return mailstore.NewSnapshot(entries), nil
}

func (s *S3Store) nextPage(ctx context.Context, p *s3.ListObjectsV2Paginator) (*s3.ListObjectsV2Output, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return p.NextPage(ctx)
}

// Load fetches an object; its LastModified time stands in for the creation time
func (s *S3Store) Load(ctx context.Context, entry mailstore.Entry) (*mailstore.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(entry.Key),
	})
	if err != nil {
		return nil, s.wrap(err, "get object", entry.Key)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", entry.Key, err)
	}

	return &mailstore.Message{
		UID:       entry.UID,
		Seq:       entry.Seq,
		Raw:       raw,
		CreatedAt: aws.ToTime(out.LastModified),
	}, nil
}

// Exists reports whether a message object is already present
func (s *S3Store) Exists(ctx context.Context, user, folder, name string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := s.key(user, folder, name)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, s.wrap(err, "head object", key)
}

// Put uploads a message object
func (s *S3Store) Put(ctx context.Context, user, folder, name string, raw []byte) error {
	if err := mailstore.CheckName(user); err != nil {
		return err
	}
	if err := mailstore.CheckName(folder); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := s.key(user, folder, name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(raw),
		ContentLength: aws.Int64(int64(len(raw))),
		ContentType:   aws.String("message/rfc822"),
	})
	if err != nil {
		return s.wrap(err, "put object", key)
	}
	return nil
}

// wrap logs service error codes and annotates err with the failed operation
func (s *S3Store) wrap(err error, op, key string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		level.Error(s.logger).Log("msg", op+" failed", "key", key, "code", apiErr.ErrorCode(), "err", apiErr.ErrorMessage())
	} else {
		level.Error(s.logger).Log("msg", op+" failed", "key", key, "err", err)
	}
	return fmt.Errorf("s3 %s %s: %w", op, key, err)
}
