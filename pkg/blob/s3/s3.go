// Package s3 implements the blob collaborators on top of Amazon S3 or any
// S3-compatible object store.
//
// Channels map to key prefixes and messages to objects:
//
//	<KeyPrefix><channel>/<messageID>
//
// Object metadata carries the original file name ("filename") and, for
// audio and video, the duration in seconds ("duration"). The object's
// Content-Length is the media size.
package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittodrive/internal/logger"
	"github.com/marmos91/dittodrive/pkg/blob"
)

const (
	metaFileName = "filename"
	metaDuration = "duration"
)

// Config contains configuration for the S3 blob source.
type Config struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	KeyPrefix string

	// StorageChannel is the channel that receives copied content
	StorageChannel string

	// Metrics is optional
	Metrics S3Metrics
}

// Store reads channels from S3 and copies into the storage channel.
//
// Thread Safety: safe for concurrent use. Storage message ids are allocated
// from an atomic counter seeded from the highest id found in the storage
// channel, so only one Store should copy into a given storage channel.
type Store struct {
	client  *s3.Client
	bucket  string
	prefix  string
	storage string
	metrics S3Metrics

	seedMu sync.Mutex
	seeded bool
	lastID atomic.Int64
}

// New creates an S3-backed blob store. The bucket must already exist.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.StorageChannel == "" {
		return nil, fmt.Errorf("storage channel is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	m := cfg.Metrics
	if m == nil {
		m = noopMetrics{}
	}

	return &Store{
		client:  cfg.Client,
		bucket:  cfg.Bucket,
		prefix:  cfg.KeyPrefix,
		storage: cfg.StorageChannel,
		metrics: m,
	}, nil
}

func (s *Store) channelPrefix(channel string) string {
	return s.prefix + channel + "/"
}

func (s *Store) objectKey(channel string, messageID int64) string {
	return s.channelPrefix(channel) + strconv.FormatInt(messageID, 10)
}

// Message returns the media stored for a message.
func (s *Store) Message(ctx context.Context, channel string, messageID int64) (m *blob.Media, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("HeadObject", time.Since(start), err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(channel, messageID)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, blob.ErrNoContent
		}
		return nil, fmt.Errorf("failed to head message %s/%d: %w", channel, messageID, err)
	}

	size := aws.ToInt64(out.ContentLength)
	if size == 0 {
		return nil, blob.ErrNoContent
	}

	media := &blob.Media{
		MessageID: messageID,
		FileName:  out.Metadata[metaFileName],
		MimeType:  aws.ToString(out.ContentType),
		Size:      size,
	}
	if raw, ok := out.Metadata[metaDuration]; ok {
		if d, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			media.Duration = d
		} else {
			logger.Debug("ignoring bad duration %q on %s/%d", raw, channel, messageID)
		}
	}
	return media, nil
}

// CopyToStorage copies a message into the storage channel under a new id.
func (s *Store) CopyToStorage(ctx context.Context, channel string, messageID int64) (id int64, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("CopyObject", time.Since(start), err) }()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := s.ensureSeeded(ctx); err != nil {
		return 0, fmt.Errorf("failed to scan storage channel: %w", err)
	}

	id = s.lastID.Add(1)
	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + s.objectKey(channel, messageID)),
		Key:        aws.String(s.objectKey(s.storage, id)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, blob.ErrNoContent
		}
		return 0, fmt.Errorf("failed to copy %s/%d: %w", channel, messageID, err)
	}

	if head, herr := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(s.storage, id)),
	}); herr == nil {
		s.metrics.RecordCopiedBytes(aws.ToInt64(head.ContentLength))
	}

	return id, nil
}

// ensureSeeded scans the storage channel on first use. A failed scan is
// retried by the next call.
func (s *Store) ensureSeeded(ctx context.Context) error {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()

	if s.seeded {
		return nil
	}
	if err := s.seed(ctx); err != nil {
		return err
	}
	s.seeded = true
	return nil
}

// seed finds the highest message id already present in the storage channel.
func (s *Store) seed(ctx context.Context) error {
	prefix := s.channelPrefix(s.storage)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var maxID int64
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			id, err := strconv.ParseInt(strings.TrimPrefix(*obj.Key, prefix), 10, 64)
			if err != nil {
				continue
			}
			if id > maxID {
				maxID = id
			}
		}
	}

	s.lastID.Store(maxID)
	logger.Debug("storage channel %q starts after message %d", s.storage, maxID)
	return nil
}

// CheckAccess verifies the channel can be listed.
func (s *Store) CheckAccess(ctx context.Context, channel string) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("ListObjectsV2", time.Since(start), err) }()

	_, err = s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.channelPrefix(channel)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", blob.ErrAccessDenied, channel, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
