package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittodrive/internal/logger"
	"github.com/marmos91/dittodrive/pkg/blob"
	blobmemory "github.com/marmos91/dittodrive/pkg/blob/memory"
	blobs3 "github.com/marmos91/dittodrive/pkg/blob/s3"
	"github.com/marmos91/dittodrive/pkg/store"
	"github.com/marmos91/dittodrive/pkg/store/badger"
	"github.com/marmos91/dittodrive/pkg/store/file"
	"github.com/marmos91/dittodrive/pkg/store/memory"
	"github.com/marmos91/dittodrive/pkg/store/postgres"
	"github.com/mitchellh/mapstructure"
)

// Blob is everything the importer needs from a blob store.
type Blob interface {
	blob.Source
	blob.Copier
	blob.AccessChecker
}

// CreateStore creates the namespace store selected by cfg.Type.
//
// The type-specific section is decoded with mapstructure into the backend's
// own Config and passed to its constructor. Unknown types are rejected.
func CreateStore(ctx context.Context, cfg *StoreConfig) (store.Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "file":
		return createFileStore(cfg.File)
	case "badger":
		return createBadgerStore(ctx, cfg.Badger)
	case "postgres":
		return createPostgresStore(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}

func createFileStore(options map[string]any) (store.Store, error) {
	var storeCfg file.Config
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode file store config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("file store: path is required")
	}

	st, err := file.New(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create file store: %w", err)
	}
	return st, nil
}

func createBadgerStore(ctx context.Context, options map[string]any) (store.Store, error) {
	var storeCfg badger.Config
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger store config: %w", err)
	}
	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger store: db_path is required")
	}

	st, err := badger.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger store: %w", err)
	}
	return st, nil
}

func createPostgresStore(ctx context.Context, options map[string]any) (store.Store, error) {
	var storeCfg postgres.Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &storeCfg,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode postgres store config: %w", err)
	}
	if storeCfg.DSN == "" {
		return nil, fmt.Errorf("postgres store: dsn is required")
	}

	st, err := postgres.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres store: %w", err)
	}
	return st, nil
}

// s3BlobConfig represents the blob.s3 section.
type s3BlobConfig struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// CreateBlob creates the blob store selected by cfg.Type.
//
// The memory type starts with an empty storage channel and is only useful for
// local experiments and tests.
func CreateBlob(ctx context.Context, cfg *BlobConfig, m blobs3.S3Metrics) (Blob, error) {
	switch cfg.Type {
	case "memory":
		channels := blobmemory.New()
		channels.CreateChannel(cfg.StorageChannel)
		return channels, nil
	case "s3":
		return createS3Blob(ctx, cfg, m)
	default:
		return nil, fmt.Errorf("unknown blob type: %q", cfg.Type)
	}
}

func createS3Blob(ctx context.Context, cfg *BlobConfig, m blobs3.S3Metrics) (Blob, error) {
	var blobCfg s3BlobConfig
	if err := mapstructure.Decode(cfg.S3, &blobCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 blob config: %w", err)
	}
	if blobCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 blob store: bucket is required")
	}
	if blobCfg.Region == "" {
		return nil, fmt.Errorf("S3 blob store: region is required")
	}

	client, err := newS3Client(ctx, blobCfg)
	if err != nil {
		return nil, err
	}

	st, err := blobs3.New(ctx, blobs3.Config{
		Client:         client,
		Bucket:         blobCfg.Bucket,
		KeyPrefix:      blobCfg.KeyPrefix,
		StorageChannel: cfg.StorageChannel,
		Metrics:        m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 blob store: %w", err)
	}

	logger.Info("S3 blob store initialized: bucket=%s, region=%s, prefix=%s",
		blobCfg.Bucket, blobCfg.Region, blobCfg.KeyPrefix)

	return st, nil
}

func newS3Client(ctx context.Context, blobCfg s3BlobConfig) (*s3.Client, error) {
	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(blobCfg.Region),
	}

	// Custom endpoint for MinIO, Localstack, etc.
	if blobCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               blobCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Static credentials if provided, otherwise the default credential chain
	if blobCfg.AccessKeyID != "" && blobCfg.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(blobCfg.AccessKeyID, blobCfg.SecretAccessKey, ""),
		))
	}

	maxRetries := blobCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing for MinIO/Localstack
		if blobCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	}), nil
}
