// Package s3 implements the blob store contract on top of Amazon S3 or any
// S3-compatible backend.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mirabel-dev/folio/internal/logger"
	"github.com/mirabel-dev/folio/pkg/store/blob"
)

// Metrics receives one observation per S3 call. May be nil for zero overhead.
type Metrics interface {
	ObserveOperation(operation string, duration time.Duration, err error)
}

// Config contains configuration for the S3 blob store.
// Fields map to the S3_* environment variables.
type Config struct {
	Endpoint     string `mapstructure:"endpoint" validate:"required"`
	Region       string `mapstructure:"region" validate:"required"`
	Bucket       string `mapstructure:"bucket" validate:"required"`
	PublicKey    string `mapstructure:"public_key" validate:"required"`
	PrivateKey   string `mapstructure:"private_key" validate:"required"`
	AddressStyle string `mapstructure:"address_style" validate:"omitempty,oneof=virtual path"`

	// MaxRetries is the number of attempts for transient errors (default: 3).
	MaxRetries int `mapstructure:"max_retries"`

	// InitialBackoff is the delay before the first retry (default: 100ms);
	// each subsequent retry doubles it up to 2s.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

// ApplyDefaults sets default values for unspecified configuration fields.
func (c *Config) ApplyDefaults() {
	if c.AddressStyle == "" {
		c.AddressStyle = "virtual"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
}

// S3Store implements blob.Store using aws-sdk-go-v2.
//
// Safe for concurrent use. Transient failures are retried with exponential
// backoff; after the budget is exhausted the error propagates and the
// caller's transaction rolls back.
type S3Store struct {
	client         *s3.Client
	bucket         string
	maxRetries     int
	initialBackoff time.Duration
	metrics        Metrics
}

// New creates an S3 blob store from configuration.
// The bucket must already exist; it is not created here.
func New(ctx context.Context, cfg Config, metrics Metrics) (*S3Store, error) {
	cfg.ApplyDefaults()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.PublicKey,
			cfg.PrivateKey,
			"", // session token (empty for static credentials)
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.AddressStyle == "path"
	})

	return &S3Store{
		client:         client,
		bucket:         cfg.Bucket,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		metrics:        metrics,
	}, nil
}

// Get returns the bytes stored at key, or blob.ErrNotFound.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.withRetry(ctx, "GetObject", func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, blob.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get %q: %w", key, err)
	}
	return data, nil
}

// Put stores data at key, replacing any existing value.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	err := s.withRetry(ctx, "PutObject", func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("s3 put %q: %w", key, err)
	}
	return nil
}

// Delete removes the value at key. S3 treats deleting a missing key as success.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	err := s.withRetry(ctx, "DeleteObject", func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("s3 delete %q: %w", key, err)
	}
	return nil
}

// withRetry runs op with exponential backoff on transient errors.
// NoSuchKey is terminal and returned immediately.
func (s *S3Store) withRetry(ctx context.Context, operation string, op func() error) error {
	backoff := s.initialBackoff
	var err error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		start := time.Now()
		err = op()
		if s.metrics != nil {
			s.metrics.ObserveOperation(operation, time.Since(start), err)
		}

		if err == nil {
			return nil
		}

		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return err
		}

		if attempt == s.maxRetries {
			break
		}

		logger.Warn("transient S3 error, retrying",
			"operation", operation,
			"attempt", attempt+1,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > 2*time.Second {
			backoff = 2 * time.Second
		}
	}

	return err
}
