// Package objstore archives fetched artifacts in an S3-compatible
// bucket.
//
// Objects are written zstd-compressed under sharded, digest-derived
// keys. The bucket is an archive, not a source of truth: everything
// recorded about an object also lives in the relational store, and the
// accounting rows in the bucket table are advisory.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/internal/tmp"
)

// Config carries the bucket connection settings.
type Config struct {
	// Endpoint is the S3 endpoint URL. Empty uses the AWS default
	// resolution.
	Endpoint string
	Bucket   string
	Region   string
	// AccessKey and SecretKey are static credentials. Both empty falls
	// back to the SDK's default credential chain.
	AccessKey string
	SecretKey string
	// PathStyle forces path-style addressing, needed by most
	// non-AWS endpoints.
	PathStyle bool
}

// Store is the archive client.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// New builds a Store from the config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("objstore: bucket name is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 5 * time.Minute}),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	ac, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objstore: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(ac, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// ShardKey derives the object key for a digest.
//
// The hex digest is fanned out into two directory levels so flat
// bucket listings stay manageable, and the ":" separator is replaced
// since some S3 implementations mishandle it in keys.
func ShardKey(chksum srctrace.Digest) string {
	key := strings.ReplaceAll(chksum.String(), ":", "-")
	var b strings.Builder
	for i, r := range key {
		if i == 9 || i == 11 {
			b.WriteByte('/')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Put archives the stream under the digest's key, zstd-compressed.
// Returns the compressed and uncompressed byte counts.
func (s *Store) Put(ctx context.Context, chksum srctrace.Digest, r io.Reader) (compressed, uncompressed int64, err error) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "objstore/Store.Put",
		"chksum", chksum.String())

	// The SDK wants a seekable body with a known length, so compress
	// to a spool file first.
	spool, err := tmp.NewFile("", "objstore.*.zst")
	if err != nil {
		return 0, 0, fmt.Errorf("objstore: creating spool: %w", err)
	}
	defer spool.Close()

	zw, err := zstd.NewWriter(spool, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return 0, 0, err
	}
	uncompressed, err = io.Copy(zw, r)
	if err != nil {
		return 0, 0, fmt.Errorf("objstore: compressing object: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, 0, err
	}
	compressed, err = spool.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, 0, err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return 0, 0, err
	}

	key := ShardKey(chksum)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          spool.File,
		ContentLength: aws.Int64(compressed),
		Metadata: map[string]string{
			"chksum": chksum.String(),
		},
	})
	if err != nil {
		return 0, 0, &srctrace.Error{
			Inner:   err,
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("objstore: uploading %q", key),
		}
	}
	zlog.Info(ctx).
		Str("key", key).
		Int64("compressed", compressed).
		Int64("uncompressed", uncompressed).
		Msg("archived object")
	return compressed, uncompressed, nil
}

// Get opens the archived object for a digest, transparently
// decompressed. The returned reader must be closed.
func (s *Store) Get(ctx context.Context, chksum srctrace.Digest) (io.ReadCloser, error) {
	key := ShardKey(chksum)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &srctrace.Error{
			Inner:   err,
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("objstore: fetching %q", key),
		}
	}
	zr, err := zstd.NewReader(out.Body)
	if err != nil {
		out.Body.Close()
		return nil, fmt.Errorf("objstore: opening %q: %w", key, err)
	}
	return &objReader{zr: zr, body: out.Body}, nil
}

// PresignGet returns a time-limited GET URL for the archived object.
func (s *Store) PresignGet(ctx context.Context, chksum srctrace.Digest, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ShardKey(chksum)),
	}, func(o *s3.PresignOptions) {
		o.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("objstore: presigning %q: %w", ShardKey(chksum), err)
	}
	return req.URL, nil
}

type objReader struct {
	zr   *zstd.Decoder
	body io.ReadCloser
}

func (o *objReader) Read(p []byte) (int, error) { return o.zr.Read(p) }

func (o *objReader) Close() error {
	o.zr.Close()
	return o.body.Close()
}
