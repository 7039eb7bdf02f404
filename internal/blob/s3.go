package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Backend implements Backend against an S3-compatible bucket, adapted
// from the teacher's internal/storage.S3Store: the Glacier restore/tiering
// methods are dropped since encrypted/archival repos are out of scope, and
// keys are namespaced by kind/store_id/obj_id instead of a flat prefix.
type S3Backend struct {
	s3     *s3.Client
	bucket string
	prefix string // optional key prefix, e.g. a deployment tag
}

// S3Config holds the connection parameters for an S3Backend.
type S3Config struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool // required for MinIO
}

// NewS3Backend creates an S3Backend from cfg.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return &S3Backend{
		s3:     client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (b *S3Backend) key(kind Kind, storeID, objID string) string {
	hi, lo, err := idToPath(objID)
	if err != nil {
		hi, lo = "", objID
	}
	parts := []string{string(kind), storeID, hi, lo}
	if b.prefix != "" {
		parts = append([]string{b.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

func (b *S3Backend) Get(kind Kind, storeID, objID string) (io.ReadCloser, error) {
	key := b.key(kind, storeID, objID)
	out, err := b.s3.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundErr(err) {
			return nil, &NotFoundError{Kind: kind, StoreID: storeID, ObjID: objID}
		}
		return nil, fmt.Errorf("get s3 object %s: %w", key, err)
	}
	return out.Body, nil
}

func (b *S3Backend) Put(kind Kind, storeID, objID string, r io.Reader, size int64) error {
	key := b.key(kind, storeID, objID)

	// PutObject needs a seekable body for retries/checksums; objects here
	// are small enough (blocks, dir/commit JSON) to buffer in full.
	buf, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read object body: %w", err)
	}

	_, err = b.s3.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf),
		ContentLength: aws.Int64(int64(len(buf))),
	})
	if err != nil {
		return fmt.Errorf("put s3 object %s: %w", key, err)
	}
	return nil
}

func (b *S3Backend) Exists(kind Kind, storeID, objID string) (bool, error) {
	key := b.key(kind, storeID, objID)
	_, err := b.s3.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundErr(err) {
			return false, nil
		}
		return false, fmt.Errorf("head s3 object %s: %w", key, err)
	}
	return true, nil
}

func isNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "NotFound") || strings.Contains(s, "NoSuchKey") || strings.Contains(s, "404")
}
