package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithymiddleware "github.com/aws/smithy-go/middleware"
)

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	PublicACL     bool
}

// S3Backend stores objects in an S3-compatible bucket.
type S3Backend struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3Backend builds a client from cfg. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Backend{client: client, cfg: cfg}, nil
}

func (b *S3Backend) Name() string { return "s3" }

func (b *S3Backend) FindByContentAddress(ctx context.Context, key string) (string, bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("head object: %w", err)
	}
	return b.PublicURL(key), true, nil
}

func (b *S3Backend) Upload(ctx context.Context, key string, body io.Reader, size int64, meta ObjectMeta) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		Metadata:      metadataMap(meta),
	}
	if meta.ContentType != "" {
		input.ContentType = aws.String(meta.ContentType)
	}
	if b.cfg.PublicACL {
		input.ACL = types.ObjectCannedACLPublicRead
	}
	var optFns []func(*s3.Options)
	if gate, ok := body.(progressGate); ok {
		gate.Hold()
		optFns = append(optFns, s3.WithAPIOptions(releaseOnSend(gate)))
	}
	if _, err := b.client.PutObject(ctx, input, optFns...); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return b.PublicURL(key), nil
}

// progressGate is a body that can hold back progress reports.
type progressGate interface {
	Hold()
	Release()
}

// releaseOnSend resumes progress reporting right before each attempt hits
// the wire. The SDK may read a seekable body end to end for payload hashing
// and checksums first; those reads stay silent.
func releaseOnSend(gate progressGate) func(*smithymiddleware.Stack) error {
	return func(stack *smithymiddleware.Stack) error {
		return stack.Deserialize.Add(smithymiddleware.DeserializeMiddlewareFunc("ReleaseUploadProgress",
			func(ctx context.Context, in smithymiddleware.DeserializeInput, next smithymiddleware.DeserializeHandler) (smithymiddleware.DeserializeOutput, smithymiddleware.Metadata, error) {
				gate.Release()
				return next.HandleDeserialize(ctx, in)
			}), smithymiddleware.After)
	}
}

func (b *S3Backend) HealthCheck(ctx context.Context) error {
	if _, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.cfg.Bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", b.cfg.Bucket, err)
	}
	return nil
}

// PublicURL returns the address an object is served from.
func (b *S3Backend) PublicURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	switch {
	case b.cfg.PublicBaseURL != "":
		return strings.TrimRight(b.cfg.PublicBaseURL, "/") + "/" + escaped
	case b.cfg.Endpoint != "":
		return strings.TrimRight(b.cfg.Endpoint, "/") + "/" + b.cfg.Bucket + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.cfg.Bucket, b.cfg.Region, escaped)
	}
}

func isNotFoundError(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}
