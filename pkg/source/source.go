// Package source opens search-result inputs from the local filesystem or S3.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/ChrisMcGann/dimadb/pkg/core"
)

const s3Scheme = "s3://"

// S3Config holds the S3 client settings. Empty credentials fall back to the
// default AWS credentials chain.
type S3Config struct {
	Region          string
	Endpoint        string // optional; e.g. a MinIO URL
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// ObjectGetter is the subset of the S3 client used to fetch inputs.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Input is an opened input stream.
type Input struct {
	io.ReadCloser
	Path string // as given by the caller
	Name string // base name, the default dataset label
}

// Opener resolves paths and s3:// URLs to readable inputs.
type Opener struct {
	cfg    S3Config
	client ObjectGetter
}

// NewOpener creates an Opener. The S3 client is built on first use.
func NewOpener(cfg S3Config) *Opener {
	return &Opener{cfg: cfg}
}

// WithClient replaces the S3 client, mostly for tests.
func (o *Opener) WithClient(c ObjectGetter) *Opener {
	o.client = c
	return o
}

// IsS3 reports whether p is an s3:// URL.
func IsS3(p string) bool {
	return strings.HasPrefix(p, s3Scheme)
}

// Open opens p. Missing files and objects wrap core.ErrInputNotFound.
func (o *Opener) Open(ctx context.Context, p string) (*Input, error) {
	if IsS3(p) {
		return o.openS3(ctx, p)
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", core.ErrInputNotFound, p)
		}
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	return &Input{ReadCloser: f, Path: p, Name: filepath.Base(p)}, nil
}

func (o *Opener) openS3(ctx context.Context, p string) (*Input, error) {
	bucket, key, err := splitS3URL(p)
	if err != nil {
		return nil, err
	}

	client, err := o.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrInputNotFound, p)
		}
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	return &Input{ReadCloser: out.Body, Path: p, Name: path.Base(key)}, nil
}

func (o *Opener) s3Client(ctx context.Context) (ObjectGetter, error) {
	if o.client != nil {
		return o.client, nil
	}

	region := o.cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if o.cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.cfg.AccessKeyID, o.cfg.SecretAccessKey, o.cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	o.client = s3.NewFromConfig(awsCfg, func(opts *s3.Options) {
		opts.UsePathStyle = o.cfg.PathStyle
		if o.cfg.Endpoint != "" {
			opts.BaseEndpoint = aws.String(o.cfg.Endpoint)
		}
	})
	return o.client, nil
}

func splitS3URL(p string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(p, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 url %q, expected s3://bucket/key", p)
	}
	return bucket, key, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return true
		}
	}
	return false
}
