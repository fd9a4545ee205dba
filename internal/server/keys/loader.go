// Package keys fetches signing key material at startup from the local
// filesystem or from S3-compatible object storage.
package keys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxKeySize bounds how much is read from a key object.
const maxKeySize = 64 << 10

// S3Settings configures access to the object store holding keys.
// Empty credentials fall back to the default AWS credential chain.
type S3Settings struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// ObjectGetter is the slice of the S3 client used by Load.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newObjectGetter = func(ctx context.Context, st S3Settings) (ObjectGetter, error) {
		opts := []func(*config.LoadOptions) error{config.WithRegion(st.Region)}
		if st.AccessKey != "" {
			opts = append(opts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(st.AccessKey, st.SecretKey, "")))
		}

		cfg, err := loadDefaultAWSConfig(ctx, opts...)
		if err != nil {
			return nil, err
		}

		return s3.NewFromConfig(cfg, func(o *s3.Options) {
			if st.BaseEndpoint != "" {
				o.BaseEndpoint = aws.String(st.BaseEndpoint)
				o.UsePathStyle = true
			}
		}), nil
	}
)

var ErrEmptyKey = errors.New("key material is empty")

// Load returns the bytes behind uri. Accepted forms: a plain path,
// file:///path, and s3://bucket/object/key.
func Load(ctx context.Context, uri string, st S3Settings) ([]byte, error) {
	if uri == "" {
		return nil, errors.New("key uri is empty")
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse key uri: %w", err)
	}

	var data []byte
	switch u.Scheme {
	case "", "file":
		path := u.Path
		if u.Scheme == "" {
			path = uri
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
	case "s3":
		data, err = loadS3(ctx, u, st)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported key uri scheme %q", u.Scheme)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, ErrEmptyKey
	}
	return data, nil
}

func loadS3(ctx context.Context, u *url.URL, st S3Settings) ([]byte, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 key uri needs bucket and key: %q", u.String())
	}

	client, err := newObjectGetter(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxKeySize))
	if err != nil {
		return nil, fmt.Errorf("s3 read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}
