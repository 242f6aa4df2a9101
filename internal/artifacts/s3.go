package artifacts

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// s3Client is the slice of the S3 API the uploader needs.
type s3Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader pushes bundled archives to an S3 bucket.
type Uploader struct {
	client s3Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewUploader builds an Uploader from the ambient AWS configuration
// (environment, shared config, instance role). SAVESBENCH_S3_ACCESS_KEY
// and SAVESBENCH_S3_SECRET_KEY, when both set, override the credential
// chain for CI hosts without an AWS profile.
func NewUploader(ctx context.Context, bucket, prefix string, logger *zap.Logger) (*Uploader, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	accessKey := os.Getenv("SAVESBENCH_S3_ACCESS_KEY")
	secretKey := os.Getenv("SAVESBENCH_S3_SECRET_KEY")
	if accessKey != "" && secretKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Uploader{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		logger: logger,
	}, nil
}

// NewUploaderWithClient wires a caller-supplied client. Used by tests.
func NewUploaderWithClient(client s3Client, bucket, prefix string, logger *zap.Logger) *Uploader {
	return &Uploader{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Upload puts one local file under <prefix>/<basename> in the bucket
// and returns the object key.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath) // #nosec G304 - operator-supplied path
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close() //nolint:errcheck

	key := path.Join(u.prefix, filepath.Base(localPath))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to s3://%s/%s: %w", localPath, u.bucket, key, err)
	}

	u.logger.Info("uploaded artifact",
		zap.String("bucket", u.bucket), zap.String("key", key))
	return key, nil
}
