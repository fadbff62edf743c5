package remote

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"qcsync/internal/config"
	"qcsync/internal/qc"
)

// Uploader is the subset of the S3 upload manager used by S3Endpoint.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Endpoint drops one JSON object per entry at <prefix>/<idempotencyKey>.json.
// Writing the same key twice overwrites identical content, so resubmission
// never creates a second record.
type S3Endpoint struct {
	uploader Uploader
	bucket   string
	prefix   string
	deviceID string
}

var _ qc.Endpoint = (*S3Endpoint)(nil)

// NewS3Endpoint creates an S3Endpoint around an existing uploader.
func NewS3Endpoint(uploader Uploader, bucket, prefix, deviceID string) *S3Endpoint {
	return &S3Endpoint{uploader: uploader, bucket: bucket, prefix: prefix, deviceID: deviceID}
}

// NewS3EndpointFromConfig loads AWS configuration and builds an S3Endpoint.
// Static credentials in cfg take precedence over the default chain.
func NewS3EndpointFromConfig(ctx context.Context, cfg config.RemoteConfig, deviceID string) (*S3Endpoint, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3Endpoint(manager.NewUploader(client), cfg.S3Bucket, cfg.S3Prefix, deviceID), nil
}

// ObjectKey returns the object key an entry is stored under.
func (s *S3Endpoint) ObjectKey(e qc.Entry) string {
	return path.Join(s.prefix, e.IdempotencyKey()+".json")
}

// SubmitBatch uploads entries in order. An upload error fails the whole batch
// and later entries are not attempted.
func (s *S3Endpoint) SubmitBatch(ctx context.Context, entries []qc.Entry) ([]qc.Result, error) {
	results := make([]qc.Result, len(entries))
	for i, e := range entries {
		if reason := invalidReason(e); reason != "" {
			results[i] = qc.Rejected(reason)
			continue
		}

		body, err := encodeObject(s.deviceID, e)
		if err != nil {
			return nil, err
		}

		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.ObjectKey(e)),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return nil, qc.TransportError(fmt.Errorf("uploading %s: %w", s.ObjectKey(e), err))
		}
		results[i] = qc.Accepted()
	}
	return results, nil
}
