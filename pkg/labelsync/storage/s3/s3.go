package s3

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services, used for all data operations
	UseSSL          bool   // Scheme used when Endpoint has none
	UsePathStyle    bool   // Use path-style addressing (MinIO)

	// PresignEndpoint is the endpoint embedded in presigned URLs. It must be
	// reachable by whoever fetches the URL, which is not necessarily the
	// case for Endpoint. Defaults to Endpoint.
	PresignEndpoint string

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// Server-side encryption algorithms accepted in Config.SSEAlgorithm
const (
	SSEAlgorithmAES256 = "AES256"
	SSEAlgorithmKMS    = "aws:kms"
)

// Backend is an S3-compatible implementation of the labelsync.BlobStore interface
type Backend struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	config        Config
}

// New creates a new S3-compatible storage backend
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.EnableSSE && config.SSEAlgorithm != SSEAlgorithmAES256 && config.SSEAlgorithm != SSEAlgorithmKMS {
		return nil, fmt.Errorf("unsupported SSE algorithm %q", config.SSEAlgorithm)
	}

	// Set up AWS config
	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	config.Endpoint = normalizeEndpoint(config.Endpoint, config.UseSSL)
	config.PresignEndpoint = normalizeEndpoint(config.PresignEndpoint, config.UseSSL)
	if config.PresignEndpoint == "" {
		config.PresignEndpoint = config.Endpoint
	}

	client := s3.NewFromConfig(awsCfg, endpointOptions(config.Endpoint, config.UsePathStyle)...)

	// Presigning is a local computation, so a client bound to the external
	// endpoint is never used for network calls.
	presignBase := client
	if config.PresignEndpoint != config.Endpoint {
		presignBase = s3.NewFromConfig(awsCfg, endpointOptions(config.PresignEndpoint, config.UsePathStyle)...)
	}

	backend := &Backend{
		client:        client,
		presignClient: s3.NewPresignClient(presignBase),
		bucket:        config.Bucket,
		config:        config,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

func endpointOptions(endpoint string, usePathStyle bool) []func(*s3.Options) {
	if endpoint == "" {
		return nil
	}
	return []func(*s3.Options){func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = usePathStyle
	}}
}

// normalizeEndpoint accepts "host:port" as well as full URLs.
func normalizeEndpoint(endpoint string, useSSL bool) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func (b *Backend) Bucket() string   { return b.bucket }
func (b *Backend) Provider() string { return "s3" }

// createBucketIfNotExists creates the bucket if it doesn't exist
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}

	// MinIO reports a missing bucket in several ways
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "BadRequest") &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// GetObjectMeta retrieves metadata for an object in S3
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*labelsync.ObjectMeta, error) {
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, b.wrap("head", objectKey, err)
	}

	contentType := "application/octet-stream"
	if result.ContentType != nil {
		contentType = *result.ContentType
	}

	metadata := make(map[string]string, len(result.Metadata)+1)
	for k, v := range result.Metadata {
		metadata[k] = v
	}
	metadata["content_type"] = contentType

	return &labelsync.ObjectMeta{
		Key:          objectKey,
		Size:         aws.ToInt64(result.ContentLength),
		ContentType:  contentType,
		LastModified: aws.ToTime(result.LastModified),
		ETag:         strings.Trim(aws.ToString(result.ETag), "\""),
		Metadata:     metadata,
	}, nil
}

// Upload stores the payload. When params.Checksum is set it is sent as
// Content-MD5 so the server rejects a payload that was altered in transit.
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params labelsync.UploadParams) error {
	input, err := b.putInput(reader, params)
	if err != nil {
		return err
	}

	uploader := manager.NewUploader(b.client)
	if _, err := uploader.Upload(ctx, input); err != nil {
		return b.wrap("upload", params.ObjectKey, err)
	}

	return nil
}

func (b *Backend) putInput(reader io.Reader, params labelsync.UploadParams) (*s3.PutObjectInput, error) {
	input := &s3.PutObjectInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(params.ObjectKey),
		Body:     reader,
		Metadata: params.Metadata,
	}
	if params.MimeType != "" {
		input.ContentType = aws.String(params.MimeType)
	}
	if params.Size > 0 {
		input.ContentLength = aws.Int64(params.Size)
	}
	if params.Checksum != "" {
		raw, err := hex.DecodeString(params.Checksum)
		if err != nil {
			return nil, fmt.Errorf("invalid checksum %q: %w", params.Checksum, err)
		}
		input.ContentMD5 = aws.String(base64.StdEncoding.EncodeToString(raw))
	}

	if b.config.EnableSSE {
		switch b.config.SSEAlgorithm {
		case SSEAlgorithmAES256:
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		case SSEAlgorithmKMS:
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			if b.config.SSEKMSKeyID != "" {
				input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
			}
		}
	}
	return input, nil
}

// PresignGet checks that the object exists and returns a read URL signed
// against the presign endpoint.
func (b *Backend) PresignGet(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	if _, err := b.GetObjectMeta(ctx, objectKey); err != nil {
		return "", err
	}

	result, err := b.presignClient.PresignGetObject(ctx, getInput(b.bucket, objectKey), func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", b.wrap("presign", objectKey, err)
	}

	return result.URL, nil
}

// Download downloads content directly from S3
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	result, err := b.client.GetObject(ctx, getInput(b.bucket, objectKey))
	if err != nil {
		return nil, b.wrap("download", objectKey, err)
	}

	return result.Body, nil
}

// Delete deletes content from S3. S3 deletes are idempotent, so the object
// is looked up first to report ErrNotFound.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	if _, err := b.GetObjectMeta(ctx, objectKey); err != nil {
		return err
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return b.wrap("delete", objectKey, err)
	}

	return nil
}

// List enumerates every object under prefix
func (b *Backend) List(ctx context.Context, prefix string) ([]labelsync.ObjectMeta, error) {
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})

	var result []labelsync.ObjectMeta
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, b.wrap("list", prefix, err)
		}
		for _, obj := range page.Contents {
			result = append(result, labelsync.ObjectMeta{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         strings.Trim(aws.ToString(obj.ETag), "\""),
			})
		}
	}

	return result, nil
}

// wrap classifies SDK errors: a service answer of NotFound/NoSuchKey maps
// to ErrNotFound, an error without any service answer to ErrUnavailable.
func (b *Backend) wrap(op, key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			err = fmt.Errorf("%w: %v", labelsync.ErrNotFound, err)
		}
	} else {
		err = fmt.Errorf("%w: %v", labelsync.ErrUnavailable, err)
	}
	return &labelsync.StorageError{
		Backend: "s3",
		Key:     key,
		Op:      op,
		Err:     err,
	}
}

func getInput(bucket, key string) *s3.GetObjectInput {
	return &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
}
