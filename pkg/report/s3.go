package report

import (
	"bytes"
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/udssoftware/crmsize/pkg/compression"
	"github.com/udssoftware/crmsize/pkg/config"
	"github.com/udssoftware/crmsize/pkg/errors"
)

// s3Uploader is the part of manager.Uploader the sink uses
type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Sink uploads one object per run
type S3Sink struct {
	uploader    s3Uploader
	bucket      string
	prefix      string
	format      string
	compression compression.Algorithm
	logger      *zap.Logger
}

// NewS3Sink creates an S3 sink using the default AWS credential chain
func NewS3Sink(ctx context.Context, cfg config.ReportConfig, logger *zap.Logger) (*S3Sink, error) {
	algo, err := compression.Parse(cfg.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid report compression")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	return newS3Sink(manager.NewUploader(s3.NewFromConfig(awsCfg)), cfg, algo, logger), nil
}

func newS3Sink(uploader s3Uploader, cfg config.ReportConfig, algo compression.Algorithm, logger *zap.Logger) *S3Sink {
	return &S3Sink{
		uploader:    uploader,
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		format:      cfg.Format,
		compression: algo,
		logger:      logger,
	}
}

// Write uploads the encoded reports
func (s *S3Sink) Write(ctx context.Context, reports []TableReport) error {
	var buf bytes.Buffer
	if err := EncodeCompressed(&buf, s.format, s.compression, reports); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode report")
	}

	key := ObjectName(s.prefix, runIDOf(reports), s.format, s.compression)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(ContentType(s.format)),
		Metadata: map[string]string{
			"tables":      strconv.Itoa(len(reports)),
			"format":      s.format,
			"compression": string(s.compression),
		},
	}
	if enc := s.compression.ContentEncoding(); enc != "" {
		input.ContentEncoding = aws.String(enc)
	}

	result, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload report to S3")
	}

	s.logger.Info("report uploaded",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.String("location", result.Location))
	return nil
}

// Close is a no-op
func (s *S3Sink) Close() error {
	return nil
}
