package report

import (
	"context"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/udssoftware/crmsize/pkg/compression"
	"github.com/udssoftware/crmsize/pkg/config"
	"github.com/udssoftware/crmsize/pkg/errors"
)

// GCSSink writes one object per run to a Cloud Storage bucket
type GCSSink struct {
	client      *storage.Client
	bucket      string
	prefix      string
	format      string
	compression compression.Algorithm
	logger      *zap.Logger
}

// NewGCSSink creates a GCS sink using application default credentials
// unless a credentials file is configured
func NewGCSSink(ctx context.Context, cfg config.ReportConfig, logger *zap.Logger) (*GCSSink, error) {
	algo, err := compression.Parse(cfg.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid report compression")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create GCS client")
	}

	return &GCSSink{
		client:      client,
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		format:      cfg.Format,
		compression: algo,
		logger:      logger,
	}, nil
}

// Write streams the encoded reports into a new object
func (s *GCSSink) Write(ctx context.Context, reports []TableReport) error {
	name := ObjectName(s.prefix, runIDOf(reports), s.format, s.compression)

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = ContentType(s.format)
	w.ContentEncoding = s.compression.ContentEncoding()
	w.Metadata = map[string]string{"format": s.format, "compression": string(s.compression)}

	if err := EncodeCompressed(w, s.format, s.compression, reports); err != nil {
		_ = w.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to write report to GCS")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to finalize GCS object")
	}

	s.logger.Info("report uploaded", zap.String("bucket", s.bucket), zap.String("object", name))
	return nil
}

// Close closes the storage client
func (s *GCSSink) Close() error {
	return s.client.Close()
}
