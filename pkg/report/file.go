package report

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/udssoftware/crmsize/pkg/compression"
	"github.com/udssoftware/crmsize/pkg/config"
	"github.com/udssoftware/crmsize/pkg/errors"
)

// FileSink writes reports to the local file system. When Path is an
// existing directory every run gets its own file inside it.
type FileSink struct {
	path        string
	format      string
	compression compression.Algorithm
	logger      *zap.Logger
}

// NewFileSink creates a file sink
func NewFileSink(cfg config.ReportConfig, logger *zap.Logger) (*FileSink, error) {
	algo, err := compression.Parse(cfg.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid report compression")
	}
	return &FileSink{
		path:        cfg.Path,
		format:      cfg.Format,
		compression: algo,
		logger:      logger,
	}, nil
}

// Target returns the file a run with the given reports is written to
func (s *FileSink) Target(reports []TableReport) string {
	if info, err := os.Stat(s.path); err == nil && info.IsDir() {
		return filepath.Join(s.path, ObjectName("", runIDOf(reports), s.format, s.compression))
	}
	return s.path
}

// Write encodes reports into the target file, replacing it
func (s *FileSink) Write(ctx context.Context, reports []TableReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := s.Target(reports)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create report directory")
	}

	f, err := os.Create(target)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create report file")
	}

	if err := EncodeCompressed(f, s.format, s.compression, reports); err != nil {
		_ = f.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write report")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close report file")
	}

	s.logger.Info("report written", zap.String("path", target), zap.Int("tables", len(reports)))
	return nil
}

// Close is a no-op
func (s *FileSink) Close() error {
	return nil
}
