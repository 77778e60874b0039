package report

import (
	"context"
	"strings"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/udssoftware/crmsize/pkg/config"
	"github.com/udssoftware/crmsize/pkg/errors"
	"github.com/udssoftware/crmsize/pkg/json"
)

// KafkaSink publishes one message per table, keyed by table name
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaSink connects a synchronous producer to the brokers
func NewKafkaSink(cfg config.ReportConfig, logger *zap.Logger) (*KafkaSink, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create Kafka producer")
	}
	return newKafkaSink(producer, cfg.Topic, logger), nil
}

func newKafkaSink(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, logger: logger}
}

func saramaConfig(cfg config.ReportConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = "crmsize"
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3

	switch strings.ToLower(cfg.Compression) {
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
		sc.Version = sarama.V2_1_0_0
	default:
		sc.Producer.Compression = sarama.CompressionNone
	}
	return sc
}

// Write sends the reports as a single batch
func (s *KafkaSink) Write(ctx context.Context, reports []TableReport) error {
	if len(reports) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	messages := make([]*sarama.ProducerMessage, 0, len(reports))
	for _, r := range reports {
		value, err := json.Marshal(r)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode report")
		}
		messages = append(messages, &sarama.ProducerMessage{
			Topic: s.topic,
			Key:   sarama.StringEncoder(r.Name),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte("run_id"), Value: []byte(r.RunID)},
			},
			Timestamp: r.StartedAt,
		})
	}

	if err := s.producer.SendMessages(messages); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to publish reports")
	}

	s.logger.Info("reports published", zap.String("topic", s.topic), zap.Int("messages", len(messages)))
	return nil
}

// Close closes the producer
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
