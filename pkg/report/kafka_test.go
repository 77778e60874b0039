package report

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udssoftware/crmsize/pkg/config"
	"github.com/udssoftware/crmsize/pkg/json"
	"github.com/udssoftware/crmsize/pkg/testutil"
)

func TestSaramaConfig(t *testing.T) {
	sc := saramaConfig(config.ReportConfig{Compression: "zstd"})
	assert.True(t, sc.Producer.Return.Successes)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.Equal(t, sarama.CompressionZSTD, sc.Producer.Compression)
	assert.True(t, sc.Version.IsAtLeast(sarama.V2_1_0_0))
	assert.NoError(t, sc.Validate())

	assert.Equal(t, sarama.CompressionNone, saramaConfig(config.ReportConfig{}).Producer.Compression)
	assert.Equal(t, sarama.CompressionLZ4, saramaConfig(config.ReportConfig{Compression: "LZ4"}).Producer.Compression)
}

func TestKafkaSinkWrite(t *testing.T) {
	producer := mocks.NewSyncProducer(t, saramaConfig(config.ReportConfig{}))
	for _, name := range []string{"account", "contact"} {
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			key, err := msg.Key.Encode()
			if err != nil {
				return err
			}
			if string(key) != name {
				return errors.New("unexpected key " + string(key))
			}
			if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "run-1" {
				return errors.New("missing run_id header")
			}
			value, err := msg.Value.Encode()
			if err != nil {
				return err
			}
			var r TableReport
			if err := json.Unmarshal(value, &r); err != nil {
				return err
			}
			if r.Name != name {
				return errors.New("unexpected payload " + r.Name)
			}
			return nil
		})
	}

	sink := newKafkaSink(producer, "crm-sizes", testutil.TestLogger(t))
	require.NoError(t, sink.Write(testutil.TestContext(t), sampleReports()))
	require.NoError(t, sink.Close())
}

func TestKafkaSinkWriteError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, saramaConfig(config.ReportConfig{}))
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndSucceed()

	sink := newKafkaSink(producer, "crm-sizes", testutil.TestLogger(t))
	err := sink.Write(testutil.TestContext(t), sampleReports())
	require.Error(t, err)
	require.NoError(t, sink.Close())
}

func TestKafkaSinkWriteEmpty(t *testing.T) {
	producer := mocks.NewSyncProducer(t, saramaConfig(config.ReportConfig{}))
	sink := newKafkaSink(producer, "crm-sizes", testutil.TestLogger(t))
	require.NoError(t, sink.Write(testutil.TestContext(t), nil))
	require.NoError(t, sink.Close())
}
