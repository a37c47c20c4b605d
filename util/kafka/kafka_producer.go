package kafka

import (
	"encoding/binary"
	"net/url"
	"strconv"
	"strings"

	"github.com/IBM/sarama"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
	"github.com/bsv-blockchain/peerlogic/errors"
)

/**
kafka-topics.sh --list --bootstrap-server localhost:9092

kafka-console-consumer.sh --topic rejectedtx --bootstrap-server localhost:9092 --from-beginning
*/

type KafkaProducerI interface {
	Send(key []byte, data []byte) error
	Close() error
}

type SyncKafkaProducer struct {
	Producer   sarama.SyncProducer
	Topic      string
	Partitions int32
}

func (k *SyncKafkaProducer) Close() error {
	if err := k.Producer.Close(); err != nil {
		return errors.NewServiceError("failed to close Kafka producer", err)
	}

	return nil
}

// Send publishes data, picking the partition from the first 4 bytes of the key.
func (k *SyncKafkaProducer) Send(key []byte, data []byte) error {
	var partition int32

	if k.Partitions > 1 && len(key) >= 4 {
		p, err := safeconversion.Uint32ToInt32(binary.LittleEndian.Uint32(key) % uint32(k.Partitions)) //nolint:gosec // partitions is positive
		if err != nil {
			return errors.NewProcessingError("invalid partition", err)
		}

		partition = p
	}

	if _, _, err := k.Producer.SendMessage(&sarama.ProducerMessage{
		Topic:     k.Topic,
		Key:       sarama.ByteEncoder(key),
		Value:     sarama.ByteEncoder(data),
		Partition: partition,
	}); err != nil {
		return errors.NewServiceError("failed to send message to kafka topic %s", k.Topic, err)
	}

	return nil
}

// NewKafkaProducer connects a producer described by a url like kafka://host1:9092,host2:9092/topic?partitions=4
func NewKafkaProducer(kafkaURL *url.URL) (KafkaProducerI, error) {
	if kafkaURL == nil || kafkaURL.Host == "" {
		return nil, errors.NewConfigurationError("kafka url must contain the broker addresses")
	}

	topic := strings.TrimPrefix(kafkaURL.Path, "/")
	if topic == "" {
		return nil, errors.NewConfigurationError("kafka url %s has no topic", kafkaURL.String())
	}

	brokersURL := strings.Split(kafkaURL.Host, ",")

	partitions := 1
	if p := kafkaURL.Query().Get("partitions"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil || v < 1 {
			return nil, errors.NewConfigurationError("invalid partitions value %q in kafka url", p)
		}

		partitions = v
	}

	partitionsU32, err := safeconversion.IntToUint32(partitions)
	if err != nil {
		return nil, errors.NewConfigurationError("invalid partitions value", err)
	}

	partitions32, err := safeconversion.Uint32ToInt32(partitionsU32)
	if err != nil {
		return nil, errors.NewConfigurationError("invalid partitions value", err)
	}

	producer, err := ConnectProducer(brokersURL, topic, partitions32)
	if err != nil {
		return nil, errors.NewServiceError("unable to connect to kafka", err)
	}

	return producer, nil
}

func ConnectProducer(brokersURL []string, topic string, partitions int32) (*SyncKafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Partitioner = sarama.NewManualPartitioner

	conn, err := sarama.NewSyncProducer(brokersURL, config)
	if err != nil {
		return nil, err
	}

	return &SyncKafkaProducer{
		Producer:   conn,
		Partitions: partitions,
		Topic:      topic,
	}, nil
}
