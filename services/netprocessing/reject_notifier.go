package netprocessing

import (
	"net/url"
	"sync"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/bsv-blockchain/peerlogic/errors"
	"github.com/bsv-blockchain/peerlogic/settings"
	"github.com/bsv-blockchain/peerlogic/ulogger"
	"github.com/bsv-blockchain/peerlogic/util/kafka"
	jsoniter "github.com/json-iterator/go"
	"github.com/ordishs/go-utils/batcher"
)

type rejectedTxMessage struct {
	TxID   string `json:"txid"`
	Peer   int64  `json:"peer"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type rejectRecord struct {
	hash chainhash.Hash
	data []byte
}

// RejectNotifier publishes rejected transactions to a kafka topic. Notifications are collected into
// batches of kafka_rejectedTxBatchSize, or whatever arrived within kafka_rejectedTxBatchDuration, and
// published in the order they were made. A nil *RejectNotifier is valid and publishes nothing.
type RejectNotifier struct {
	logger   ulogger.Logger
	producer kafka.KafkaProducerI
	batcher  *batcher.Batcher[rejectRecord]
	pending  sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewRejectNotifier connects to the topic configured in kafka_rejectedTxURL. It returns nil when no url is
// configured.
func NewRejectNotifier(logger ulogger.Logger, tSettings *settings.Settings) (*RejectNotifier, error) {
	if tSettings.Kafka.RejectedTxURL == "" {
		return nil, nil
	}

	kafkaURL, err := url.Parse(tSettings.Kafka.RejectedTxURL)
	if err != nil {
		return nil, errors.NewConfigurationError("invalid kafka_rejectedTxURL %q", tSettings.Kafka.RejectedTxURL, err)
	}

	producer, err := kafka.NewKafkaProducer(kafkaURL)
	if err != nil {
		return nil, err
	}

	logger.Infof("[RejectNotifier] publishing rejected transactions to %s", kafkaURL.Redacted())

	return NewRejectNotifierWithProducer(logger, tSettings, producer), nil
}

func NewRejectNotifierWithProducer(logger ulogger.Logger, tSettings *settings.Settings, producer kafka.KafkaProducerI) *RejectNotifier {
	initPrometheusMetrics()

	n := &RejectNotifier{
		logger:   logger,
		producer: producer,
	}

	n.batcher = batcher.New[rejectRecord](tSettings.Kafka.RejectedTxBatchSize, tSettings.Kafka.RejectedTxBatchDuration, n.sendBatch, false)

	return n
}

// Notify queues the rejection for publishing. Notifications made after Close are dropped.
func (n *RejectNotifier) Notify(hash chainhash.Hash, peer PeerID, code wire.RejectCode, reason string) {
	if n == nil {
		return
	}

	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	data, err := json.Marshal(rejectedTxMessage{
		TxID:   hash.String(),
		Peer:   int64(peer),
		Code:   code.String(),
		Reason: reason,
	})
	if err != nil {
		n.logger.Errorf("[RejectNotifier] failed to encode rejection of %s: %v", hash, err)
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		n.logger.Debugf("[RejectNotifier] closed, dropping rejection of %s", hash)
		return
	}

	n.pending.Add(1)
	n.batcher.Put(&rejectRecord{hash: hash, data: data})
}

func (n *RejectNotifier) sendBatch(batch []*rejectRecord) {
	prometheusNetProcessingRejectBatchSize.Observe(float64(len(batch)))

	for _, record := range batch {
		if err := n.producer.Send(record.hash[:], record.data); err != nil {
			n.logger.Errorf("[RejectNotifier] failed to publish rejection of %s: %v", record.hash, err)
		}

		n.pending.Done()
	}
}

// Close waits for queued rejections to be published and closes the producer.
func (n *RejectNotifier) Close() error {
	if n == nil {
		return nil
	}

	n.mu.Lock()
	wasClosed := n.closed
	n.closed = true
	n.mu.Unlock()

	if wasClosed {
		return nil
	}

	n.pending.Wait()

	return n.producer.Close()
}
