package settings

import (
	"fmt"
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/bsv-blockchain/peerlogic/errors"
)

const (
	// LegacyMaxBlockSize is the pre-fork 1MB block size, excessive block size must be above it
	LegacyMaxBlockSize = 1_000_000

	DefaultExcessiveBlockSize = 128_000_000

	// MaxInvBroadcastDelay is the hard upper bound for the per-peer inventory broadcast jitter
	MaxInvBroadcastDelay = 50_000 * time.Millisecond

	maxGeneratedBlockSizeError = "Max generated block size (blockmaxsize) cannot exceed the excessive block size (excessiveblocksize)"
)

func NewSettings() *Settings {
	network := getString("network", "mainnet")

	params, err := GetChainParams(network)
	if err != nil {
		panic(err)
	}

	s := &Settings{
		ClientName:     getString("clientName", "peerlogic"),
		Network:        network,
		ChainCfgParams: params,
		Policy: &PolicySettings{
			ExcessiveBlockSize:      getInt("excessiveblocksize", DefaultExcessiveBlockSize),
			BlockMaxSize:            getInt("blockmaxsize", 0), // 0 means same as excessive block size
			BlockPriorityPercentage: getInt("blockprioritypercentage", 5),
			MinRelayTxFee:           uint64(getInt("minrelaytxfee", 250)), //nolint:gosec // defaults are positive
			UseCashAddr:             getBool("usecashaddr", false),
		},
		NetProcessing: NetProcessingSettings{
			MaxOrphanTx:                 getInt("maxorphantx", 100),
			MaxOrphanTxSize:             getInt("maxorphantxsize", 100_000),
			OrphanExpiry:                getDuration("orphanexpiry", 1200*time.Second),
			OrphanExpiryInterval:        getDuration("orphanexpiryinterval", 300*time.Second),
			BlockReconstructionExtraTxn: getInt("blockreconstructionextratxn", 100),

			InvBroadcastDelay:    getDuration("invbroadcastdelay", 150*time.Millisecond),
			MaxInvBroadcastDelay: getDuration("maxinvbroadcastdelay", MaxInvBroadcastDelay),
			InvFlushThreshold:    getInt("invflushthreshold", 1000),
			InvQueueCapacity:     getInt("invqueuecapacity", 50_000),
			KnownInvRetention:    getDuration("knowninvretention", 10*time.Minute),
			InvRateLimit:         getFloat64("invratelimit", 5000),
			InvRateBurst:         getInt("invrateburst", 50_000),

			BanScore:     getInt("banscore", 100),
			BanTime:      getDuration("bantime", 24*time.Hour),
			StallPenalty: getInt("stallpenalty", 20),

			StallTimeout:             getDuration("stalltimeout", 60*time.Second),
			HeadersTimeout:           getDuration("headerstimeout", 120*time.Second),
			MaxBlocksInFlightPerPeer: getInt("maxblocksinflightperpeer", 16),

			PingInterval:          getDuration("pinginterval", 2*time.Minute),
			SendInterval:          getDuration("sendinterval", 100*time.Millisecond),
			ValidationEventBuffer: getInt("validationeventbuffer", 1000),
			RecentRejectsTTL:      getDuration("recentrejectsttl", 10*time.Minute),
		},
		Kafka: KafkaSettings{
			RejectedTxURL:           getString("kafka_rejectedTxURL", ""),
			RejectedTxBatchSize:     getInt("kafka_rejectedTxBatchSize", 100),
			RejectedTxBatchDuration: getDuration("kafka_rejectedTxBatchDuration", 10*time.Millisecond),
		},
		Tracing: TracingSettings{
			Enabled:    getBool("tracing_enabled", false),
			Endpoint:   getString("tracing_endpoint", ""),
			SampleRate: getFloat64("tracing_sample_rate", 0.01),
		},
	}

	return s
}

// GetChainParams maps a network name to its chain parameters.
func GetChainParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, errors.NewConfigurationError("unknown network %s", network)
	}
}

// Validate checks the cross field rules that the individual setters cannot see.
func (s *Settings) Validate() error {
	if s.Policy.ExcessiveBlockSize <= LegacyMaxBlockSize {
		return errors.NewConfigurationError("excessive block size %d must be larger than the legacy limit of %d bytes", s.Policy.ExcessiveBlockSize, LegacyMaxBlockSize)
	}

	if s.Policy.BlockMaxSize > s.Policy.ExcessiveBlockSize {
		return errors.NewConfigurationError(maxGeneratedBlockSizeError)
	}

	if s.Policy.BlockPriorityPercentage < 0 || s.Policy.BlockPriorityPercentage > 100 {
		return errors.NewConfigurationError("block priority percentage %d must be between 0 and 100", s.Policy.BlockPriorityPercentage)
	}

	if s.Kafka.RejectedTxBatchSize < 1 {
		return errors.NewConfigurationError("kafka_rejectedTxBatchSize must be at least 1, got %d", s.Kafka.RejectedTxBatchSize)
	}

	if s.Kafka.RejectedTxBatchDuration <= 0 {
		return errors.NewConfigurationError("kafka_rejectedTxBatchDuration must be positive, got %s", s.Kafka.RejectedTxBatchDuration)
	}

	np := s.NetProcessing

	if np.MaxInvBroadcastDelay > MaxInvBroadcastDelay {
		return errors.NewConfigurationError("max inventory broadcast delay %s exceeds %s", np.MaxInvBroadcastDelay, MaxInvBroadcastDelay)
	}

	if np.InvBroadcastDelay < 0 || np.InvBroadcastDelay > np.MaxInvBroadcastDelay {
		return errors.NewConfigurationError("inventory broadcast delay %s must be between 0 and %s", np.InvBroadcastDelay, np.MaxInvBroadcastDelay)
	}

	if np.MaxOrphanTx < 1 {
		return errors.NewConfigurationError("maxorphantx must be at least 1, got %d", np.MaxOrphanTx)
	}

	if np.BanScore < 1 {
		return errors.NewConfigurationError("banscore must be at least 1, got %d", np.BanScore)
	}

	if np.MaxBlocksInFlightPerPeer < 1 {
		return errors.NewConfigurationError("maxblocksinflightperpeer must be at least 1, got %d", np.MaxBlocksInFlightPerPeer)
	}

	for name, d := range map[string]time.Duration{
		"orphanexpiryinterval": np.OrphanExpiryInterval,
		"sendinterval":         np.SendInterval,
		"stalltimeout":         np.StallTimeout,
		"headerstimeout":       np.HeadersTimeout,
		"pinginterval":         np.PingInterval,
	} {
		if d <= 0 {
			return errors.NewConfigurationError("%s must be positive, got %s", name, d)
		}
	}

	if np.InvQueueCapacity < np.InvFlushThreshold {
		return errors.NewConfigurationError("inventory queue capacity %d is smaller than the flush threshold %d", np.InvQueueCapacity, np.InvFlushThreshold)
	}

	return nil
}

// SetInvBroadcastDelay sets the per-peer jitter bound, rejecting values outside [0, MaxInvBroadcastDelay].
func (s *Settings) SetInvBroadcastDelay(d time.Duration) error {
	if d < 0 || d > s.NetProcessing.MaxInvBroadcastDelay {
		return errors.NewConfigurationError("inventory broadcast delay %s must be between 0 and %s", d, s.NetProcessing.MaxInvBroadcastDelay)
	}

	s.NetProcessing.InvBroadcastDelay = d

	return nil
}

// SetMaxBlockSize sets the excessive block size.
func (s *Settings) SetMaxBlockSize(size int) error {
	if size <= LegacyMaxBlockSize {
		return errors.NewConfigurationError("excessive block size %d must be larger than the legacy limit of %d bytes", size, LegacyMaxBlockSize)
	}

	if s.Policy.BlockMaxSize > size {
		return errors.NewConfigurationError(maxGeneratedBlockSizeError)
	}

	s.Policy.ExcessiveBlockSize = size

	return nil
}

func (s *Settings) SetBlockPriorityPercentage(percentage int) error {
	if percentage < 0 || percentage > 100 {
		return errors.NewConfigurationError("block priority percentage %d must be between 0 and 100", percentage)
	}

	s.Policy.BlockPriorityPercentage = percentage

	return nil
}

// GetMaxBlockSize returns the excessive block size.
func (s *Settings) GetMaxBlockSize() int {
	return s.Policy.ExcessiveBlockSize
}

// GetMaxGeneratedBlockSize returns blockmaxsize, falling back to the excessive block size when unset.
func (s *Settings) GetMaxGeneratedBlockSize() int {
	if s.Policy.BlockMaxSize == 0 {
		return s.Policy.ExcessiveBlockSize
	}

	return s.Policy.BlockMaxSize
}

// ExcessiveBlockSizeComment renders the user agent comment advertising our excessive block size, e.g. EB128.0
func (s *Settings) ExcessiveBlockSizeComment() string {
	return fmt.Sprintf("EB%.1f", float64(s.Policy.ExcessiveBlockSize)/1_000_000)
}

// UserAgentComments are appended to the user agent in our version message.
func (s *Settings) UserAgentComments() []string {
	return []string{s.ExcessiveBlockSizeComment()}
}
