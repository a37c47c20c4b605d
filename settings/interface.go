package settings

import (
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
)

type Settings struct {
	ClientName     string
	Network        string
	ChainCfgParams *chaincfg.Params
	Policy         *PolicySettings
	NetProcessing  NetProcessingSettings
	Kafka          KafkaSettings
	Tracing        TracingSettings
}

// PolicySettings holds the consensus configuration values consulted by the message layer.
type PolicySettings struct {
	ExcessiveBlockSize      int
	BlockMaxSize            int
	BlockPriorityPercentage int
	MinRelayTxFee           uint64 // satoshis per kB
	UseCashAddr             bool
}

type NetProcessingSettings struct {
	// orphan pool
	MaxOrphanTx                 int
	MaxOrphanTxSize             int
	OrphanExpiry                time.Duration
	OrphanExpiryInterval        time.Duration
	BlockReconstructionExtraTxn int

	// inventory
	InvBroadcastDelay    time.Duration
	MaxInvBroadcastDelay time.Duration
	InvFlushThreshold    int
	InvQueueCapacity     int
	KnownInvRetention    time.Duration
	InvRateLimit         float64
	InvRateBurst         int

	// misbehavior
	BanScore     int
	BanTime      time.Duration
	StallPenalty int

	// sync
	StallTimeout             time.Duration
	HeadersTimeout           time.Duration
	MaxBlocksInFlightPerPeer int

	PingInterval          time.Duration
	SendInterval          time.Duration
	ValidationEventBuffer int
	RecentRejectsTTL      time.Duration
}

type KafkaSettings struct {
	RejectedTxURL           string
	RejectedTxBatchSize     int
	RejectedTxBatchDuration time.Duration
}

type TracingSettings struct {
	Enabled    bool
	Endpoint   string
	SampleRate float64
}
