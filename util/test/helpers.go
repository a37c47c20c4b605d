package test

import (
	"testing"
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/bsv-blockchain/peerlogic/settings"
)

// CreateBaseTestSettings returns settings for regtest with timings short enough for unit tests.
func CreateBaseTestSettings(t *testing.T) *settings.Settings {
	t.Helper()

	tSettings := settings.NewSettings()
	tSettings.Network = "regtest"
	tSettings.ChainCfgParams = &chaincfg.RegressionNetParams

	np := &tSettings.NetProcessing
	np.MaxOrphanTx = 100
	np.OrphanExpiry = 1200 * time.Second
	np.OrphanExpiryInterval = 300 * time.Second
	np.InvBroadcastDelay = 0
	np.InvFlushThreshold = 1000
	np.InvQueueCapacity = 50_000
	np.BanScore = 100
	np.BanTime = 24 * time.Hour
	np.StallPenalty = 20
	np.StallTimeout = 60 * time.Second
	np.HeadersTimeout = 120 * time.Second
	np.MaxBlocksInFlightPerPeer = 16
	np.InvRateLimit = 1_000_000
	np.InvRateBurst = 1_000_000
	np.ValidationEventBuffer = 10_000
	np.MaxOrphanTxSize = 100_000
	np.BlockReconstructionExtraTxn = 100
	np.KnownInvRetention = 10 * time.Minute
	np.PingInterval = 2 * time.Minute
	np.RecentRejectsTTL = 10 * time.Minute

	tSettings.Policy.MinRelayTxFee = 250

	tSettings.Kafka.RejectedTxURL = ""
	tSettings.Tracing.Enabled = false

	return tSettings
}
