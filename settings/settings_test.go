package settings

import (
	"testing"
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/bsv-blockchain/peerlogic/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// check settings object is initialised
func TestInitialiseSettings(t *testing.T) {
	tSettings := NewSettings()

	require.NotNil(t, tSettings.ChainCfgParams)
	require.NotNil(t, tSettings.Policy)

	assert.Equal(t, 100, tSettings.NetProcessing.MaxOrphanTx)
	assert.Equal(t, 1200*time.Second, tSettings.NetProcessing.OrphanExpiry)
	assert.Equal(t, 300*time.Second, tSettings.NetProcessing.OrphanExpiryInterval)
	assert.Equal(t, 100, tSettings.NetProcessing.BlockReconstructionExtraTxn)
	assert.Equal(t, MaxInvBroadcastDelay, tSettings.NetProcessing.MaxInvBroadcastDelay)

	require.NoError(t, tSettings.Validate())
}

func TestGetChainParams(t *testing.T) {
	tests := []struct {
		network string
		params  *chaincfg.Params
	}{
		{"mainnet", &chaincfg.MainNetParams},
		{"testnet", &chaincfg.TestNetParams},
		{"regtest", &chaincfg.RegressionNetParams},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			params, err := GetChainParams(tt.network)
			require.NoError(t, err)
			assert.Same(t, tt.params, params)
		})
	}

	_, err := GetChainParams("nonet")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestSetInvBroadcastDelay(t *testing.T) {
	tSettings := NewSettings()

	require.NoError(t, tSettings.SetInvBroadcastDelay(0))
	require.NoError(t, tSettings.SetInvBroadcastDelay(MaxInvBroadcastDelay))
	assert.Equal(t, MaxInvBroadcastDelay, tSettings.NetProcessing.InvBroadcastDelay)

	err := tSettings.SetInvBroadcastDelay(-time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))

	err = tSettings.SetInvBroadcastDelay(MaxInvBroadcastDelay + time.Millisecond)
	require.Error(t, err)

	// failed setters leave the previous value in place
	assert.Equal(t, MaxInvBroadcastDelay, tSettings.NetProcessing.InvBroadcastDelay)
}

func TestSetMaxBlockSize(t *testing.T) {
	t.Run("legacy limit is rejected", func(t *testing.T) {
		tSettings := NewSettings()
		require.Error(t, tSettings.SetMaxBlockSize(LegacyMaxBlockSize))
		require.NoError(t, tSettings.SetMaxBlockSize(LegacyMaxBlockSize+1))
	})

	t.Run("blockmaxsize cannot exceed excessive block size", func(t *testing.T) {
		tSettings := NewSettings()
		tSettings.Policy.BlockMaxSize = 1_500_000

		err := tSettings.SetMaxBlockSize(1_300_000)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Max generated block size (blockmaxsize) cannot exceed the excessive block size (excessiveblocksize)")
	})

	t.Run("validate catches the same", func(t *testing.T) {
		tSettings := NewSettings()
		tSettings.Policy.ExcessiveBlockSize = 1_300_000
		tSettings.Policy.BlockMaxSize = 1_500_000

		require.Error(t, tSettings.Validate())
	})
}

func TestSetBlockPriorityPercentage(t *testing.T) {
	tSettings := NewSettings()

	require.NoError(t, tSettings.SetBlockPriorityPercentage(0))
	require.NoError(t, tSettings.SetBlockPriorityPercentage(100))
	require.Error(t, tSettings.SetBlockPriorityPercentage(101))
	require.Error(t, tSettings.SetBlockPriorityPercentage(-1))
	assert.Equal(t, 100, tSettings.Policy.BlockPriorityPercentage)
}

func TestGetMaxGeneratedBlockSize(t *testing.T) {
	tSettings := NewSettings()

	tSettings.Policy.BlockMaxSize = 0
	assert.Equal(t, tSettings.Policy.ExcessiveBlockSize, tSettings.GetMaxGeneratedBlockSize())

	tSettings.Policy.BlockMaxSize = 2_000_000
	assert.Equal(t, 2_000_000, tSettings.GetMaxGeneratedBlockSize())
}

func TestExcessiveBlockSizeComment(t *testing.T) {
	tSettings := NewSettings()

	require.NoError(t, tSettings.SetMaxBlockSize(DefaultExcessiveBlockSize+6_000_000))
	assert.Equal(t, "EB134.0", tSettings.ExcessiveBlockSizeComment())
	assert.Equal(t, []string{"EB134.0"}, tSettings.UserAgentComments())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(s *Settings)
	}{
		{"excessive block size at legacy limit", func(s *Settings) { s.Policy.ExcessiveBlockSize = LegacyMaxBlockSize }},
		{"priority out of range", func(s *Settings) { s.Policy.BlockPriorityPercentage = 200 }},
		{"max inv delay too large", func(s *Settings) { s.NetProcessing.MaxInvBroadcastDelay = MaxInvBroadcastDelay + time.Second }},
		{"inv delay negative", func(s *Settings) { s.NetProcessing.InvBroadcastDelay = -time.Second }},
		{"no orphans", func(s *Settings) { s.NetProcessing.MaxOrphanTx = 0 }},
		{"zero ban score", func(s *Settings) { s.NetProcessing.BanScore = 0 }},
		{"zero request window", func(s *Settings) { s.NetProcessing.MaxBlocksInFlightPerPeer = 0 }},
		{"queue smaller than threshold", func(s *Settings) { s.NetProcessing.InvQueueCapacity = s.NetProcessing.InvFlushThreshold - 1 }},
		{"zero orphan expiry interval", func(s *Settings) { s.NetProcessing.OrphanExpiryInterval = 0 }},
		{"zero send interval", func(s *Settings) { s.NetProcessing.SendInterval = 0 }},
		{"negative stall timeout", func(s *Settings) { s.NetProcessing.StallTimeout = -time.Second }},
		{"zero headers timeout", func(s *Settings) { s.NetProcessing.HeadersTimeout = 0 }},
		{"zero ping interval", func(s *Settings) { s.NetProcessing.PingInterval = 0 }},
		{"zero reject batch size", func(s *Settings) { s.Kafka.RejectedTxBatchSize = 0 }},
		{"zero reject batch duration", func(s *Settings) { s.Kafka.RejectedTxBatchDuration = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tSettings := NewSettings()
			tt.modify(tSettings)

			err := tSettings.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfiguration))
		})
	}
}
