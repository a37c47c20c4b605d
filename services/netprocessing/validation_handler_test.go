package netprocessing

import (
	"context"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/bsv-blockchain/peerlogic/errors"
	"github.com/bsv-blockchain/peerlogic/settings"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleBlockChecked(t *testing.T) {
	t.Run("invalid block scores its source", func(t *testing.T) {
		ts := newTestServer(t)
		ts.handshake(t, 1, 0)

		remote := NewMemoryChain()
		block, err := remote.MineBlock(t.Context())
		require.NoError(t, err)

		ts.blockSource.Set(block.BlockHash(), 1)

		err = ts.HandleEvent(t.Context(), ValidationEvent{
			Type:       EventBlockChecked,
			Block:      block,
			Err:        errors.NewBlockInvalidError("bad-txns"),
			RejectCode: wire.RejectInvalid,
			DoS:        100,
		})
		require.NoError(t, err)

		stats, _ := ts.GetNodeStateStats(1)
		assert.Equal(t, 100, stats.MisbehaviorScore)

		rejects := sentOfType[*wire.MsgReject](ts.transport, 1)
		require.Len(t, rejects, 1)
		assert.Equal(t, wire.CmdBlock, rejects[0].Cmd)

		_, tracked := ts.blockSource.Get(block.BlockHash())
		assert.False(t, tracked)
	})

	t.Run("valid block only forgets its source", func(t *testing.T) {
		ts := newTestServer(t)
		ts.handshake(t, 1, 0)

		block, err := NewMemoryChain().MineBlock(t.Context())
		require.NoError(t, err)

		ts.blockSource.Set(block.BlockHash(), 1)
		require.NoError(t, ts.HandleEvent(t.Context(), ValidationEvent{Type: EventBlockChecked, Block: block}))

		stats, _ := ts.GetNodeStateStats(1)
		assert.Equal(t, 0, stats.MisbehaviorScore)

		_, tracked := ts.blockSource.Get(block.BlockHash())
		assert.False(t, tracked)
	})

	t.Run("source already gone", func(t *testing.T) {
		ts := newTestServer(t)

		block, err := NewMemoryChain().MineBlock(t.Context())
		require.NoError(t, err)

		ts.blockSource.Set(block.BlockHash(), 1)

		err = ts.HandleEvent(t.Context(), ValidationEvent{
			Type:  EventBlockChecked,
			Block: block,
			Err:   errors.NewBlockInvalidError("bad"),
			DoS:   100,
		})
		require.NoError(t, err)
		assert.Empty(t, ts.transport.Sent(1))
	})

	t.Run("invalid block from the memory chain", func(t *testing.T) {
		ts := newTestServer(t)
		ts.handshake(t, 1, 0)

		remote := NewMemoryChain()
		block, err := remote.MineBlock(t.Context())
		require.NoError(t, err)

		// corrupt the merkle root, the header check still passes
		bad := *block
		bad.Header.MerkleRoot = hashOf("wrong")
		badHash := bad.BlockHash()

		ts.blockSource.Set(badHash, 1)
		require.NoError(t, ts.chain.SubmitBlock(t.Context(), &bad))

		ts.drainEvents(t.Context())

		stats, _ := ts.GetNodeStateStats(1)
		assert.Equal(t, 100, stats.MisbehaviorScore)
		assert.False(t, ts.chain.HaveBlock(&badHash))
	})
}

func TestHandleBlockConnected(t *testing.T) {
	t.Run("orphans waiting on block transactions are accepted", func(t *testing.T) {
		ts := newTestServer(t)
		ts.handshake(t, 1, 0)

		parent := fundedSpend(t, ts.chain, 1000)
		ts.drainEvents(t.Context())

		child := NewSpend(parent.TxOut[0].Value-1000, wire.OutPoint{Hash: parent.TxHash(), Index: 0})
		require.NoError(t, ts.Process(t.Context(), 1, child).Err)
		require.Equal(t, 1, ts.OrphanCount())

		require.True(t, ts.chain.SubmitTransaction(t.Context(), parent).Accepted)

		_, err := ts.chain.MineBlock(t.Context(), parent)
		require.NoError(t, err)

		ts.drainEvents(t.Context())

		childHash := child.TxHash()
		assert.Equal(t, 0, ts.OrphanCount())
		assert.True(t, ts.chain.HaveTransaction(&childHash))
		assert.Equal(t, int32(2), ts.syncManager.LocalHeight())
	})

	t.Run("orphans included in the block are erased", func(t *testing.T) {
		ts := newTestServer(t)

		tx := orphanSpending(1, hashOf("p"))
		require.NoError(t, ts.orphans.Add(tx, []chainhash.Hash{hashOf("p")}, 1))

		block := &wire.MsgBlock{Transactions: []*wire.MsgTx{tx}}
		require.NoError(t, ts.HandleEvent(t.Context(), ValidationEvent{Type: EventBlockConnected, Block: block, Height: 1}))

		assert.Equal(t, 0, ts.OrphanCount())
	})

	t.Run("displaced transactions are kept and relayed", func(t *testing.T) {
		ts := newTestServer(t)
		ts.handshake(t, 1, 0)

		tx := fundedSpend(t, ts.chain, 1000)
		ts.drainEvents(t.Context())
		require.True(t, ts.chain.SubmitTransaction(t.Context(), tx).Accepted)

		block := &wire.MsgBlock{Transactions: []*wire.MsgTx{orphanSpending(5, hashOf("x"))}}
		require.NoError(t, ts.HandleEvent(t.Context(), ValidationEvent{
			Type:      EventBlockConnected,
			Block:     block,
			Height:    1,
			Displaced: []*wire.MsgTx{tx},
		}))

		assert.Contains(t, ts.ExtraTransactions(), tx)

		ts.Step(t.Context())
		assert.True(t, invContains(ts.transport, 1, wire.InvTypeTx, tx.TxHash()))
	})

	t.Run("missing block", func(t *testing.T) {
		ts := newTestServer(t)

		err := ts.HandleEvent(t.Context(), ValidationEvent{Type: EventBlockConnected})
		assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	})
}

func TestHandleTipUpdates(t *testing.T) {
	header := &wire.BlockHeader{Version: 1, PrevBlock: hashOf("prev"), Timestamp: time.Unix(1_700_000_000, 0)}
	hash := header.BlockHash()

	t.Run("new tip is announced", func(t *testing.T) {
		ts := newTestServer(t)
		ts.handshake(t, 1, 0)
		ts.handshake(t, 2, 0)

		require.NoError(t, ts.Process(t.Context(), 2, wire.NewMsgSendHeaders()).Err)

		require.NoError(t, ts.HandleEvent(t.Context(), ValidationEvent{Type: EventUpdatedBlockTip, Header: header, Height: 7}))
		assert.Equal(t, int32(7), ts.syncManager.LocalHeight())

		ts.Step(t.Context())

		assert.True(t, invContains(ts.transport, 1, wire.InvTypeBlock, hash))

		headers := sentOfType[*wire.MsgHeaders](ts.transport, 2)
		require.Len(t, headers, 1)
		assert.Equal(t, hash, headers[0].Headers[0].BlockHash())
		assert.False(t, invContains(ts.transport, 2, wire.InvTypeBlock, hash))
	})

	t.Run("nothing is announced during initial download", func(t *testing.T) {
		ts := newTestServer(t)
		ts.handshake(t, 1, 0)

		require.NoError(t, ts.HandleEvent(t.Context(), ValidationEvent{
			Type:            EventUpdatedBlockTip,
			Header:          header,
			Height:          7,
			InitialDownload: true,
		}))

		ts.Step(t.Context())
		assert.False(t, invContains(ts.transport, 1, wire.InvTypeBlock, hash))
	})

	t.Run("pow valid blocks go to header peers only", func(t *testing.T) {
		ts := newTestServer(t)
		ts.handshake(t, 1, 0)
		ts.handshake(t, 2, 0)

		require.NoError(t, ts.Process(t.Context(), 2, wire.NewMsgSendHeaders()).Err)

		block := &wire.MsgBlock{Header: *header}
		require.NoError(t, ts.HandleEvent(t.Context(), ValidationEvent{Type: EventNewPoWValidBlock, Block: block}))

		ts.Step(t.Context())

		assert.False(t, invContains(ts.transport, 1, wire.InvTypeBlock, hash))
		assert.Len(t, sentOfType[*wire.MsgHeaders](ts.transport, 2), 1)
	})
}

func TestHandleEventCountsByType(t *testing.T) {
	ts := newTestServer(t)

	counter := prometheusNetProcessingValidationEvents.WithLabelValues(EventUpdatedBlockTip.String())
	before := testutil.ToFloat64(counter)

	header := &wire.BlockHeader{Version: 1, PrevBlock: hashOf("prev"), Timestamp: time.Unix(1_700_000_000, 0)}
	require.NoError(t, ts.HandleEvent(t.Context(), ValidationEvent{Type: EventUpdatedBlockTip, Header: header, Height: 3}))
	require.NoError(t, ts.HandleEvent(t.Context(), ValidationEvent{Type: EventUpdatedBlockTip, Header: header, Height: 4}))

	assert.InDelta(t, before+2, testutil.ToFloat64(counter), 0)
}

func TestHandleUnknownEvent(t *testing.T) {
	ts := newTestServer(t)

	err := ts.HandleEvent(t.Context(), ValidationEvent{Type: ValidationEventType(99)})
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	assert.Equal(t, "Unknown", ValidationEventType(99).String())
}

func TestNotify(t *testing.T) {
	t.Run("full queue honours the context", func(t *testing.T) {
		ts := newTestServer(t, func(s *settings.Settings) { s.NetProcessing.ValidationEventBuffer = 1 })

		require.NoError(t, ts.Notify(t.Context(), ValidationEvent{Type: EventUpdatedBlockTip, Height: 1}))

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		err := ts.Notify(ctx, ValidationEvent{Type: EventUpdatedBlockTip, Height: 2})
		assert.True(t, errors.Is(err, errors.ErrContextCanceled))
	})

	t.Run("events are handled in order by the running service", func(t *testing.T) {
		ts := newTestServer(t)

		ctx, cancel := context.WithCancel(t.Context())

		done := make(chan error, 1)
		go func() {
			done <- ts.Start(ctx)
		}()

		require.Eventually(t, func() bool {
			status, _, _ := ts.Health(ctx)
			return status == 200
		}, time.Second, 5*time.Millisecond)

		for h := int32(1); h <= 50; h++ {
			require.NoError(t, ts.Notify(ctx, ValidationEvent{Type: EventUpdatedBlockTip, Height: h, InitialDownload: true}))
		}

		require.Eventually(t, func() bool {
			return ts.syncManager.LocalHeight() == 50
		}, time.Second, 5*time.Millisecond)

		cancel()
		require.NoError(t, <-done)

		status, _, err := ts.Health(t.Context())
		assert.Equal(t, 503, status)
		assert.True(t, errors.Is(err, errors.ErrServiceNotStarted))

		require.NoError(t, ts.Stop(t.Context()))
	})
}
