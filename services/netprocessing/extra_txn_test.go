package netprocessing

import (
	"testing"

	"github.com/bsv-blockchain/go-wire"
	"github.com/stretchr/testify/assert"
)

func TestExtraTxnRing(t *testing.T) {
	txs := make([]*wire.MsgTx, 5)
	for i := range txs {
		txs[i] = NewSpend(int64(i+1), wire.OutPoint{Hash: hashOf("extra"), Index: uint32(i)}) //nolint:gosec // small index
	}

	t.Run("keeps insertion order", func(t *testing.T) {
		ring := newExtraTxnRing(3)
		assert.Empty(t, ring.Items())

		ring.Add(txs[0])
		ring.Add(txs[1])

		assert.Equal(t, []*wire.MsgTx{txs[0], txs[1]}, ring.Items())
	})

	t.Run("wraps around dropping the oldest", func(t *testing.T) {
		ring := newExtraTxnRing(3)

		for _, tx := range txs {
			ring.Add(tx)
		}

		assert.Equal(t, []*wire.MsgTx{txs[2], txs[3], txs[4]}, ring.Items())
	})

	t.Run("exactly full", func(t *testing.T) {
		ring := newExtraTxnRing(3)

		for _, tx := range txs[:3] {
			ring.Add(tx)
		}

		assert.Equal(t, txs[:3], ring.Items())
	})

	t.Run("zero size keeps nothing", func(t *testing.T) {
		ring := newExtraTxnRing(0)
		ring.Add(txs[0])

		assert.Empty(t, ring.Items())

		assert.Empty(t, newExtraTxnRing(-1).Items())
	})
}
