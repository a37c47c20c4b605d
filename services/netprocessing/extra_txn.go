package netprocessing

import (
	"sync"

	"github.com/bsv-blockchain/go-wire"
)

// extraTxnRing keeps the most recent orphan and conflicted transactions so compact block reconstruction
// can find transactions that never made it into the mempool.
type extraTxnRing struct {
	mu   sync.Mutex
	txs  []*wire.MsgTx
	next int
	full bool
}

func newExtraTxnRing(size int) *extraTxnRing {
	if size < 0 {
		size = 0
	}

	return &extraTxnRing{
		txs: make([]*wire.MsgTx, size),
	}
}

func (r *extraTxnRing) Add(tx *wire.MsgTx) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.txs) == 0 {
		return
	}

	r.txs[r.next] = tx
	r.next++

	if r.next == len(r.txs) {
		r.next = 0
		r.full = true
	}
}

// Items returns the retained transactions, oldest first.
func (r *extraTxnRing) Items() []*wire.MsgTx {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]*wire.MsgTx(nil), r.txs[:r.next]...)
	}

	items := make([]*wire.MsgTx, 0, len(r.txs))
	items = append(items, r.txs[r.next:]...)
	items = append(items, r.txs[:r.next]...)

	return items
}
