package netprocessing

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/bsv-blockchain/peerlogic/errors"
	"github.com/bsv-blockchain/peerlogic/util"
)

const (
	// regtestBits is the easiest possible target, the memory chain does not check proof of work
	regtestBits = 0x207fffff

	genesisTimestamp = 1231006505

	blockSubsidy = 50 * 100_000_000

	maxFutureBlockTime = 2 * time.Hour

	// maxLocatorDepth caps the number of hashes in a block locator
	maxLocatorDepth = 64
)

var opTrue = []byte{0x51}

type chainEntry struct {
	header wire.BlockHeader
	height int32
	block  *wire.MsgBlock // nil until the block data is stored
}

type mempoolEntry struct {
	tx   *wire.MsgTx
	fee  uint64
	size int
}

// MemoryChain is a ValidationEngine that keeps a single chain in memory. It accepts any header that
// connects and any block whose merkle root matches, and extends its tip with the first valid child it
// sees. It does not reorganise. Transactions are checked against the utxo set and the mempool only,
// scripts are not run. Used by the simulator and in tests.
type MemoryChain struct {
	mu sync.RWMutex

	notifier Notifier

	entries  map[chainhash.Hash]*chainEntry
	children map[chainhash.Hash][]chainhash.Hash // stored blocks by parent
	active   []chainhash.Hash                    // active chain by height

	txIndex       map[chainhash.Hash]*wire.MsgTx
	utxos         map[wire.OutPoint]int64
	mempool       map[chainhash.Hash]*mempoolEntry
	mempoolSpends map[wire.OutPoint]chainhash.Hash

	invalidBlocks map[chainhash.Hash]struct{}
	invalidTxs    map[chainhash.Hash]struct{}

	now func() time.Time
}

// NewMemoryChain creates a chain holding only the deterministic genesis block. Two memory chains always
// share their genesis.
func NewMemoryChain() *MemoryChain {
	c := &MemoryChain{
		entries:       make(map[chainhash.Hash]*chainEntry),
		children:      make(map[chainhash.Hash][]chainhash.Hash),
		txIndex:       make(map[chainhash.Hash]*wire.MsgTx),
		utxos:         make(map[wire.OutPoint]int64),
		mempool:       make(map[chainhash.Hash]*mempoolEntry),
		mempoolSpends: make(map[wire.OutPoint]chainhash.Hash),
		invalidBlocks: make(map[chainhash.Hash]struct{}),
		invalidTxs:    make(map[chainhash.Hash]struct{}),
		now:           time.Now,
	}

	genesis := newMemoryBlock(chainhash.Hash{}, 0, time.Unix(genesisTimestamp, 0), nil)
	hash := genesis.BlockHash()

	c.entries[hash] = &chainEntry{header: genesis.Header, height: 0, block: genesis}
	c.active = append(c.active, hash)
	c.applyBlockLocked(genesis)

	return c
}

// SetNotifier sets where validation events go. Without a notifier events are dropped.
func (c *MemoryChain) SetNotifier(notifier Notifier) {
	c.mu.Lock()
	c.notifier = notifier
	c.mu.Unlock()
}

// newMemoryBlock builds a block on top of prev with a coinbase paying the subsidy plus fees to OP_TRUE.
func newMemoryBlock(prev chainhash.Hash, height int32, timestamp time.Time, txs []*wire.MsgTx, fees ...uint64) *wire.MsgBlock {
	var total int64 = blockSubsidy

	for _, fee := range fees {
		total += int64(fee) //nolint:gosec // fees of a memory chain fit
	}

	coinbaseScript := make([]byte, 5)
	coinbaseScript[0] = 4
	binary.LittleEndian.PutUint32(coinbaseScript[1:], uint32(height)) //nolint:gosec // heights are positive

	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
		SignatureScript:  coinbaseScript,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	coinbase.AddTxOut(&wire.TxOut{Value: total, PkScript: opTrue})

	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   1,
			PrevBlock: prev,
			Timestamp: timestamp,
			Bits:      regtestBits,
		},
	}

	_ = block.AddTransaction(coinbase)

	for _, tx := range txs {
		_ = block.AddTransaction(tx)
	}

	block.Header.MerkleRoot = merkleRoot(block)

	return block
}

func merkleRoot(block *wire.MsgBlock) chainhash.Hash {
	hashes := make([]chainhash.Hash, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		hashes = append(hashes, tx.TxHash())
	}

	return util.BuildMerkleRoot(hashes)
}

func isCoinbase(tx *wire.MsgTx) bool {
	return len(tx.TxIn) == 1 && tx.TxIn[0].PreviousOutPoint.Index == wire.MaxPrevOutIndex &&
		tx.TxIn[0].PreviousOutPoint.Hash == chainhash.Hash{}
}

func (c *MemoryChain) BestHeight() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return int32(len(c.active) - 1) //nolint:gosec // chain length fits
}

// BestHash returns the hash of the active chain tip.
func (c *MemoryChain) BestHash() chainhash.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.active[len(c.active)-1]
}

// BlockLocator returns active chain hashes from the tip back to genesis, ten one apart and then with
// doubling steps.
func (c *MemoryChain) BlockLocator() []*chainhash.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()

	locator := make([]*chainhash.Hash, 0, maxLocatorDepth)
	step := 1

	for height := len(c.active) - 1; height > 0 && len(locator) < maxLocatorDepth-1; height -= step {
		hash := c.active[height]
		locator = append(locator, &hash)

		if len(locator) >= 10 {
			step *= 2
		}
	}

	genesis := c.active[0]

	return append(locator, &genesis)
}

func (c *MemoryChain) HaveBlock(hash *chainhash.Hash) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[*hash]

	return ok && entry.block != nil
}

func (c *MemoryChain) HaveTransaction(hash *chainhash.Hash) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.mempool[*hash]; ok {
		return true
	}

	_, ok := c.txIndex[*hash]

	return ok
}

func (c *MemoryChain) GetBlock(_ context.Context, hash *chainhash.Hash) (*wire.MsgBlock, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[*hash]
	if !ok || entry.block == nil {
		return nil, errors.NewBlockNotFoundError("block %s not found", hash)
	}

	return entry.block, nil
}

// GetTransaction returns a mempool transaction. Confirmed transactions are not served.
func (c *MemoryChain) GetTransaction(_ context.Context, hash *chainhash.Hash) (*wire.MsgTx, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.mempool[*hash]
	if !ok {
		return nil, errors.NewTxNotFoundError("transaction %s not in mempool", hash)
	}

	return entry.tx, nil
}

// LocateHeaders returns up to maxHeaders active chain headers following the first locator hash on the
// active chain, stopping after hashStop.
func (c *MemoryChain) LocateHeaders(_ context.Context, locator []*chainhash.Hash, hashStop *chainhash.Hash, maxHeaders int) ([]*wire.BlockHeader, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	start := 0

	for _, hash := range locator {
		entry, ok := c.entries[*hash]
		if ok && c.onActiveLocked(*hash, entry.height) {
			start = int(entry.height) + 1
			break
		}
	}

	headers := make([]*wire.BlockHeader, 0, min(maxHeaders, max(len(c.active)-start, 0)))

	for height := start; height < len(c.active) && len(headers) < maxHeaders; height++ {
		hash := c.active[height]
		header := c.entries[hash].header
		headers = append(headers, &header)

		if hashStop != nil && hash == *hashStop {
			break
		}
	}

	return headers, nil
}

func (c *MemoryChain) onActiveLocked(hash chainhash.Hash, height int32) bool {
	return int(height) < len(c.active) && c.active[height] == hash
}

// ProcessBlockHeaders stores a continuous run of headers.
func (c *MemoryChain) ProcessBlockHeaders(_ context.Context, headers []*wire.BlockHeader) ([]HeaderInfo, error) {
	if len(headers) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	parent, ok := c.entries[headers[0].PrevBlock]
	if !ok {
		return nil, errors.NewBlockParentUnknownError("header %s does not connect", headers[0].BlockHash())
	}

	infos := make([]HeaderInfo, 0, len(headers))

	for _, header := range headers {
		hash := header.BlockHash()

		if err := c.checkHeaderLocked(header, hash); err != nil {
			return infos, err
		}

		entry, known := c.entries[hash]
		if !known {
			if header.PrevBlock != parent.header.BlockHash() {
				return infos, errors.NewBlockInvalidError("header %s does not follow %s", hash, parent.header.BlockHash())
			}

			entry = &chainEntry{header: *header, height: parent.height + 1}
			c.entries[hash] = entry
		}

		infos = append(infos, HeaderInfo{Hash: hash, Height: entry.height, HaveData: entry.block != nil})
		parent = entry
	}

	return infos, nil
}

func (c *MemoryChain) CheckBlockHeader(header *wire.BlockHeader) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.checkHeaderLocked(header, header.BlockHash())
}

func (c *MemoryChain) checkHeaderLocked(header *wire.BlockHeader, hash chainhash.Hash) error {
	if _, invalid := c.invalidBlocks[hash]; invalid {
		return errors.NewBlockInvalidError("block %s is marked invalid", hash)
	}

	if header.Version < 1 {
		return errors.NewBlockInvalidError("block %s has version %d", hash, header.Version)
	}

	if header.Timestamp.After(c.now().Add(maxFutureBlockTime)) {
		return errors.NewBlockInvalidError("block %s timestamp too far in the future", hash)
	}

	return nil
}

// SubmitBlock stores the block and connects it, and any stored descendants, when it extends the tip.
// Structural failures are reported through a BlockChecked event, as a full node only finds them during
// connection.
func (c *MemoryChain) SubmitBlock(ctx context.Context, block *wire.MsgBlock) error {
	hash := block.BlockHash()

	c.mu.Lock()

	if entry, ok := c.entries[hash]; ok && entry.block != nil {
		c.mu.Unlock()
		return nil
	}

	parent, ok := c.entries[block.Header.PrevBlock]
	if !ok {
		c.mu.Unlock()
		return errors.NewBlockParentUnknownError("block %s parent %s unknown", hash, block.Header.PrevBlock)
	}

	if err := c.checkHeaderLocked(&block.Header, hash); err != nil {
		c.mu.Unlock()
		return err
	}

	var events []ValidationEvent

	if err := c.checkBlockLocked(block, hash); err != nil {
		c.invalidBlocks[hash] = struct{}{}
		events = append(events, ValidationEvent{Type: EventBlockChecked, Block: block, Err: err, RejectCode: wire.RejectInvalid, DoS: 100})
		notifier := c.notifier
		c.mu.Unlock()

		return c.emit(ctx, notifier, events)
	}

	entry, ok := c.entries[hash]
	if !ok {
		entry = &chainEntry{header: block.Header, height: parent.height + 1}
		c.entries[hash] = entry
	}

	entry.block = block
	c.children[block.Header.PrevBlock] = append(c.children[block.Header.PrevBlock], hash)

	events = append(events, ValidationEvent{Type: EventNewPoWValidBlock, Block: block})
	events = append(events, c.connectLocked()...)

	notifier := c.notifier
	c.mu.Unlock()

	return c.emit(ctx, notifier, events)
}

func (c *MemoryChain) checkBlockLocked(block *wire.MsgBlock, hash chainhash.Hash) error {
	if len(block.Transactions) == 0 || !isCoinbase(block.Transactions[0]) {
		return errors.NewBlockInvalidError("block %s has no coinbase", hash)
	}

	for _, tx := range block.Transactions[1:] {
		if isCoinbase(tx) {
			return errors.NewBlockInvalidError("block %s has more than one coinbase", hash)
		}

		txHash := tx.TxHash()
		if _, invalid := c.invalidTxs[txHash]; invalid {
			return errors.NewBlockInvalidError("block %s contains invalid transaction %s", hash, txHash)
		}
	}

	if root := merkleRoot(block); root != block.Header.MerkleRoot {
		return errors.NewBlockInvalidError("block %s merkle root mismatch", hash)
	}

	return nil
}

// connectLocked extends the active chain with stored children of the tip for as long as there are any.
func (c *MemoryChain) connectLocked() []ValidationEvent {
	var (
		events    []ValidationEvent
		connected bool
	)

	for {
		tip := c.active[len(c.active)-1]

		next, ok := c.firstChildLocked(tip)
		if !ok {
			break
		}

		entry := c.entries[next]
		c.active = append(c.active, next)
		c.applyBlockLocked(entry.block)

		connected = true

		events = append(events,
			ValidationEvent{Type: EventBlockChecked, Block: entry.block},
			ValidationEvent{Type: EventBlockConnected, Block: entry.block, Height: entry.height},
		)
	}

	if connected {
		tip := c.entries[c.active[len(c.active)-1]]
		header := tip.header

		events = append(events, ValidationEvent{Type: EventUpdatedBlockTip, Header: &header, Height: tip.height})
	}

	return events
}

func (c *MemoryChain) firstChildLocked(parent chainhash.Hash) (chainhash.Hash, bool) {
	for _, child := range c.children[parent] {
		if _, invalid := c.invalidBlocks[child]; !invalid {
			return child, true
		}
	}

	return chainhash.Hash{}, false
}

// applyBlockLocked updates the utxo set and the mempool for a newly connected block.
func (c *MemoryChain) applyBlockLocked(block *wire.MsgBlock) {
	for _, tx := range block.Transactions {
		hash := tx.TxHash()

		if !isCoinbase(tx) {
			for _, in := range tx.TxIn {
				delete(c.utxos, in.PreviousOutPoint)

				if spender, ok := c.mempoolSpends[in.PreviousOutPoint]; ok && spender != hash {
					c.removeFromMempoolLocked(spender)
				}
			}
		}

		c.removeFromMempoolLocked(hash)

		for i, out := range tx.TxOut {
			c.utxos[wire.OutPoint{Hash: hash, Index: uint32(i)}] = out.Value //nolint:gosec // output count fits
		}

		c.txIndex[hash] = tx
	}
}

func (c *MemoryChain) removeFromMempoolLocked(hash chainhash.Hash) {
	entry, ok := c.mempool[hash]
	if !ok {
		return
	}

	for _, in := range entry.tx.TxIn {
		if c.mempoolSpends[in.PreviousOutPoint] == hash {
			delete(c.mempoolSpends, in.PreviousOutPoint)
		}
	}

	delete(c.mempool, hash)
}

func (c *MemoryChain) emit(ctx context.Context, notifier Notifier, events []ValidationEvent) error {
	if notifier == nil {
		return nil
	}

	for _, event := range events {
		if err := notifier.Notify(ctx, event); err != nil {
			return err
		}
	}

	return nil
}

// SubmitTransaction validates a transaction against the utxo set and the mempool and adds it to the
// mempool.
func (c *MemoryChain) SubmitTransaction(_ context.Context, tx *wire.MsgTx) TxValidationResult {
	hash := tx.TxHash()
	size := tx.SerializeSize()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, invalid := c.invalidTxs[hash]; invalid {
		return TxValidationResult{RejectCode: wire.RejectInvalid, Reason: "mandatory-script-verify-flag-failed", DoS: 10, Size: size}
	}

	if _, ok := c.mempool[hash]; ok {
		return TxValidationResult{RejectCode: wire.RejectDuplicate, Reason: "txn-already-in-mempool", Size: size}
	}

	if _, ok := c.txIndex[hash]; ok {
		return TxValidationResult{RejectCode: wire.RejectDuplicate, Reason: "txn-already-known", Size: size}
	}

	if isCoinbase(tx) {
		return TxValidationResult{RejectCode: wire.RejectInvalid, Reason: "coinbase", DoS: 100, Size: size}
	}

	var (
		in      int64
		missing []chainhash.Hash
		seen    = make(map[chainhash.Hash]struct{})
	)

	for _, txIn := range tx.TxIn {
		prev := txIn.PreviousOutPoint

		if _, spent := c.mempoolSpends[prev]; spent {
			return TxValidationResult{RejectCode: wire.RejectDuplicate, Reason: "txn-mempool-conflict", Size: size}
		}

		value, ok := c.outputValueLocked(prev)
		if ok {
			in += value
			continue
		}

		if _, known := c.txIndex[prev.Hash]; known {
			return TxValidationResult{RejectCode: wire.RejectDuplicate, Reason: "bad-txns-inputs-spent", Size: size}
		}

		if _, known := c.mempool[prev.Hash]; known {
			return TxValidationResult{RejectCode: wire.RejectInvalid, Reason: "bad-txns-inputs-missing", DoS: 100, Size: size}
		}

		if _, dup := seen[prev.Hash]; !dup {
			seen[prev.Hash] = struct{}{}
			missing = append(missing, prev.Hash)
		}
	}

	if len(missing) > 0 {
		return TxValidationResult{MissingInputs: missing, Reason: "missing-inputs", Size: size}
	}

	var out int64
	for _, txOut := range tx.TxOut {
		if txOut.Value < 0 {
			return TxValidationResult{RejectCode: wire.RejectInvalid, Reason: "bad-txns-vout-negative", DoS: 100, Size: size}
		}

		out += txOut.Value
	}

	if in < out {
		return TxValidationResult{RejectCode: wire.RejectInvalid, Reason: "bad-txns-in-belowout", DoS: 100, Size: size}
	}

	c.mempool[hash] = &mempoolEntry{tx: tx, fee: uint64(in - out), size: size}

	for _, txIn := range tx.TxIn {
		c.mempoolSpends[txIn.PreviousOutPoint] = hash
	}

	return TxValidationResult{Accepted: true, Fee: uint64(in - out), Size: size}
}

func (c *MemoryChain) outputValueLocked(prev wire.OutPoint) (int64, bool) {
	if value, ok := c.utxos[prev]; ok {
		return value, true
	}

	parent, ok := c.mempool[prev.Hash]
	if !ok || int(prev.Index) >= len(parent.tx.TxOut) {
		return 0, false
	}

	return parent.tx.TxOut[prev.Index].Value, true
}

// MarkBlockInvalid makes every later check of the block fail.
func (c *MemoryChain) MarkBlockInvalid(hash chainhash.Hash) {
	c.mu.Lock()
	c.invalidBlocks[hash] = struct{}{}
	c.mu.Unlock()
}

// MarkTxInvalid makes the transaction fail validation as if its scripts did not verify.
func (c *MemoryChain) MarkTxInvalid(hash chainhash.Hash) {
	c.mu.Lock()
	c.invalidTxs[hash] = struct{}{}
	c.mu.Unlock()
}

// MineBlock builds a block with the given transactions on the tip and submits it.
func (c *MemoryChain) MineBlock(ctx context.Context, txs ...*wire.MsgTx) (*wire.MsgBlock, error) {
	c.mu.RLock()
	tip := c.entries[c.active[len(c.active)-1]]

	fees := make([]uint64, 0, len(txs))
	for _, tx := range txs {
		if entry, ok := c.mempool[tx.TxHash()]; ok {
			fees = append(fees, entry.fee)
		}
	}
	c.mu.RUnlock()

	timestamp := tip.header.Timestamp.Add(10 * time.Minute)
	block := newMemoryBlock(tip.header.BlockHash(), tip.height+1, timestamp, txs, fees...)

	if err := c.SubmitBlock(ctx, block); err != nil {
		return nil, err
	}

	return block, nil
}

// GenerateBlocks mines n empty blocks.
func (c *MemoryChain) GenerateBlocks(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if _, err := c.MineBlock(ctx); err != nil {
			return err
		}
	}

	return nil
}

// BlockAt returns the active chain block at height.
func (c *MemoryChain) BlockAt(height int32) (*wire.MsgBlock, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if height < 0 || int(height) >= len(c.active) {
		return nil, false
	}

	return c.entries[c.active[height]].block, true
}

// CoinbaseOutPoint returns the spendable output of the coinbase at height.
func (c *MemoryChain) CoinbaseOutPoint(height int32) (wire.OutPoint, int64, bool) {
	block, ok := c.BlockAt(height)
	if !ok {
		return wire.OutPoint{}, 0, false
	}

	coinbase := block.Transactions[0]

	return wire.OutPoint{Hash: coinbase.TxHash(), Index: 0}, coinbase.TxOut[0].Value, true
}

// NewSpend returns a transaction spending the given outputs to a single OP_TRUE output of value.
func NewSpend(value int64, prevOuts ...wire.OutPoint) *wire.MsgTx {
	tx := wire.NewMsgTx(1)

	for _, prev := range prevOuts {
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: prev, SignatureScript: opTrue, Sequence: wire.MaxTxInSequenceNum})
	}

	tx.AddTxOut(&wire.TxOut{Value: value, PkScript: opTrue})

	return tx
}
