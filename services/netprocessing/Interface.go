// Package netprocessing implements the peer message layer of a node: per-peer state, inbound message
// processing, outbound message sending, orphan transaction handling, misbehavior scoring, inventory
// broadcast pacing and headers-first block synchronization.
package netprocessing

import (
	"context"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
)

// PeerID identifies a single connection. An id that is reused after a disconnect refers to a new,
// unrelated peer.
type PeerID int64

// HeaderInfo describes a header accepted by the validation engine.
type HeaderInfo struct {
	Hash     chainhash.Hash
	Height   int32
	HaveData bool // block data is already stored locally
}

// TxValidationResult is the outcome of submitting a transaction to the validation engine.
type TxValidationResult struct {
	Accepted      bool
	MissingInputs []chainhash.Hash // parents that could not be found, set when the tx is an orphan
	RejectCode    wire.RejectCode
	Reason        string
	DoS           int    // misbehavior points the sender deserves, 0 for policy rejections
	Fee           uint64 // satoshis
	Size          int    // bytes
}

// FeeRate returns the fee rate in satoshis per kB.
func (r TxValidationResult) FeeRate() uint64 {
	if r.Size <= 0 {
		return 0
	}

	return r.Fee * 1000 / uint64(r.Size) //nolint:gosec // size checked above
}

// ValidationEngine is the consensus side of the node. Lookups are expected to be cheap, submissions may
// be slow. Block acceptance is reported asynchronously through ValidationEvents.
type ValidationEngine interface {
	BestHeight() int32
	BlockLocator() []*chainhash.Hash
	HaveBlock(hash *chainhash.Hash) bool
	HaveTransaction(hash *chainhash.Hash) bool
	GetBlock(ctx context.Context, hash *chainhash.Hash) (*wire.MsgBlock, error)
	GetTransaction(ctx context.Context, hash *chainhash.Hash) (*wire.MsgTx, error)
	LocateHeaders(ctx context.Context, locator []*chainhash.Hash, hashStop *chainhash.Hash, maxHeaders int) ([]*wire.BlockHeader, error)

	// ProcessBlockHeaders checks and stores a continuous run of headers. It returns
	// errors.ErrBlockParentUnknown when the first header does not connect and errors.ErrBlockInvalid when a
	// header breaks consensus rules.
	ProcessBlockHeaders(ctx context.Context, headers []*wire.BlockHeader) ([]HeaderInfo, error)
	CheckBlockHeader(header *wire.BlockHeader) error

	SubmitBlock(ctx context.Context, block *wire.MsgBlock) error
	SubmitTransaction(ctx context.Context, tx *wire.MsgTx) TxValidationResult
}

// Transport is the connection manager side: it owns the sockets and the wire framing.
type Transport interface {
	PushMessage(id PeerID, msg wire.Message)
	Disconnect(id PeerID, reason string)
	Ban(id PeerID, until time.Time, reason string)
}

// Notifier receives validation events. The Server implements it and the engine calls it.
type Notifier interface {
	Notify(ctx context.Context, event ValidationEvent) error
}

// ProcessResult is the outcome of processing one inbound message.
type ProcessResult struct {
	Command string
	Err     error // coded error describing why the message was refused, nil when accepted or ignored
	Stop    bool  // the peer crossed the ban threshold or must be disconnected, stop reading from it
}

// NodeStateStats is the diagnostic view of a single peer.
type NodeStateStats struct {
	MisbehaviorScore int
	SyncHeight       int32
	CommonHeight     int32
	InFlightHeights  []int32
	SyncState        string
	FeeFilter        int64
	PingLatency      time.Duration
	QueuedInv        int
	Reasons          []string
}
