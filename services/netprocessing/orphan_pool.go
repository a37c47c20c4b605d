package netprocessing

import (
	"iter"
	"sync"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/bsv-blockchain/peerlogic/errors"
	"github.com/bsv-blockchain/peerlogic/settings"
	"github.com/bsv-blockchain/peerlogic/ulogger"
	"github.com/dolthub/swiss"
)

// OrphanTx is a transaction waiting for one or more of its parents.
type OrphanTx struct {
	Tx         *wire.MsgTx
	Hash       chainhash.Hash
	FromPeer   PeerID
	ReceivedAt time.Time
	Size       int

	missing map[chainhash.Hash]struct{}
	seq     uint64
}

// MissingInputs returns the parent transactions that are still unknown.
func (o *OrphanTx) MissingInputs() []chainhash.Hash {
	parents := make([]chainhash.Hash, 0, len(o.missing))
	for h := range o.missing {
		parents = append(parents, h)
	}

	return parents
}

func (o *OrphanTx) olderThan(other *OrphanTx) bool {
	if o.ReceivedAt.Equal(other.ReceivedAt) {
		return o.seq < other.seq
	}

	return o.ReceivedAt.Before(other.ReceivedAt)
}

// OrphanPool holds transactions with unresolved parents. It is bounded by entry count and by age. The
// pool lock is never held while a peer lock is taken.
type OrphanPool struct {
	mu             sync.Mutex
	logger         ulogger.Logger
	orphans        *swiss.Map[chainhash.Hash, *OrphanTx]
	byParent       map[chainhash.Hash]map[chainhash.Hash]struct{}
	byOutpoint     map[wire.OutPoint]chainhash.Hash
	maxOrphans     int
	expiry         time.Duration
	expiryInterval time.Duration
	nextExpiry     time.Time
	seq            uint64
	now            func() time.Time
}

func NewOrphanPool(logger ulogger.Logger, tSettings *settings.Settings) *OrphanPool {
	initPrometheusMetrics()

	np := tSettings.NetProcessing

	return &OrphanPool{
		logger:         logger,
		orphans:        swiss.NewMap[chainhash.Hash, *OrphanTx](uint32(np.MaxOrphanTx)), //nolint:gosec // validated positive
		byParent:       make(map[chainhash.Hash]map[chainhash.Hash]struct{}),
		byOutpoint:     make(map[wire.OutPoint]chainhash.Hash),
		maxOrphans:     np.MaxOrphanTx,
		expiry:         np.OrphanExpiry,
		expiryInterval: np.OrphanExpiryInterval,
		now:            time.Now,
	}
}

// Add stores tx until its missing parents arrive. A full pool makes room by evicting its oldest entry.
// Adding a transaction that is already present returns ERR_ALREADY_PRESENT and changes nothing.
func (p *OrphanPool) Add(tx *wire.MsgTx, missingInputs []chainhash.Hash, fromPeer PeerID) error {
	if tx == nil || len(missingInputs) == 0 {
		return errors.NewInvalidArgumentError("orphan needs a transaction and at least one missing input")
	}

	hash := tx.TxHash()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.orphans.Has(hash) {
		return errors.NewAlreadyPresentError("orphan %s already in pool", hash)
	}

	if p.maxOrphans <= 0 {
		return errors.NewResourceExhaustedError("orphan pool disabled")
	}

	for p.orphans.Count() >= p.maxOrphans {
		oldest := p.oldestLocked()
		p.removeLocked(oldest)

		prometheusNetProcessingOrphanEvictions.Inc()
		p.logger.Debugf("[OrphanPool] evicted orphan %s from peer %d, pool full", oldest.Hash, oldest.FromPeer)
	}

	p.seq++

	orphan := &OrphanTx{
		Tx:         tx,
		Hash:       hash,
		FromPeer:   fromPeer,
		ReceivedAt: p.now(),
		Size:       tx.SerializeSize(),
		missing:    make(map[chainhash.Hash]struct{}, len(missingInputs)),
		seq:        p.seq,
	}

	for _, parent := range missingInputs {
		orphan.missing[parent] = struct{}{}

		children, ok := p.byParent[parent]
		if !ok {
			children = make(map[chainhash.Hash]struct{})
			p.byParent[parent] = children
		}

		children[hash] = struct{}{}
	}

	for _, in := range tx.TxIn {
		p.byOutpoint[in.PreviousOutPoint] = hash
	}

	p.orphans.Put(hash, orphan)
	prometheusNetProcessingOrphans.Set(float64(p.orphans.Count()))

	return nil
}

// ResolveInput marks parent as available and yields, one at a time, the orphans for which parent was the
// last missing input. Each yielded orphan has already been removed from the pool; the caller re-adds it
// if validation finds it still orphaned. Orphans are only touched as the sequence is consumed, so stopping
// early leaves the remaining children waiting on parent.
func (p *OrphanPool) ResolveInput(parent chainhash.Hash) iter.Seq[*OrphanTx] {
	return func(yield func(*OrphanTx) bool) {
		p.mu.Lock()
		children := make([]chainhash.Hash, 0, len(p.byParent[parent]))

		for child := range p.byParent[parent] {
			children = append(children, child)
		}
		p.mu.Unlock()

		for _, child := range children {
			orphan := p.resolveOne(parent, child)
			if orphan == nil {
				continue
			}

			if !yield(orphan) {
				return
			}
		}
	}
}

func (p *OrphanPool) resolveOne(parent, child chainhash.Hash) *OrphanTx {
	p.mu.Lock()
	defer p.mu.Unlock()

	orphan, ok := p.orphans.Get(child)
	if !ok {
		return nil
	}

	if _, waiting := orphan.missing[parent]; !waiting {
		return nil
	}

	delete(orphan.missing, parent)
	p.unlinkParentLocked(parent, child)

	if len(orphan.missing) > 0 {
		return nil
	}

	p.removeLocked(orphan)

	return orphan
}

// ExpireOlderThan removes and returns every orphan received before cutoff.
func (p *OrphanPool) ExpireOlderThan(cutoff time.Time) []*OrphanTx {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.expireLocked(cutoff)
}

// ExpireIfDue runs an expiry sweep when the expiry interval has passed since the last one.
func (p *OrphanPool) ExpireIfDue(now time.Time) []*OrphanTx {
	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Before(p.nextExpiry) {
		return nil
	}

	p.nextExpiry = now.Add(p.expiryInterval)

	expired := p.expireLocked(now.Add(-p.expiry))
	if len(expired) > 0 {
		p.logger.Debugf("[OrphanPool] expired %d orphans, %d left", len(expired), p.orphans.Count())
	}

	return expired
}

func (p *OrphanPool) expireLocked(cutoff time.Time) []*OrphanTx {
	var expired []*OrphanTx

	p.orphans.Iter(func(_ chainhash.Hash, orphan *OrphanTx) (stop bool) {
		if orphan.ReceivedAt.Before(cutoff) {
			expired = append(expired, orphan)
		}

		return false
	})

	for _, orphan := range expired {
		p.removeLocked(orphan)
	}

	prometheusNetProcessingOrphanExpiries.Add(float64(len(expired)))

	return expired
}

// Remove drops a single orphan, returning false when it was not in the pool.
func (p *OrphanPool) Remove(hash chainhash.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	orphan, ok := p.orphans.Get(hash)
	if !ok {
		return false
	}

	p.removeLocked(orphan)

	return true
}

// RemoveForPeer drops every orphan received from id.
func (p *OrphanPool) RemoveForPeer(id PeerID) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var victims []*OrphanTx

	p.orphans.Iter(func(_ chainhash.Hash, orphan *OrphanTx) (stop bool) {
		if orphan.FromPeer == id {
			victims = append(victims, orphan)
		}

		return false
	})

	for _, orphan := range victims {
		p.removeLocked(orphan)
	}

	return len(victims)
}

// RemoveForBlock drops orphans that the block includes and orphans that spend an outpoint the block
// already spends.
func (p *OrphanPool) RemoveForBlock(block *wire.MsgBlock) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0

	for _, tx := range block.Transactions {
		if orphan, ok := p.orphans.Get(tx.TxHash()); ok {
			p.removeLocked(orphan)
			removed++
		}

		for _, in := range tx.TxIn {
			hash, ok := p.byOutpoint[in.PreviousOutPoint]
			if !ok {
				continue
			}

			if orphan, ok := p.orphans.Get(hash); ok {
				p.removeLocked(orphan)
				removed++
			}
		}
	}

	return removed
}

func (p *OrphanPool) Has(hash chainhash.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.orphans.Has(hash)
}

func (p *OrphanPool) Get(hash chainhash.Hash) (*OrphanTx, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.orphans.Get(hash)
}

func (p *OrphanPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.orphans.Count()
}

func (p *OrphanPool) oldestLocked() *OrphanTx {
	var oldest *OrphanTx

	p.orphans.Iter(func(_ chainhash.Hash, orphan *OrphanTx) (stop bool) {
		if oldest == nil || orphan.olderThan(oldest) {
			oldest = orphan
		}

		return false
	})

	return oldest
}

func (p *OrphanPool) removeLocked(orphan *OrphanTx) {
	if orphan == nil {
		return
	}

	for parent := range orphan.missing {
		p.unlinkParentLocked(parent, orphan.Hash)
	}

	for _, in := range orphan.Tx.TxIn {
		if p.byOutpoint[in.PreviousOutPoint] == orphan.Hash {
			delete(p.byOutpoint, in.PreviousOutPoint)
		}
	}

	p.orphans.Delete(orphan.Hash)
	prometheusNetProcessingOrphans.Set(float64(p.orphans.Count()))
}

func (p *OrphanPool) unlinkParentLocked(parent, child chainhash.Hash) {
	children, ok := p.byParent[parent]
	if !ok {
		return
	}

	delete(children, child)

	if len(children) == 0 {
		delete(p.byParent, parent)
	}
}
