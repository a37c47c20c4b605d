package netprocessing

import (
	"math/rand/v2"
	"time"

	"github.com/bsv-blockchain/go-wire"
	"github.com/bsv-blockchain/peerlogic/settings"
	"github.com/bsv-blockchain/peerlogic/ulogger"
	"github.com/jellydator/ttlcache/v3"
)

// InvBroadcastScheduler paces inventory announcements per peer. Every peer waits a random delay between
// flushes so observers cannot line up announcement times across connections. All methods expect the peer
// lock to be held.
type InvBroadcastScheduler struct {
	logger    ulogger.Logger
	tSettings *settings.Settings
}

func NewInvBroadcastScheduler(logger ulogger.Logger, tSettings *settings.Settings) *InvBroadcastScheduler {
	initPrometheusMetrics()

	return &InvBroadcastScheduler{
		logger:    logger,
		tSettings: tSettings,
	}
}

// InitPeer starts the flush timer of a newly connected peer.
func (s *InvBroadcastScheduler) InitPeer(ps *PeerState, now time.Time) {
	ps.lastInvBroadcastTime = now
	s.rerollDelay(ps)
}

// Enqueue queues item for announcement. It returns false when the item is already queued, already known
// to the peer, or the queue is full; the latter is counted as an overflow.
func (s *InvBroadcastScheduler) Enqueue(ps *PeerState, item wire.InvVect) bool {
	if _, queued := ps.invQueued[item]; queued {
		return false
	}

	if s.IsKnown(ps, item) {
		return false
	}

	if len(ps.invQueue) >= s.tSettings.NetProcessing.InvQueueCapacity {
		ps.invOverflows++
		prometheusNetProcessingInvQueueOverflows.Inc()

		s.logger.Debugf("[InvBroadcastScheduler] peer %d inventory queue full, not queueing %s", ps.id, item.Hash)

		return false
	}

	ps.invQueue = append(ps.invQueue, item)
	ps.invQueued[item] = struct{}{}

	return true
}

// MarkKnown records that the peer has item, either because it told us or because we told it.
func (s *InvBroadcastScheduler) MarkKnown(ps *PeerState, item wire.InvVect) {
	ps.knownInv.Set(item, struct{}{}, ttlcache.DefaultTTL)
}

func (s *InvBroadcastScheduler) IsKnown(ps *PeerState, item wire.InvVect) bool {
	return ps.knownInv.Get(item) != nil
}

// DueForFlush reports whether the peer's queue should be announced now: the time since the last
// announcement exceeds its random delay, the queue reached the flush threshold, or a block is waiting. A
// zero delay means no pacing.
func (s *InvBroadcastScheduler) DueForFlush(ps *PeerState, now time.Time) bool {
	if len(ps.invQueue) == 0 {
		return false
	}

	if len(ps.invQueue) >= s.tSettings.NetProcessing.InvFlushThreshold {
		return true
	}

	if ps.nextInvDelay == 0 || now.Sub(ps.lastInvBroadcastTime) > ps.nextInvDelay {
		return true
	}

	for _, item := range ps.invQueue {
		if item.Type == wire.InvTypeBlock {
			return true
		}
	}

	return false
}

// Flush empties the queue and returns its items in the order they were queued.
func (s *InvBroadcastScheduler) Flush(ps *PeerState, now time.Time) []wire.InvVect {
	items := ps.invQueue

	ps.invQueue = nil
	clear(ps.invQueued)

	for _, item := range items {
		s.MarkKnown(ps, item)
	}

	ps.lastInvBroadcastTime = now
	s.rerollDelay(ps)

	prometheusNetProcessingInvFlushed.Add(float64(len(items)))
	prometheusNetProcessingInvBatchSize.Observe(float64(len(items)))

	return items
}

// QueueHeaderAnnouncement queues a block to be announced with a headers message to peers that asked for
// them with sendheaders.
func (s *InvBroadcastScheduler) QueueHeaderAnnouncement(ps *PeerState, header *wire.BlockHeader) bool {
	item := wire.InvVect{Type: wire.InvTypeBlock, Hash: header.BlockHash()}
	if s.IsKnown(ps, item) {
		return false
	}

	for _, queued := range ps.headersToAnnounce {
		if queued.BlockHash() == item.Hash {
			return false
		}
	}

	ps.headersToAnnounce = append(ps.headersToAnnounce, header)

	return true
}

// TakeHeaderAnnouncements returns the queued headers and marks them as known to the peer.
func (s *InvBroadcastScheduler) TakeHeaderAnnouncements(ps *PeerState) []*wire.BlockHeader {
	headers := ps.headersToAnnounce
	ps.headersToAnnounce = nil

	for _, header := range headers {
		s.MarkKnown(ps, wire.InvVect{Type: wire.InvTypeBlock, Hash: header.BlockHash()})
	}

	return headers
}

func (s *InvBroadcastScheduler) rerollDelay(ps *PeerState) {
	maxDelay := s.tSettings.NetProcessing.InvBroadcastDelay
	if maxDelay <= 0 {
		ps.nextInvDelay = 0
		return
	}

	ps.nextInvDelay = time.Duration(rand.Int64N(int64(maxDelay) + 1)) //nolint:gosec // jitter only
}
