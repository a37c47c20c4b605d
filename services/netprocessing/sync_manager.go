package netprocessing

import (
	"context"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/bsv-blockchain/peerlogic/errors"
	"github.com/bsv-blockchain/peerlogic/settings"
	"github.com/bsv-blockchain/peerlogic/ulogger"
	"github.com/looplab/fsm"
	"go.uber.org/atomic"
)

// Synchronization states of a single peer.
const (
	SyncStateIdle             = "Idle"
	SyncStateHeadersRequested = "HeadersRequested"
	SyncStateHeadersReceived  = "HeadersReceived"
	SyncStateBlocksRequested  = "BlocksRequested"
)

const (
	syncEventRequestHeaders = "requestHeaders"
	syncEventReceiveHeaders = "receiveHeaders"
	syncEventEmptyHeaders   = "emptyHeaders"
	syncEventNothingToFetch = "nothingToFetch"
	syncEventRequestBlocks  = "requestBlocks"
	syncEventBlocksComplete = "blocksComplete"
	syncEventStall          = "stall"
	syncEventHeadersTimeout = "headersTimeout"
)

// initialDownloadMargin is how far behind the best known header the local chain may be before we consider
// ourselves to be catching up.
const initialDownloadMargin = 144

// newSyncFSM creates the per peer headers-first state machine:
//
//	Idle -> HeadersRequested -> HeadersReceived -> BlocksRequested -> Idle
//
// Unsolicited headers move an idle peer straight to HeadersReceived and a peer with blocks left over from
// an earlier round may go from Idle to BlocksRequested.
func newSyncFSM() *fsm.FSM {
	return fsm.NewFSM(
		SyncStateIdle,
		fsm.Events{
			{
				Name: syncEventRequestHeaders,
				Src:  []string{SyncStateIdle},
				Dst:  SyncStateHeadersRequested,
			},
			{
				Name: syncEventReceiveHeaders,
				Src:  []string{SyncStateIdle, SyncStateHeadersRequested},
				Dst:  SyncStateHeadersReceived,
			},
			{
				Name: syncEventEmptyHeaders,
				Src:  []string{SyncStateHeadersRequested},
				Dst:  SyncStateIdle,
			},
			{
				Name: syncEventNothingToFetch,
				Src:  []string{SyncStateHeadersReceived},
				Dst:  SyncStateIdle,
			},
			{
				Name: syncEventRequestBlocks,
				Src:  []string{SyncStateIdle, SyncStateHeadersReceived},
				Dst:  SyncStateBlocksRequested,
			},
			{
				Name: syncEventBlocksComplete,
				Src:  []string{SyncStateBlocksRequested},
				Dst:  SyncStateIdle,
			},
			{
				Name: syncEventStall,
				Src:  []string{SyncStateBlocksRequested},
				Dst:  SyncStateIdle,
			},
			{
				Name: syncEventHeadersTimeout,
				Src:  []string{SyncStateHeadersRequested},
				Dst:  SyncStateIdle,
			},
		},
		fsm.Callbacks{},
	)
}

// SyncManager drives headers-first synchronization for every peer. It owns the rules for moving a peer
// through its state machine and for claiming block heights in the shared InFlightIndex. Methods taking a
// *PeerState expect the peer lock to be held.
type SyncManager struct {
	logger      ulogger.Logger
	tSettings   *settings.Settings
	inFlight    *InFlightIndex
	misbehavior *MisbehaviorTracker

	localHeight      atomic.Int32
	bestHeaderHeight atomic.Int32

	onTransition func(id PeerID, from, to string)
}

func NewSyncManager(logger ulogger.Logger, tSettings *settings.Settings, inFlight *InFlightIndex, misbehavior *MisbehaviorTracker) *SyncManager {
	initPrometheusMetrics()

	return &SyncManager{
		logger:      logger,
		tSettings:   tSettings,
		inFlight:    inFlight,
		misbehavior: misbehavior,
	}
}

// SetLocalHeight records the height of our active chain tip.
func (m *SyncManager) SetLocalHeight(height int32) {
	m.localHeight.Store(height)
}

func (m *SyncManager) LocalHeight() int32 {
	return m.localHeight.Load()
}

// InitialDownload reports whether we are still far behind the best header any peer has shown us.
func (m *SyncManager) InitialDownload() bool {
	return m.localHeight.Load()+initialDownloadMargin < m.bestHeaderHeight.Load()
}

func (m *SyncManager) transition(ps *PeerState, event string, now time.Time) error {
	from := ps.syncState.Current()

	if err := ps.syncState.Event(context.Background(), event); err != nil {
		return errors.NewProcessingError("[SyncManager] peer %d: event %s not allowed in state %s", ps.id, event, from, err)
	}

	to := ps.syncState.Current()
	ps.stateSince = now

	m.logger.Debugf("[SyncManager] peer %d: %s -> %s (%s)", ps.id, from, to, event)

	if m.onTransition != nil {
		m.onTransition(ps.id, from, to)
	}

	return nil
}

// UpdatePeerHeight raises the height the peer claims to have.
func (m *SyncManager) UpdatePeerHeight(ps *PeerState, height int32) {
	if height > ps.syncHeight {
		ps.syncHeight = height
	}
}

// setCommonHeight raises commonHeight. A peer that demonstrably has a block also has its height, so
// syncHeight follows and commonHeight never exceeds it.
func (m *SyncManager) setCommonHeight(ps *PeerState, height int32) {
	if height <= ps.commonHeight {
		return
	}

	m.UpdatePeerHeight(ps, height)
	ps.commonHeight = height
}

// NeedsHeaders reports whether an idle peer should be asked for headers: it claims more than we know of, or
// its last headers message was full.
func (m *SyncManager) NeedsHeaders(ps *PeerState) bool {
	if ps.syncState.Current() != SyncStateIdle || !ps.verackReceived {
		return false
	}

	if ps.needHeaders {
		return true
	}

	known := max(m.localHeight.Load(), ps.bestHeaderHeight)

	return ps.syncHeight > known
}

// BeginHeadersRequest moves the peer to HeadersRequested. The caller sends the getheaders message.
func (m *SyncManager) BeginHeadersRequest(ps *PeerState, now time.Time) error {
	ps.needHeaders = false

	return m.transition(ps, syncEventRequestHeaders, now)
}

// OnHeaders applies a headers message that the validation engine accepted. full is true when the message
// carried the maximum number of headers and more are likely to follow.
func (m *SyncManager) OnHeaders(ps *PeerState, infos []HeaderInfo, full bool, now time.Time) error {
	ps.unconnectingHeaders = 0

	if len(infos) == 0 {
		ps.needHeaders = false

		// the peer has nothing beyond what we know, stop asking until it announces something new
		ps.bestHeaderHeight = max(ps.bestHeaderHeight, ps.syncHeight)

		if ps.syncState.Current() == SyncStateHeadersRequested {
			return m.transition(ps, syncEventEmptyHeaders, now)
		}

		return nil
	}

	last := infos[len(infos)-1].Height
	if last > ps.bestHeaderHeight {
		ps.bestHeaderHeight = last
	}

	m.UpdatePeerHeight(ps, last)

	for best := m.bestHeaderHeight.Load(); last > best; best = m.bestHeaderHeight.Load() {
		if m.bestHeaderHeight.CompareAndSwap(best, last) {
			break
		}
	}

	for _, info := range infos {
		if info.HaveData {
			m.setCommonHeight(ps, info.Height)
			continue
		}

		if _, inFlight := ps.inFlightByHash[info.Hash]; inFlight || m.isPending(ps, info.Hash) {
			continue
		}

		ps.pendingBlocks = append(ps.pendingBlocks, info)
	}

	ps.needHeaders = full

	switch ps.syncState.Current() {
	case SyncStateIdle, SyncStateHeadersRequested:
		if err := m.transition(ps, syncEventReceiveHeaders, now); err != nil {
			return err
		}
	default:
		return nil
	}

	if len(ps.pendingBlocks) == 0 && len(ps.inFlight) == 0 {
		return m.transition(ps, syncEventNothingToFetch, now)
	}

	return nil
}

// OnUnconnectingHeaders handles headers whose first entry does not connect to anything we know. The peer
// is asked for headers again from our locator and scored on every tenth consecutive occurrence.
func (m *SyncManager) OnUnconnectingHeaders(ps *PeerState, now time.Time) (bool, error) {
	ps.unconnectingHeaders++
	ps.needHeaders = true

	var stop bool

	if ps.unconnectingHeaders%10 == 0 {
		stop = m.misbehavior.AddReason(ps, ReasonUnconnectingHeaders, "headers do not connect")
	}

	if ps.syncState.Current() == SyncStateHeadersRequested {
		return stop, m.transition(ps, syncEventEmptyHeaders, now)
	}

	return stop, nil
}

func (m *SyncManager) isPending(ps *PeerState, hash chainhash.Hash) bool {
	for _, info := range ps.pendingBlocks {
		if info.Hash == hash {
			return true
		}
	}

	return false
}

// BlockCandidates returns pending headers the caller should check against local storage before calling
// RequestBlocks. Nothing is returned while the peer's request window is full.
func (m *SyncManager) BlockCandidates(ps *PeerState) []HeaderInfo {
	switch ps.syncState.Current() {
	case SyncStateIdle, SyncStateHeadersReceived, SyncStateBlocksRequested:
	default:
		return nil
	}

	free := m.tSettings.NetProcessing.MaxBlocksInFlightPerPeer - len(ps.inFlight)
	if free <= 0 || len(ps.pendingBlocks) == 0 {
		return nil
	}

	// look further ahead than the window, other peers may own some of the heights
	n := min(len(ps.pendingBlocks), free*4)

	return append([]HeaderInfo(nil), ps.pendingBlocks[:n]...)
}

// RequestBlocks claims heights for the candidates that are not stored locally and returns the inventory
// to put in a getdata message. stored holds the candidates found in local storage while no lock was held;
// the pending list is re-checked since it may have changed in the meantime.
func (m *SyncManager) RequestBlocks(ps *PeerState, candidates []HeaderInfo, stored map[chainhash.Hash]struct{}, now time.Time) ([]*wire.InvVect, error) {
	wanted := make(map[chainhash.Hash]struct{}, len(candidates))
	for _, c := range candidates {
		wanted[c.Hash] = struct{}{}
	}

	free := m.tSettings.NetProcessing.MaxBlocksInFlightPerPeer - len(ps.inFlight)
	remaining := ps.pendingBlocks[:0]

	var requests []*wire.InvVect

	for _, info := range ps.pendingBlocks {
		if _, ok := stored[info.Hash]; ok {
			m.setCommonHeight(ps, info.Height)
			continue
		}

		_, isCandidate := wanted[info.Hash]
		if !isCandidate || free <= 0 || !m.inFlight.Claim(info.Height, ps.id) {
			remaining = append(remaining, info)
			continue
		}

		hash := info.Hash
		ps.inFlight[info.Height] = inFlightBlock{hash: hash, requestedAt: now}
		ps.inFlightByHash[hash] = info.Height
		requests = append(requests, wire.NewInvVect(wire.InvTypeBlock, &hash))
		free--
	}

	ps.pendingBlocks = remaining

	state := ps.syncState.Current()

	switch {
	case len(requests) > 0 && state != SyncStateBlocksRequested:
		return requests, m.transition(ps, syncEventRequestBlocks, now)
	case len(requests) > 0:
		// already downloading, new requests do not restart the stall clock
	case state == SyncStateHeadersReceived && len(ps.pendingBlocks) == 0:
		return nil, m.transition(ps, syncEventNothingToFetch, now)
	case state == SyncStateBlocksRequested && len(ps.inFlight) == 0:
		return nil, m.transition(ps, syncEventBlocksComplete, now)
	}

	return requests, nil
}

// OnBlockReceived records the arrival of a block. It returns the block height and whether we had
// requested it from this peer.
func (m *SyncManager) OnBlockReceived(ps *PeerState, hash chainhash.Hash, now time.Time) (int32, bool, error) {
	height, ok := m.removeInFlight(ps, hash, now)
	if !ok {
		return 0, false, nil
	}

	m.setCommonHeight(ps, height)

	return height, true, m.completeIfDone(ps, now)
}

// OnNotFound releases a block the peer told us it does not have. Not having a block is no offense.
func (m *SyncManager) OnNotFound(ps *PeerState, hash chainhash.Hash, now time.Time) error {
	if _, ok := m.removeInFlight(ps, hash, now); !ok {
		return nil
	}

	return m.completeIfDone(ps, now)
}

// removeInFlight forgets the request for hash. When it was the oldest outstanding request the stall
// clock of the next oldest starts now.
func (m *SyncManager) removeInFlight(ps *PeerState, hash chainhash.Hash, now time.Time) (int32, bool) {
	height, ok := ps.inFlightByHash[hash]
	if !ok {
		return 0, false
	}

	if oldest, _, found := oldestInFlight(ps); found && oldest == height {
		ps.downloadingSince = now
	}

	delete(ps.inFlightByHash, hash)
	delete(ps.inFlight, height)
	m.inFlight.Release(height, ps.id)

	return height, true
}

// oldestInFlight returns the earliest outstanding request of the peer, the lowest height first among
// requests made at the same time.
func oldestInFlight(ps *PeerState) (int32, inFlightBlock, bool) {
	var (
		oldestHeight int32
		oldest       inFlightBlock
		found        bool
	)

	for height, block := range ps.inFlight {
		if !found || block.requestedAt.Before(oldest.requestedAt) ||
			(block.requestedAt.Equal(oldest.requestedAt) && height < oldestHeight) {
			oldestHeight, oldest, found = height, block, true
		}
	}

	return oldestHeight, oldest, found
}

func (m *SyncManager) completeIfDone(ps *PeerState, now time.Time) error {
	if ps.syncState.Current() == SyncStateBlocksRequested && len(ps.inFlight) == 0 && len(ps.pendingBlocks) == 0 {
		return m.transition(ps, syncEventBlocksComplete, now)
	}

	return nil
}

// CheckStall detects a peer that has not delivered its oldest outstanding block within the stall timeout.
// The clock for that block starts when it was requested, or when the block requested before it arrived,
// whichever is later. Delivering other blocks does not reset it. On a stall every height of the peer is
// released for other peers, the peer is scored and returns to Idle. It returns whether the peer stalled
// and whether it must now be banned.
func (m *SyncManager) CheckStall(ps *PeerState, now time.Time) (bool, bool, error) {
	if ps.syncState.Current() != SyncStateBlocksRequested {
		return false, false, nil
	}

	oldestHeight, oldest, found := oldestInFlight(ps)
	if !found {
		return false, false, nil
	}

	since := oldest.requestedAt
	if ps.downloadingSince.After(since) {
		since = ps.downloadingSince
	}

	if now.Sub(since) <= m.tSettings.NetProcessing.StallTimeout {
		return false, false, nil
	}

	heights := ps.InFlightHeights()

	stallErr := errors.NewStallError("peer %d stalled on height %d requested %s ago", ps.id, oldestHeight, now.Sub(oldest.requestedAt))

	m.logger.Warnf("[SyncManager] %v, releasing %d blocks", stallErr, len(heights))
	prometheusNetProcessingStalls.Inc()

	m.releaseAll(ps)
	ps.pendingBlocks = nil

	stop := m.misbehavior.AddReason(ps, ReasonStall, "block download stalled")

	return true, stop, m.transition(ps, syncEventStall, now)
}

// CheckHeadersTimeout disconnects a peer that ignored our getheaders. No score is given, the peer may just
// be slow.
func (m *SyncManager) CheckHeadersTimeout(ps *PeerState, now time.Time) (bool, error) {
	if ps.syncState.Current() != SyncStateHeadersRequested {
		return false, nil
	}

	if now.Sub(ps.stateSince) <= m.tSettings.NetProcessing.HeadersTimeout {
		return false, nil
	}

	m.logger.Infof("[SyncManager] peer %d did not answer getheaders within %s", ps.id, m.tSettings.NetProcessing.HeadersTimeout)
	ps.requestDisconnect("headers request timed out")

	return true, m.transition(ps, syncEventHeadersTimeout, now)
}

// ReleasePeer gives up every height owned by the peer. Used on disconnect.
func (m *SyncManager) ReleasePeer(ps *PeerState) {
	m.releaseAll(ps)
	ps.pendingBlocks = nil
}

func (m *SyncManager) releaseAll(ps *PeerState) {
	for height := range ps.inFlight {
		m.inFlight.Release(height, ps.id)
	}

	clear(ps.inFlight)
	clear(ps.inFlightByHash)
}
