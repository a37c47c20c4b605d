package netprocessing

import (
	"sort"
	"sync"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/bsv-blockchain/peerlogic/errors"
	"github.com/bsv-blockchain/peerlogic/settings"
	"github.com/jellydator/ttlcache/v3"
	"github.com/looplab/fsm"
	"golang.org/x/time/rate"
)

// maxInboundQueue bounds the number of decoded messages waiting for ProcessMessages per peer.
const maxInboundQueue = 5000

type inFlightBlock struct {
	hash        chainhash.Hash
	requestedAt time.Time
}

// PeerState is everything we know about one connected peer. All fields are guarded by mu; the lock is taken
// by the PeerStateStore helpers and by the Server, component methods taking a *PeerState expect it held.
type PeerState struct {
	mu sync.Mutex

	id          PeerID
	inbound     bool
	connectedAt time.Time

	// handshake
	versionSent     bool
	versionReceived bool
	verackReceived  bool
	protocolVersion int32
	userAgent       string
	services        wire.ServiceFlag
	startingHeight  int32
	feeFilter       int64
	preferHeaders   bool

	// synchronization, see SyncManager
	syncHeight          int32
	commonHeight        int32
	bestHeaderHeight    int32
	syncState           *fsm.FSM
	stateSince          time.Time
	needHeaders         bool
	unconnectingHeaders int
	pendingBlocks       []HeaderInfo
	inFlight            map[int32]inFlightBlock
	inFlightByHash      map[chainhash.Hash]int32
	downloadingSince    time.Time

	// misbehavior, see MisbehaviorTracker
	misbehaviorScore    int
	reasons             []string
	pendingDisconnect   bool
	pendingBan          bool
	disconnectReason    string
	disconnectSignalled bool

	// inventory, see InvBroadcastScheduler
	lastInvBroadcastTime time.Time
	nextInvDelay         time.Duration
	invQueue             []wire.InvVect
	invQueued            map[wire.InvVect]struct{}
	knownInv             *ttlcache.Cache[wire.InvVect, struct{}]
	headersToAnnounce    []*wire.BlockHeader
	invOverflows         int
	invLimiter           *rate.Limiter

	// keep alive
	pingNonce   uint64
	pingSent    time.Time
	lastPing    time.Time
	pingLatency time.Duration

	inbox        []wire.Message
	disconnected bool
}

func newPeerState(id PeerID, tSettings *settings.Settings, now time.Time) *PeerState {
	np := tSettings.NetProcessing

	return &PeerState{
		id:             id,
		connectedAt:    now,
		syncState:      newSyncFSM(),
		stateSince:     now,
		inFlight:       make(map[int32]inFlightBlock),
		inFlightByHash: make(map[chainhash.Hash]int32),
		invQueued:      make(map[wire.InvVect]struct{}),
		knownInv: ttlcache.New[wire.InvVect, struct{}](
			ttlcache.WithTTL[wire.InvVect, struct{}](np.KnownInvRetention),
			ttlcache.WithCapacity[wire.InvVect, struct{}](uint64(np.InvQueueCapacity)), //nolint:gosec // validated positive
			ttlcache.WithDisableTouchOnHit[wire.InvVect, struct{}](),
		),
		invLimiter: rate.NewLimiter(rate.Limit(np.InvRateLimit), np.InvRateBurst),
	}
}

func (ps *PeerState) ID() PeerID {
	return ps.id
}

// Lock takes the per peer lock. Never call it while holding the in-flight index lock.
func (ps *PeerState) Lock() {
	ps.mu.Lock()
}

func (ps *PeerState) Unlock() {
	ps.mu.Unlock()
}

// SyncHeight returns the best height the peer claims to have. Caller must hold the lock.
func (ps *PeerState) SyncHeight() int32 {
	return ps.syncHeight
}

// CommonHeight returns the highest height known to be shared with the peer. Caller must hold the lock.
func (ps *PeerState) CommonHeight() int32 {
	return ps.commonHeight
}

// MisbehaviorScore returns the accumulated score. Caller must hold the lock.
func (ps *PeerState) MisbehaviorScore() int {
	return ps.misbehaviorScore
}

// PendingBan reports whether the peer crossed the ban threshold. Caller must hold the lock.
func (ps *PeerState) PendingBan() bool {
	return ps.pendingBan
}

// PendingDisconnect reports whether the peer is due to be disconnected. Caller must hold the lock.
func (ps *PeerState) PendingDisconnect() bool {
	return ps.pendingDisconnect || ps.pendingBan
}

// SyncStateName returns the current synchronization state. Caller must hold the lock.
func (ps *PeerState) SyncStateName() string {
	return ps.syncState.Current()
}

// InFlightHeights returns the sorted heights requested from this peer. Caller must hold the lock.
func (ps *PeerState) InFlightHeights() []int32 {
	heights := make([]int32, 0, len(ps.inFlight))
	for h := range ps.inFlight {
		heights = append(heights, h)
	}

	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	return heights
}

// negotiatedVersion returns the protocol version to encode messages with. Caller must hold the lock.
func (ps *PeerState) negotiatedVersion() uint32 {
	if ps.protocolVersion <= 0 {
		return wire.ProtocolVersion
	}

	return uint32(ps.protocolVersion)
}

func (ps *PeerState) stats() NodeStateStats {
	return NodeStateStats{
		MisbehaviorScore: ps.misbehaviorScore,
		SyncHeight:       ps.syncHeight,
		CommonHeight:     ps.commonHeight,
		InFlightHeights:  ps.InFlightHeights(),
		SyncState:        ps.syncState.Current(),
		FeeFilter:        ps.feeFilter,
		PingLatency:      ps.pingLatency,
		QueuedInv:        len(ps.invQueue),
		Reasons:          append([]string(nil), ps.reasons...),
	}
}

// requestDisconnect flags the peer so the sender terminates the connection at the end of its next cycle.
func (ps *PeerState) requestDisconnect(reason string) {
	if !ps.pendingDisconnect {
		ps.pendingDisconnect = true
		ps.disconnectReason = reason
	}
}

// PeerStateStore owns the PeerState of every connected peer.
//
// The store lock only guards the id to state map and is never held while a peer lock is taken, so
// lookups for one peer do not wait on work for another. Callers lock the returned PeerState themselves,
// or use WithPeer, which also refuses peers that were removed while the caller held a reference.
//
// Removing a peer marks its state disconnected and drops its inbound queue. Goroutines still holding the
// state see the flag under the peer lock and abandon their work.
type PeerStateStore struct {
	mu        sync.RWMutex
	peers     map[PeerID]*PeerState
	tSettings *settings.Settings
	now       func() time.Time
}

func NewPeerStateStore(tSettings *settings.Settings) *PeerStateStore {
	return &PeerStateStore{
		peers:     make(map[PeerID]*PeerState),
		tSettings: tSettings,
		now:       time.Now,
	}
}

// CreatePeer starts tracking a new peer, failing with ERR_DUPLICATE_ID when the id is in use.
func (s *PeerStateStore) CreatePeer(id PeerID) (*PeerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.peers[id]; ok {
		return nil, errors.NewDuplicateIDError("peer %d is already tracked", id)
	}

	ps := newPeerState(id, s.tSettings, s.now())
	s.peers[id] = ps

	return ps, nil
}

// Get returns the state of a connected peer, failing with ERR_NOT_FOUND otherwise.
func (s *PeerStateStore) Get(id PeerID) (*PeerState, error) {
	s.mu.RLock()
	ps, ok := s.peers[id]
	s.mu.RUnlock()

	if !ok {
		return nil, errors.NewNotFoundError("peer %d not found", id)
	}

	return ps, nil
}

// Remove stops tracking the peer and returns its last state, or nil if it was not tracked. The returned
// state is marked disconnected so work that still holds a reference abandons it.
func (s *PeerStateStore) Remove(id PeerID) *PeerState {
	s.mu.Lock()
	ps, ok := s.peers[id]
	delete(s.peers, id)
	s.mu.Unlock()

	if !ok {
		return nil
	}

	ps.mu.Lock()
	ps.disconnected = true
	ps.inbox = nil
	ps.mu.Unlock()

	return ps
}

// WithPeer runs fn with the peer locked.
func (s *PeerStateStore) WithPeer(id PeerID, fn func(ps *PeerState) error) error {
	ps, err := s.Get(id)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.disconnected {
		return errors.NewNotFoundError("peer %d disconnected", id)
	}

	return fn(ps)
}

// Peers returns a snapshot of all tracked peers ordered by id.
func (s *PeerStateStore) Peers() []*PeerState {
	s.mu.RLock()
	peers := make([]*PeerState, 0, len(s.peers))

	for _, ps := range s.peers {
		peers = append(peers, ps)
	}
	s.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].id < peers[j].id })

	return peers
}

func (s *PeerStateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.peers)
}
