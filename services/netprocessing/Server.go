package netprocessing

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	txmap "github.com/bsv-blockchain/go-tx-map"
	"github.com/bsv-blockchain/go-wire"
	"github.com/bsv-blockchain/peerlogic/errors"
	"github.com/bsv-blockchain/peerlogic/settings"
	"github.com/bsv-blockchain/peerlogic/ulogger"
	"github.com/ordishs/go-utils/expiringmap"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

const (
	// userAgentVersion is put in the user agent of our version message
	userAgentVersion = "1.0.0"

	// txRequestTimeout is how long we wait for a requested transaction before asking another peer
	txRequestTimeout = 2 * time.Minute
)

// Server is the message layer of the node. The connection manager registers peers with AddPeer and
// RemovePeer, feeds their messages in with QueueMessage and drives each peer with ProcessMessages and
// SendMessages. The validation engine reports back through Notify.
type Server struct {
	logger         ulogger.Logger
	settings       *settings.Settings
	engine         ValidationEngine
	transport      Transport
	peers          *PeerStateStore
	inFlight       *InFlightIndex
	orphans        *OrphanPool
	extraTxn       *extraTxnRing
	misbehavior    *MisbehaviorTracker
	scheduler      *InvBroadcastScheduler
	syncManager    *SyncManager
	recentRejects  *expiringmap.ExpiringMap[chainhash.Hash, struct{}]
	askedFor       *expiringmap.ExpiringMap[chainhash.Hash, PeerID]
	blockSource    *txmap.SyncedMap[chainhash.Hash, PeerID]
	rejectNotifier *RejectNotifier
	events         chan ValidationEvent
	nonce          uint64
	started        atomic.Bool
	now            func() time.Time
}

// New creates the message layer on top of the given validation engine and transport.
func New(logger ulogger.Logger, tSettings *settings.Settings, engine ValidationEngine, transport Transport) *Server {
	initPrometheusMetrics()

	inFlight := NewInFlightIndex()
	misbehavior := NewMisbehaviorTracker(logger, tSettings)

	eventBuffer := max(tSettings.NetProcessing.ValidationEventBuffer, 1)

	return &Server{
		logger:        logger,
		settings:      tSettings,
		engine:        engine,
		transport:     transport,
		peers:         NewPeerStateStore(tSettings),
		inFlight:      inFlight,
		orphans:       NewOrphanPool(logger, tSettings),
		extraTxn:      newExtraTxnRing(tSettings.NetProcessing.BlockReconstructionExtraTxn),
		misbehavior:   misbehavior,
		scheduler:     NewInvBroadcastScheduler(logger, tSettings),
		syncManager:   NewSyncManager(logger, tSettings, inFlight, misbehavior),
		recentRejects: expiringmap.New[chainhash.Hash, struct{}](tSettings.NetProcessing.RecentRejectsTTL),
		askedFor:      expiringmap.New[chainhash.Hash, PeerID](txRequestTimeout),
		blockSource:   txmap.NewSyncedMap[chainhash.Hash, PeerID](),
		events:        make(chan ValidationEvent, eventBuffer),
		nonce:         wire.RandomUint64(),
		now:           time.Now,
	}
}

func (s *Server) Health(_ context.Context) (int, string, error) {
	if !s.started.Load() {
		return http.StatusServiceUnavailable, "not started", errors.NewServiceNotStartedError("netprocessing not started")
	}

	return http.StatusOK, "OK", nil
}

func (s *Server) Init(_ context.Context) (err error) {
	s.logger.Infof("[NetProcessing] initialising")

	if err = s.settings.Validate(); err != nil {
		return err
	}

	s.syncManager.SetLocalHeight(s.engine.BestHeight())

	s.rejectNotifier, err = NewRejectNotifier(s.logger, s.settings)
	if err != nil {
		return errors.NewServiceError("[NetProcessing] could not create reject notifier", err)
	}

	return nil
}

// Start runs the validation event loop and the orphan expiry sweep until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Infof("[NetProcessing] starting")
	s.started.Store(true)

	defer s.started.Store(false)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.eventLoop(gCtx)
	})

	g.Go(func() error {
		return s.orphanExpiryLoop(gCtx)
	})

	return g.Wait()
}

func (s *Server) Stop(_ context.Context) error {
	s.logger.Infof("[NetProcessing] stopping")

	return s.rejectNotifier.Close()
}

func (s *Server) orphanExpiryLoop(ctx context.Context) error {
	interval := s.settings.NetProcessing.OrphanExpiryInterval
	if interval <= 0 {
		return errors.NewConfigurationError("[NetProcessing] orphanexpiryinterval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.orphans.ExpireIfDue(s.now())
		}
	}
}

// AddPeer starts tracking a new connection. We speak first on outbound connections.
func (s *Server) AddPeer(id PeerID, inbound bool) error {
	ps, err := s.peers.CreatePeer(id)
	if err != nil {
		return err
	}

	var version *wire.MsgVersion

	ps.Lock()
	ps.inbound = inbound
	s.scheduler.InitPeer(ps, s.now())

	if !inbound {
		version = s.versionMessage()
		ps.versionSent = true
	}
	ps.Unlock()

	s.logger.Debugf("[NetProcessing] added peer %d (inbound %t)", id, inbound)

	if version != nil {
		s.transport.PushMessage(id, version)
	}

	return nil
}

// RemovePeer forgets a disconnected peer: its block requests are released for other peers and its orphans
// are erased. Removing an unknown peer is a no-op.
func (s *Server) RemovePeer(id PeerID) {
	ps := s.peers.Remove(id)
	if ps == nil {
		return
	}

	ps.Lock()
	s.syncManager.ReleasePeer(ps)
	ps.Unlock()

	erased := s.orphans.RemoveForPeer(id)

	s.logger.Debugf("[NetProcessing] removed peer %d, erased %d orphans", id, erased)
}

// QueueMessage hands a decoded message from the peer to the processor.
func (s *Server) QueueMessage(id PeerID, msg wire.Message) error {
	return s.peers.WithPeer(id, func(ps *PeerState) error {
		if len(ps.inbox) >= maxInboundQueue {
			return errors.NewResourceExhaustedError("peer %d inbound queue full", id)
		}

		ps.inbox = append(ps.inbox, msg)

		return nil
	})
}

// QueueRawMessage decodes a payload and queues it. Payloads that do not decode count as misbehavior.
// Commands we do not know are dropped.
func (s *Server) QueueRawMessage(id PeerID, command string, payload []byte) error {
	ps, err := s.peers.Get(id)
	if err != nil {
		return err
	}

	ps.Lock()
	pver := ps.negotiatedVersion()
	ps.Unlock()

	msg, err := DecodeMessage(command, payload, pver)
	if err != nil {
		_ = s.peers.WithPeer(id, func(ps *PeerState) error {
			s.misbehavior.AddReason(ps, ReasonMalformed, err.Error())
			return nil
		})

		return err
	}

	if msg == nil {
		s.logger.Debugf("[NetProcessing] peer %d sent unknown command %q", id, command)
		return nil
	}

	return s.QueueMessage(id, msg)
}

// Misbehave scores a peer from outside the message layer. It returns whether the peer is to be banned.
func (s *Server) Misbehave(id PeerID, amount int, reason string) (bool, error) {
	var ban bool

	err := s.peers.WithPeer(id, func(ps *PeerState) error {
		ban = s.misbehavior.Misbehave(ps, amount, reason)
		return nil
	})

	return ban, err
}

// GetNodeStateStats returns the diagnostic view of a peer, ERR_NOT_FOUND if it is not connected.
func (s *Server) GetNodeStateStats(id PeerID) (NodeStateStats, error) {
	var stats NodeStateStats

	err := s.peers.WithPeer(id, func(ps *PeerState) error {
		stats = ps.stats()
		return nil
	})

	return stats, err
}

// Peers returns the ids of all connected peers.
func (s *Server) Peers() []PeerID {
	peers := s.peers.Peers()
	ids := make([]PeerID, 0, len(peers))

	for _, ps := range peers {
		ids = append(ids, ps.id)
	}

	return ids
}

// ExtraTransactions returns the recent orphan and conflicted transactions kept for block reconstruction.
func (s *Server) ExtraTransactions() []*wire.MsgTx {
	return s.extraTxn.Items()
}

// OrphanCount returns the number of transactions in the orphan pool.
func (s *Server) OrphanCount() int {
	return s.orphans.Len()
}

// RunPeer drives a single peer until ctx is done or the peer is removed, for transports that do not call
// ProcessMessages and SendMessages themselves.
func (s *Server) RunPeer(ctx context.Context, id PeerID) error {
	sendInterval := s.settings.NetProcessing.SendInterval
	if sendInterval <= 0 {
		return errors.NewConfigurationError("[NetProcessing] sendinterval must be positive, got %s", sendInterval)
	}

	interrupt := atomic.NewBool(false)

	go func() {
		<-ctx.Done()
		interrupt.Store(true)
	}()

	ticker := time.NewTicker(sendInterval)
	defer ticker.Stop()

	for {
		more := s.ProcessMessages(id, interrupt)
		s.SendMessages(id, interrupt)

		if _, err := s.peers.Get(id); err != nil {
			return nil
		}

		if more {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Step runs one processing and sending round for every peer and then handles the queued validation
// events, for drivers that run all peers from one goroutine without Start. It reports whether any peer
// has messages left.
func (s *Server) Step(ctx context.Context) bool {
	interrupt := atomic.NewBool(false)

	var more bool

	for _, id := range s.Peers() {
		if s.ProcessMessages(id, interrupt) {
			more = true
		}

		s.drainEvents(ctx)
		s.SendMessages(id, interrupt)
	}

	s.drainEvents(ctx)

	return more
}

func (s *Server) versionMessage() *wire.MsgVersion {
	me := wire.NewNetAddressIPPort(net.IPv4zero, 0, wire.SFNodeNetwork)
	you := wire.NewNetAddressIPPort(net.IPv4zero, 0, 0)

	msg := wire.NewMsgVersion(me, you, s.nonce, s.syncManager.LocalHeight())
	msg.Services = wire.SFNodeNetwork

	if err := msg.AddUserAgent(s.settings.ClientName, userAgentVersion, s.settings.UserAgentComments()...); err != nil {
		s.logger.Warnf("[NetProcessing] invalid user agent: %v", err)
	}

	return msg
}
