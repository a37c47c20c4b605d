package netprocessing

import (
	"context"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/bsv-blockchain/peerlogic/tracing"
	"go.uber.org/atomic"
)

// SendMessages runs one send cycle for the peer: stall and timeout checks, header and block requests,
// inventory and header announcements and keep-alive pings. Once the cycle's work is out, a peer flagged
// for disconnect or ban is handed to the transport. It returns early, reporting more work, when interrupt
// is set.
func (s *Server) SendMessages(id PeerID, interrupt *atomic.Bool) bool {
	_, _, deferFn := tracing.Tracer("netprocessing").Start(context.Background(), "SendMessages",
		tracing.WithHistogram(prometheusNetProcessingSendMessages),
	)
	defer deferFn()

	ps, err := s.peers.Get(id)
	if err != nil {
		return false
	}

	if interrupt.Load() {
		return true
	}

	now := s.now()

	if !s.sendSyncRequests(ps, now) {
		return false
	}

	if interrupt.Load() {
		return true
	}

	if !s.sendAnnouncements(ps, now) {
		return false
	}

	if interrupt.Load() {
		return true
	}

	s.signalDisconnect(ps)

	return false
}

// sendSyncRequests handles stalls and timeouts and sends the getheaders and getdata messages the sync
// state machine asks for. It returns false when the peer is gone.
func (s *Server) sendSyncRequests(ps *PeerState, now time.Time) bool {
	ps.Lock()

	if ps.disconnected {
		ps.Unlock()
		return false
	}

	if _, _, err := s.syncManager.CheckStall(ps, now); err != nil {
		s.logger.Errorf("[SendMessages] peer %d: %v", ps.id, err)
	}

	if _, err := s.syncManager.CheckHeadersTimeout(ps, now); err != nil {
		s.logger.Errorf("[SendMessages] peer %d: %v", ps.id, err)
	}

	if ps.PendingDisconnect() || !ps.verackReceived {
		ps.Unlock()
		return true
	}

	requestHeaders := s.syncManager.NeedsHeaders(ps)
	if requestHeaders {
		if err := s.syncManager.BeginHeadersRequest(ps, now); err != nil {
			s.logger.Errorf("[SendMessages] peer %d: %v", ps.id, err)

			requestHeaders = false
		}
	}

	candidates := s.syncManager.BlockCandidates(ps)
	ps.Unlock()

	if requestHeaders {
		getHeaders := wire.NewMsgGetHeaders()
		for _, hash := range s.engine.BlockLocator() {
			_ = getHeaders.AddBlockLocatorHash(hash)
		}

		s.transport.PushMessage(ps.id, getHeaders)
	}

	if len(candidates) == 0 {
		return true
	}

	stored := make(map[chainhash.Hash]struct{})

	for _, c := range candidates {
		hash := c.Hash
		if s.engine.HaveBlock(&hash) {
			stored[hash] = struct{}{}
		}
	}

	ps.Lock()

	if ps.disconnected {
		ps.Unlock()
		return false
	}

	requests, err := s.syncManager.RequestBlocks(ps, candidates, stored, now)
	ps.Unlock()

	if err != nil {
		s.logger.Errorf("[SendMessages] peer %d: %v", ps.id, err)
	}

	for len(requests) > 0 {
		n := min(len(requests), wire.MaxInvPerMsg)

		getData := wire.NewMsgGetData()
		for _, iv := range requests[:n] {
			_ = getData.AddInvVect(iv)
		}

		s.transport.PushMessage(ps.id, getData)

		requests = requests[n:]
	}

	return true
}

// sendAnnouncements flushes queued headers and inventory and pings the peer when due.
func (s *Server) sendAnnouncements(ps *PeerState, now time.Time) bool {
	var (
		headers []*wire.BlockHeader
		items   []wire.InvVect
		ping    *wire.MsgPing
	)

	ps.Lock()

	if ps.disconnected {
		ps.Unlock()
		return false
	}

	if ps.verackReceived && !ps.PendingDisconnect() {
		headers = s.scheduler.TakeHeaderAnnouncements(ps)

		if s.scheduler.DueForFlush(ps, now) {
			items = s.scheduler.Flush(ps, now)
		}

		if ps.pingNonce == 0 && now.Sub(ps.lastPing) >= s.settings.NetProcessing.PingInterval {
			ps.pingNonce = wire.RandomUint64()
			ps.pingSent = now
			ps.lastPing = now
			ping = wire.NewMsgPing(ps.pingNonce)
		}
	}

	ps.knownInv.DeleteExpired()
	ps.Unlock()

	for len(headers) > 0 {
		n := min(len(headers), wire.MaxBlockHeadersPerMsg)

		msg := wire.NewMsgHeaders()
		for _, header := range headers[:n] {
			_ = msg.AddBlockHeader(header)
		}

		s.transport.PushMessage(ps.id, msg)

		headers = headers[n:]
	}

	for len(items) > 0 {
		n := min(len(items), wire.MaxInvPerMsg)

		inv := wire.NewMsgInv()
		for i := range items[:n] {
			_ = inv.AddInvVect(&items[i])
		}

		s.transport.PushMessage(ps.id, inv)

		items = items[n:]
	}

	if ping != nil {
		s.transport.PushMessage(ps.id, ping)
	}

	return true
}

// signalDisconnect hands a flagged peer to the transport, once.
func (s *Server) signalDisconnect(ps *PeerState) {
	ps.Lock()

	if ps.disconnected || !ps.PendingDisconnect() || ps.disconnectSignalled {
		ps.Unlock()
		return
	}

	ps.disconnectSignalled = true
	ban := ps.pendingBan
	reason := ps.disconnectReason
	ps.Unlock()

	if ban {
		prometheusNetProcessingBans.Inc()
		s.logger.Warnf("[SendMessages] banning peer %d: %s", ps.id, reason)
		s.transport.Ban(ps.id, s.misbehavior.BanUntil(), reason)
	} else {
		prometheusNetProcessingDisconnects.Inc()
		s.logger.Infof("[SendMessages] disconnecting peer %d: %s", ps.id, reason)
	}

	s.transport.Disconnect(ps.id, reason)
}
