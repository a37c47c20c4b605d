package netprocessing

import (
	"bytes"
	"context"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
	"github.com/bsv-blockchain/go-wire"
	"github.com/bsv-blockchain/peerlogic/errors"
	"github.com/bsv-blockchain/peerlogic/tracing"
	"go.uber.org/atomic"
)

const (
	// MinPeerProtocolVersion is the oldest protocol version we talk to.
	MinPeerProtocolVersion = 31800

	// processBatchSize is the number of queued messages ProcessMessages handles per call.
	processBatchSize = 100

	maxRejectReasonLength = 111

	// maxMoney is 21 million coins in satoshis, fee filters above it are nonsense
	maxMoney = 21_000_000 * 100_000_000

	// unknownFeeRate relays a transaction to every peer regardless of its fee filter
	unknownFeeRate int64 = -1
)

// ProcessMessages handles the messages queued for the peer, at most processBatchSize of them. It returns
// early when interrupt is set or when the peer is due to be disconnected, and reports whether messages
// are left in the queue. A peer due to be disconnected has no work left.
func (s *Server) ProcessMessages(id PeerID, interrupt *atomic.Bool) bool {
	ctx, _, deferFn := tracing.Tracer("netprocessing").Start(context.Background(), "ProcessMessages",
		tracing.WithHistogram(prometheusNetProcessingProcessMessages),
	)
	defer deferFn()

	ps, err := s.peers.Get(id)
	if err != nil {
		return false
	}

	for i := 0; i < processBatchSize; i++ {
		ps.Lock()

		if ps.disconnected || ps.PendingDisconnect() || len(ps.inbox) == 0 {
			ps.Unlock()
			return false
		}

		if interrupt.Load() {
			ps.Unlock()
			return true
		}

		msg := ps.inbox[0]
		ps.inbox[0] = nil
		ps.inbox = ps.inbox[1:]
		ps.Unlock()

		if result := s.Process(ctx, id, msg); result.Stop {
			return false
		}
	}

	ps.Lock()
	defer ps.Unlock()

	return len(ps.inbox) > 0
}

// Process handles a single message from the peer. Already known data is accepted without side effects.
func (s *Server) Process(ctx context.Context, id PeerID, msg wire.Message) ProcessResult {
	result := ProcessResult{Command: msg.Command()}

	ps, err := s.peers.Get(id)
	if err != nil {
		result.Err = err
		result.Stop = true

		return result
	}

	result.Err = s.dispatch(ctx, ps, msg)

	prometheusNetProcessingMessages.WithLabelValues(result.Command, messageOutcome(result.Err)).Inc()

	ps.Lock()
	result.Stop = ps.disconnected || ps.PendingDisconnect()
	ps.Unlock()

	if result.Err != nil {
		s.logger.Debugf("[Process] peer %d %s: %v", id, result.Command, result.Err)
	}

	return result
}

// messageOutcome labels a processed message by what its handler returned.
func messageOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.IsContextError(err):
		return "canceled"
	case errors.IsMisbehaviorError(err):
		return "misbehavior"
	default:
		return "error"
	}
}

func (s *Server) dispatch(ctx context.Context, ps *PeerState, msg wire.Message) error {
	if err := s.checkHandshake(ps, msg); err != nil {
		return err
	}

	switch m := msg.(type) {
	case *wire.MsgVersion:
		return s.onVersion(ps, m)
	case *wire.MsgVerAck:
		return s.onVerAck(ps)
	case *wire.MsgInv:
		return s.onInv(ps, m)
	case *wire.MsgGetData:
		return s.onGetData(ctx, ps, m)
	case *wire.MsgGetHeaders:
		return s.onGetHeaders(ctx, ps, m)
	case *wire.MsgHeaders:
		return s.onHeaders(ctx, ps, m)
	case *wire.MsgBlock:
		return s.onBlock(ctx, ps, m)
	case *wire.MsgTx:
		return s.onTx(ctx, ps, m)
	case *wire.MsgPing:
		s.transport.PushMessage(ps.id, wire.NewMsgPong(m.Nonce))
		return nil
	case *wire.MsgPong:
		return s.onPong(ps, m)
	case *wire.MsgReject:
		s.logger.Debugf("[Process] peer %d rejected our %s %s: %s (%s)", ps.id, m.Cmd, m.Hash, m.Reason, m.Code)
		return nil
	case *wire.MsgFeeFilter:
		return s.onFeeFilter(ps, m)
	case *wire.MsgSendHeaders:
		ps.Lock()
		ps.preferHeaders = true
		ps.Unlock()

		return nil
	case *wire.MsgNotFound:
		return s.onNotFound(ps, m)
	default:
		s.logger.Debugf("[Process] ignoring %s from peer %d", msg.Command(), ps.id)
		return nil
	}
}

// checkHandshake scores messages that arrive before version and verack.
func (s *Server) checkHandshake(ps *PeerState, msg wire.Message) error {
	ps.Lock()
	defer ps.Unlock()

	if ps.disconnected {
		return errors.NewNotFoundError("peer %d disconnected", ps.id)
	}

	switch msg.(type) {
	case *wire.MsgVersion:
		return nil
	case *wire.MsgVerAck:
		if !ps.versionReceived {
			s.misbehavior.AddReason(ps, ReasonMissingVersion, msg.Command())
			return errors.NewProtocolViolationError("%s before version", msg.Command())
		}

		return nil
	}

	if !ps.versionReceived {
		s.misbehavior.AddReason(ps, ReasonMissingVersion, msg.Command())
		return errors.NewProtocolViolationError("%s before version", msg.Command())
	}

	if !ps.verackReceived {
		s.misbehavior.AddReason(ps, ReasonMissingVerack, msg.Command())
		return errors.NewProtocolViolationError("%s before verack", msg.Command())
	}

	return nil
}

func (s *Server) onVersion(ps *PeerState, msg *wire.MsgVersion) error {
	var out []wire.Message

	err := func() error {
		ps.Lock()
		defer ps.Unlock()

		if ps.versionReceived {
			s.misbehavior.AddReason(ps, ReasonDuplicateVersion, "")
			out = append(out, wire.NewMsgReject(msg.Command(), wire.RejectDuplicate, "duplicate version message"))

			return errors.NewProtocolViolationError("duplicate version message")
		}

		if msg.ProtocolVersion < MinPeerProtocolVersion {
			ps.requestDisconnect("obsolete protocol version")
			out = append(out, wire.NewMsgReject(msg.Command(), wire.RejectObsolete, "version too old"))

			return errors.NewProtocolViolationError("protocol version %d is below %d", msg.ProtocolVersion, MinPeerProtocolVersion)
		}

		if msg.Nonce == s.nonce {
			ps.requestDisconnect("connected to self")
			return errors.NewProtocolViolationError("connected to self")
		}

		ps.versionReceived = true
		ps.protocolVersion = min(msg.ProtocolVersion, int32(wire.ProtocolVersion))
		ps.userAgent = msg.UserAgent
		ps.services = msg.Services
		ps.startingHeight = msg.LastBlock

		s.syncManager.UpdatePeerHeight(ps, msg.LastBlock)

		if !ps.versionSent {
			out = append(out, s.versionMessage())
			ps.versionSent = true
		}

		out = append(out, wire.NewMsgVerAck())

		return nil
	}()

	s.push(ps.id, out...)

	if err == nil {
		s.logger.Debugf("[Process] peer %d version %d %s height %d", ps.id, msg.ProtocolVersion, msg.UserAgent, msg.LastBlock)
	}

	return err
}

func (s *Server) onVerAck(ps *PeerState) error {
	ps.Lock()

	if ps.verackReceived {
		ps.Unlock()
		return nil
	}

	ps.verackReceived = true
	ps.Unlock()

	minFee, err := safeconversion.Uint64ToInt64(s.settings.Policy.MinRelayTxFee)
	if err != nil {
		return errors.NewConfigurationError("invalid minrelaytxfee", err)
	}

	s.push(ps.id, wire.NewMsgSendHeaders(), wire.NewMsgFeeFilter(minFee))

	return nil
}

func (s *Server) onInv(ps *PeerState, msg *wire.MsgInv) error {
	if len(msg.InvList) > wire.MaxInvPerMsg {
		ps.Lock()
		s.misbehavior.AddReason(ps, ReasonOversized, "inv")
		ps.Unlock()

		return errors.NewMalformedError("inv with %d entries", len(msg.InvList))
	}

	ps.Lock()

	if !ps.invLimiter.AllowN(s.now(), len(msg.InvList)) {
		s.misbehavior.AddReason(ps, ReasonSpam, "inv rate exceeded")
		ps.Unlock()

		return errors.NewProtocolViolationError("inv rate exceeded")
	}

	for _, iv := range msg.InvList {
		s.scheduler.MarkKnown(ps, *iv)
	}
	ps.Unlock()

	var (
		unknownBlock bool
		getData      = wire.NewMsgGetData()
	)

	for _, iv := range msg.InvList {
		switch iv.Type {
		case wire.InvTypeBlock:
			if !s.engine.HaveBlock(&iv.Hash) {
				unknownBlock = true
			}
		case wire.InvTypeTx:
			if s.wantTransaction(iv.Hash) {
				s.askedFor.Set(iv.Hash, ps.id)
				_ = getData.AddInvVect(iv)
			}
		}
	}

	if unknownBlock {
		ps.Lock()
		ps.needHeaders = true
		ps.Unlock()
	}

	if len(getData.InvList) > 0 {
		s.push(ps.id, getData)
	}

	return nil
}

// wantTransaction reports whether a transaction is worth asking for.
func (s *Server) wantTransaction(hash chainhash.Hash) bool {
	if _, rejected := s.recentRejects.Get(hash); rejected {
		return false
	}

	if _, asked := s.askedFor.Get(hash); asked {
		return false
	}

	if s.orphans.Has(hash) {
		return false
	}

	return !s.engine.HaveTransaction(&hash)
}

func (s *Server) onGetData(ctx context.Context, ps *PeerState, msg *wire.MsgGetData) error {
	if len(msg.InvList) > wire.MaxInvPerMsg {
		ps.Lock()
		s.misbehavior.AddReason(ps, ReasonOversized, "getdata")
		ps.Unlock()

		return errors.NewMalformedError("getdata with %d entries", len(msg.InvList))
	}

	notFound := wire.NewMsgNotFound()
	sent := make([]wire.InvVect, 0, len(msg.InvList))

	for _, iv := range msg.InvList {
		var reply wire.Message

		switch iv.Type {
		case wire.InvTypeTx:
			if tx, err := s.engine.GetTransaction(ctx, &iv.Hash); err == nil {
				reply = tx
			}
		case wire.InvTypeBlock:
			block, err := s.engine.GetBlock(ctx, &iv.Hash)
			if err == nil && block.SerializeSize() <= s.settings.GetMaxBlockSize() {
				reply = block
			}
		default:
			s.logger.Warnf("[Process] unknown type in inventory request %d from peer %d", iv.Type, ps.id)
			continue
		}

		if reply == nil {
			_ = notFound.AddInvVect(iv)
			continue
		}

		s.transport.PushMessage(ps.id, reply)
		sent = append(sent, *iv)
	}

	if len(notFound.InvList) > 0 {
		s.transport.PushMessage(ps.id, notFound)
	}

	ps.Lock()
	for _, iv := range sent {
		s.scheduler.MarkKnown(ps, iv)
	}
	ps.Unlock()

	return nil
}

func (s *Server) onGetHeaders(ctx context.Context, ps *PeerState, msg *wire.MsgGetHeaders) error {
	if s.syncManager.InitialDownload() {
		return nil
	}

	headers, err := s.engine.LocateHeaders(ctx, msg.BlockLocatorHashes, &msg.HashStop, wire.MaxBlockHeadersPerMsg)
	if err != nil {
		return errors.NewProcessingError("could not locate headers for peer %d", ps.id, err)
	}

	reply := wire.NewMsgHeaders()
	for _, header := range headers {
		_ = reply.AddBlockHeader(header)
	}

	s.transport.PushMessage(ps.id, reply)

	return nil
}

func (s *Server) onHeaders(ctx context.Context, ps *PeerState, msg *wire.MsgHeaders) error {
	if len(msg.Headers) > wire.MaxBlockHeadersPerMsg {
		ps.Lock()
		s.misbehavior.AddReason(ps, ReasonOversized, "headers")
		ps.Unlock()

		return errors.NewMalformedError("headers with %d entries", len(msg.Headers))
	}

	for i := 1; i < len(msg.Headers); i++ {
		if msg.Headers[i].PrevBlock != msg.Headers[i-1].BlockHash() {
			ps.Lock()
			s.misbehavior.AddReason(ps, ReasonNonContinuousHeaders, "")
			ps.Unlock()

			return errors.NewProtocolViolationError("non-continuous headers sequence")
		}
	}

	now := s.now()

	if len(msg.Headers) == 0 {
		ps.Lock()
		defer ps.Unlock()

		return s.syncManager.OnHeaders(ps, nil, false, now)
	}

	infos, err := s.engine.ProcessBlockHeaders(ctx, msg.Headers)

	switch {
	case errors.Is(err, errors.ErrBlockParentUnknown):
		ps.Lock()
		defer ps.Unlock()

		_, err = s.syncManager.OnUnconnectingHeaders(ps, now)

		return err
	case errors.Is(err, errors.ErrBlockInvalid):
		ps.Lock()
		s.misbehavior.AddReason(ps, ReasonInvalidBlock, "invalid header")
		ps.Unlock()

		s.transport.PushMessage(ps.id, wire.NewMsgReject(msg.Command(), wire.RejectInvalid, truncateReason(err.Error())))

		return err
	case err != nil:
		return errors.NewProcessingError("could not process headers from peer %d", ps.id, err)
	}

	ps.Lock()
	defer ps.Unlock()

	if ps.disconnected {
		return errors.NewNotFoundError("peer %d disconnected", ps.id)
	}

	for _, header := range msg.Headers {
		s.scheduler.MarkKnown(ps, wire.InvVect{Type: wire.InvTypeBlock, Hash: header.BlockHash()})
	}

	return s.syncManager.OnHeaders(ps, infos, len(msg.Headers) == wire.MaxBlockHeadersPerMsg, now)
}

func (s *Server) onBlock(ctx context.Context, ps *PeerState, msg *wire.MsgBlock) error {
	if len(msg.Transactions) == 0 {
		ps.Lock()
		s.misbehavior.AddReason(ps, ReasonMalformed, "block without transactions")
		ps.Unlock()

		return errors.NewMalformedError("block without transactions")
	}

	hash := msg.BlockHash()
	now := s.now()

	ps.Lock()
	s.scheduler.MarkKnown(ps, wire.InvVect{Type: wire.InvTypeBlock, Hash: hash})
	_, requested, err := s.syncManager.OnBlockReceived(ps, hash, now)
	ps.Unlock()

	if err != nil {
		return err
	}

	if s.engine.HaveBlock(&hash) {
		return nil
	}

	if !requested {
		ps.Lock()
		s.misbehavior.AddReason(ps, ReasonProtocolViolation, "unrequested block "+hash.String())
		ps.Unlock()

		return errors.NewProtocolViolationError("unrequested block %s", hash)
	}

	if err = s.engine.CheckBlockHeader(&msg.Header); err != nil {
		ps.Lock()
		s.misbehavior.AddReason(ps, ReasonInvalidBlock, err.Error())
		ps.Unlock()

		s.transport.PushMessage(ps.id, rejectFor(msg.Command(), wire.RejectInvalid, err.Error(), hash))

		return errors.NewBlockInvalidError("block %s has an invalid header", hash, err)
	}

	s.blockSource.Set(hash, ps.id)

	if err = s.engine.SubmitBlock(ctx, msg); err != nil {
		s.blockSource.Delete(hash)

		if errors.Is(err, errors.ErrBlockInvalid) {
			ps.Lock()
			s.misbehavior.AddReason(ps, ReasonInvalidBlock, err.Error())
			ps.Unlock()

			s.transport.PushMessage(ps.id, rejectFor(msg.Command(), wire.RejectInvalid, err.Error(), hash))
		}

		return err
	}

	return nil
}

func (s *Server) onTx(ctx context.Context, ps *PeerState, msg *wire.MsgTx) error {
	if len(msg.TxIn) == 0 || len(msg.TxOut) == 0 {
		ps.Lock()
		s.misbehavior.AddReason(ps, ReasonMalformed, "transaction without inputs or outputs")
		ps.Unlock()

		return errors.NewMalformedError("transaction without inputs or outputs")
	}

	hash := msg.TxHash()

	ps.Lock()
	s.scheduler.MarkKnown(ps, wire.InvVect{Type: wire.InvTypeTx, Hash: hash})
	ps.Unlock()

	s.askedFor.Delete(hash)

	if _, rejected := s.recentRejects.Get(hash); rejected || s.orphans.Has(hash) || s.engine.HaveTransaction(&hash) {
		return nil
	}

	result := s.engine.SubmitTransaction(ctx, msg)

	switch {
	case result.Accepted:
		s.relayTransaction(hash, feeRate(result))
		s.processOrphans(ctx, []chainhash.Hash{hash})

		return nil

	case len(result.MissingInputs) > 0:
		return s.handleOrphan(ps, msg, hash, result.MissingInputs)

	default:
		s.rejectTransaction(ps.id, msg, hash, result)

		if result.DoS > 0 {
			ps.Lock()
			s.misbehavior.Misbehave(ps, result.DoS, ReasonInvalidTx.String()+": "+result.Reason)
			ps.Unlock()
		}

		return errors.NewTxInvalidError("transaction %s rejected: %s", hash, result.Reason)
	}
}

func (s *Server) handleOrphan(ps *PeerState, tx *wire.MsgTx, hash chainhash.Hash, missing []chainhash.Hash) error {
	for _, parent := range missing {
		if _, rejected := s.recentRejects.Get(parent); rejected {
			s.recentRejects.Set(hash, struct{}{})
			s.logger.Debugf("[Process] not keeping orphan %s from peer %d, parent %s was rejected", hash, ps.id, parent)

			return nil
		}
	}

	if size := tx.SerializeSize(); size > s.settings.NetProcessing.MaxOrphanTxSize {
		s.logger.Debugf("[Process] ignoring large orphan %s of %d bytes from peer %d", hash, size, ps.id)
		return nil
	}

	if err := s.orphans.Add(tx, missing, ps.id); err != nil {
		if errors.Is(err, errors.ErrAlreadyPresent) {
			return nil
		}

		return err
	}

	s.extraTxn.Add(tx)

	getData := wire.NewMsgGetData()

	for _, parent := range missing {
		if !s.wantTransaction(parent) {
			continue
		}

		s.askedFor.Set(parent, ps.id)

		parentHash := parent
		_ = getData.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &parentHash))
	}

	if len(getData.InvList) > 0 {
		s.transport.PushMessage(ps.id, getData)
	}

	return nil
}

func (s *Server) rejectTransaction(id PeerID, tx *wire.MsgTx, hash chainhash.Hash, result TxValidationResult) {
	s.recentRejects.Set(hash, struct{}{})

	code := result.RejectCode
	if code == 0 {
		code = wire.RejectInvalid
	}

	s.transport.PushMessage(id, rejectFor(tx.Command(), code, result.Reason, hash))
	s.rejectNotifier.Notify(hash, id, code, result.Reason)
}

// processOrphans retries the orphans waiting on the given transactions, and on the orphans accepted in
// turn, until nothing more resolves.
func (s *Server) processOrphans(ctx context.Context, parents []chainhash.Hash) {
	work := append([]chainhash.Hash(nil), parents...)

	for len(work) > 0 {
		parent := work[0]
		work = work[1:]

		for orphan := range s.orphans.ResolveInput(parent) {
			result := s.engine.SubmitTransaction(ctx, orphan.Tx)

			switch {
			case result.Accepted:
				s.logger.Debugf("[processOrphans] accepted orphan %s", orphan.Hash)
				s.relayTransaction(orphan.Hash, feeRate(result))

				work = append(work, orphan.Hash)

			case len(result.MissingInputs) > 0:
				if err := s.orphans.Add(orphan.Tx, result.MissingInputs, orphan.FromPeer); err != nil && !errors.Is(err, errors.ErrAlreadyPresent) {
					s.logger.Warnf("[processOrphans] could not re-add orphan %s: %v", orphan.Hash, err)
				}

			default:
				s.rejectTransaction(orphan.FromPeer, orphan.Tx, orphan.Hash, result)

				if result.DoS > 0 {
					_, _ = s.Misbehave(orphan.FromPeer, result.DoS, ReasonInvalidTx.String()+": orphan "+result.Reason)
				}
			}
		}
	}
}

// relayTransaction queues the transaction for announcement to every peer whose fee filter it passes.
// Must not be called with a peer lock held.
func (s *Server) relayTransaction(hash chainhash.Hash, rate int64) {
	if rate != unknownFeeRate && uint64(rate) < s.settings.Policy.MinRelayTxFee { //nolint:gosec // rate is not negative here
		return
	}

	item := wire.InvVect{Type: wire.InvTypeTx, Hash: hash}

	for _, ps := range s.peers.Peers() {
		ps.Lock()

		if !ps.disconnected && ps.verackReceived && (rate == unknownFeeRate || ps.feeFilter <= rate) {
			s.scheduler.Enqueue(ps, item)
		}

		ps.Unlock()
	}
}

// relayBlock announces a block to every peer, as a header to those that asked for headers. With
// headersOnly only those peers are told. Must not be called with a peer lock held.
func (s *Server) relayBlock(header *wire.BlockHeader, headersOnly bool) {
	item := wire.InvVect{Type: wire.InvTypeBlock, Hash: header.BlockHash()}

	for _, ps := range s.peers.Peers() {
		ps.Lock()

		switch {
		case ps.disconnected || !ps.verackReceived:
		case ps.preferHeaders:
			s.scheduler.QueueHeaderAnnouncement(ps, header)
		case !headersOnly:
			s.scheduler.Enqueue(ps, item)
		}

		ps.Unlock()
	}
}

func (s *Server) onPong(ps *PeerState, msg *wire.MsgPong) error {
	ps.Lock()
	defer ps.Unlock()

	if ps.pingNonce == 0 || msg.Nonce != ps.pingNonce {
		return nil
	}

	ps.pingLatency = s.now().Sub(ps.pingSent)
	ps.pingNonce = 0

	return nil
}

func (s *Server) onFeeFilter(ps *PeerState, msg *wire.MsgFeeFilter) error {
	if msg.MinFee < 0 || msg.MinFee > maxMoney {
		s.logger.Debugf("[Process] ignoring feefilter %d from peer %d", msg.MinFee, ps.id)
		return nil
	}

	ps.Lock()
	ps.feeFilter = msg.MinFee
	ps.Unlock()

	return nil
}

func (s *Server) onNotFound(ps *PeerState, msg *wire.MsgNotFound) error {
	now := s.now()

	ps.Lock()
	defer ps.Unlock()

	for _, iv := range msg.InvList {
		switch iv.Type {
		case wire.InvTypeBlock:
			if err := s.syncManager.OnNotFound(ps, iv.Hash, now); err != nil {
				return err
			}
		case wire.InvTypeTx:
			if owner, ok := s.askedFor.Get(iv.Hash); ok && owner == ps.id {
				s.askedFor.Delete(iv.Hash)
			}
		}
	}

	return nil
}

func (s *Server) push(id PeerID, msgs ...wire.Message) {
	for _, msg := range msgs {
		s.transport.PushMessage(id, msg)
	}
}

func feeRate(result TxValidationResult) int64 {
	rate, err := safeconversion.Uint64ToInt64(result.FeeRate())
	if err != nil {
		return unknownFeeRate
	}

	return rate
}

func rejectFor(command string, code wire.RejectCode, reason string, hash chainhash.Hash) *wire.MsgReject {
	msg := wire.NewMsgReject(command, code, truncateReason(reason))
	msg.Hash = hash

	return msg
}

func truncateReason(reason string) string {
	if len(reason) > maxRejectReasonLength {
		return reason[:maxRejectReasonLength]
	}

	return reason
}

// DecodeMessage decodes the payload of a message with the given command. Unknown commands decode to nil
// without error; payloads that do not decode return ERR_MALFORMED.
func DecodeMessage(command string, payload []byte, pver uint32) (wire.Message, error) {
	var msg wire.Message

	switch command {
	case wire.CmdVersion:
		msg = &wire.MsgVersion{}
	case wire.CmdVerAck:
		msg = &wire.MsgVerAck{}
	case wire.CmdInv:
		msg = &wire.MsgInv{}
	case wire.CmdGetData:
		msg = &wire.MsgGetData{}
	case wire.CmdNotFound:
		msg = &wire.MsgNotFound{}
	case wire.CmdGetHeaders:
		msg = &wire.MsgGetHeaders{}
	case wire.CmdHeaders:
		msg = &wire.MsgHeaders{}
	case wire.CmdBlock:
		msg = &wire.MsgBlock{}
	case wire.CmdTx:
		msg = &wire.MsgTx{}
	case wire.CmdPing:
		msg = &wire.MsgPing{}
	case wire.CmdPong:
		msg = &wire.MsgPong{}
	case wire.CmdReject:
		msg = &wire.MsgReject{}
	case wire.CmdFeeFilter:
		msg = &wire.MsgFeeFilter{}
	case wire.CmdSendHeaders:
		msg = &wire.MsgSendHeaders{}
	default:
		return nil, nil
	}

	if maxLen := msg.MaxPayloadLength(pver); uint64(len(payload)) > uint64(maxLen) {
		return nil, errors.NewMalformedError("%s payload of %d bytes exceeds %d", command, len(payload), maxLen)
	}

	if err := msg.Bsvdecode(bytes.NewReader(payload), pver, wire.BaseEncoding); err != nil {
		return nil, errors.NewMalformedError("could not decode %s", command, err)
	}

	return msg, nil
}

// EncodeMessage is the inverse of DecodeMessage.
func EncodeMessage(msg wire.Message, pver uint32) ([]byte, error) {
	var buf bytes.Buffer

	if err := msg.BsvEncode(&buf, pver, wire.BaseEncoding); err != nil {
		return nil, errors.NewProcessingError("could not encode %s", msg.Command(), err)
	}

	return buf.Bytes(), nil
}

