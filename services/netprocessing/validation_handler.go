package netprocessing

import (
	"context"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/bsv-blockchain/peerlogic/errors"
	"github.com/bsv-blockchain/peerlogic/tracing"
)

// ValidationEventType tags the events the validation engine reports back to us.
type ValidationEventType int

const (
	// EventBlockConnected is sent for every block connected to the active chain.
	EventBlockConnected ValidationEventType = iota + 1
	// EventUpdatedBlockTip is sent once the active chain tip has moved.
	EventUpdatedBlockTip
	// EventBlockChecked carries the final validation result of a block.
	EventBlockChecked
	// EventNewPoWValidBlock is sent for a block with valid proof of work before it is fully validated.
	EventNewPoWValidBlock
)

func (t ValidationEventType) String() string {
	switch t {
	case EventBlockConnected:
		return "BlockConnected"
	case EventUpdatedBlockTip:
		return "UpdatedBlockTip"
	case EventBlockChecked:
		return "BlockChecked"
	case EventNewPoWValidBlock:
		return "NewPoWValidBlock"
	default:
		return "Unknown"
	}
}

// ValidationEvent is a single notification from the validation engine. Which fields are set depends on
// Type.
type ValidationEvent struct {
	Type ValidationEventType

	// BlockConnected, BlockChecked, NewPoWValidBlock
	Block *wire.MsgBlock

	// BlockConnected, UpdatedBlockTip
	Height int32

	// BlockConnected: transactions that became eligible for relay again, e.g. from disconnected blocks
	Displaced []*wire.MsgTx

	// UpdatedBlockTip
	Header          *wire.BlockHeader
	InitialDownload bool

	// BlockChecked: Err is nil for a valid block
	Err        error
	RejectCode wire.RejectCode
	DoS        int
}

// Notify queues an event for the event loop. It blocks while the queue is full and fails when ctx is done
// first. Events are handled in the order they were queued.
func (s *Server) Notify(ctx context.Context, event ValidationEvent) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return errors.NewContextCanceledError("[Notify] %s not delivered", event.Type, ctx.Err())
	}
}

func (s *Server) eventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-s.events:
			if err := s.HandleEvent(ctx, event); err != nil {
				s.logger.Errorf("[eventLoop] %s: %v", event.Type, err)
			}
		}
	}
}

// drainEvents handles every queued event without blocking.
func (s *Server) drainEvents(ctx context.Context) {
	for {
		select {
		case event := <-s.events:
			if err := s.HandleEvent(ctx, event); err != nil {
				s.logger.Errorf("[drainEvents] %s: %v", event.Type, err)
			}
		default:
			return
		}
	}
}

// HandleEvent applies a validation event to peer state. It may be called concurrently with message
// processing for any peer.
func (s *Server) HandleEvent(ctx context.Context, event ValidationEvent) error {
	ctx, _, deferFn := tracing.Tracer("netprocessing").Start(ctx, "HandleEvent",
		tracing.WithHistogram(prometheusNetProcessingHandleValidationEvent),
		tracing.WithCounter(prometheusNetProcessingValidationEvents.WithLabelValues(event.Type.String())),
		tracing.WithTag("type", event.Type.String()),
		tracing.WithLogMessage(s.logger, "[HandleEvent] %s at height %d", event.Type, event.Height),
	)
	defer deferFn()

	switch event.Type {
	case EventBlockConnected:
		return s.blockConnected(ctx, event)
	case EventUpdatedBlockTip:
		return s.updatedBlockTip(event)
	case EventBlockChecked:
		return s.blockChecked(event)
	case EventNewPoWValidBlock:
		return s.newPoWValidBlock(event)
	default:
		return errors.NewInvalidArgumentError("unknown validation event type %d", event.Type)
	}
}

func (s *Server) blockConnected(ctx context.Context, event ValidationEvent) error {
	if event.Block == nil {
		return errors.NewInvalidArgumentError("BlockConnected without block")
	}

	if event.Height > s.syncManager.LocalHeight() {
		s.syncManager.SetLocalHeight(event.Height)
	}

	if removed := s.orphans.RemoveForBlock(event.Block); removed > 0 {
		s.logger.Debugf("[BlockConnected] erased %d orphans included in or conflicting with block %s", removed, event.Block.BlockHash())
	}

	parents := make([]chainhash.Hash, 0, len(event.Block.Transactions))
	for _, tx := range event.Block.Transactions {
		parents = append(parents, tx.TxHash())
	}

	s.processOrphans(ctx, parents)

	for _, tx := range event.Displaced {
		s.extraTxn.Add(tx)

		hash := tx.TxHash()
		if s.engine.HaveTransaction(&hash) {
			s.relayTransaction(hash, unknownFeeRate)
		}
	}

	return nil
}

func (s *Server) updatedBlockTip(event ValidationEvent) error {
	s.syncManager.SetLocalHeight(event.Height)

	if event.InitialDownload || s.syncManager.InitialDownload() || event.Header == nil {
		return nil
	}

	s.relayBlock(event.Header, false)

	return nil
}

func (s *Server) blockChecked(event ValidationEvent) error {
	if event.Block == nil {
		return errors.NewInvalidArgumentError("BlockChecked without block")
	}

	hash := event.Block.BlockHash()

	source, ok := s.blockSource.Get(hash)
	s.blockSource.Delete(hash)

	if event.Err == nil || !ok {
		return nil
	}

	s.logger.Infof("[BlockChecked] block %s from peer %d is invalid: %v", hash, source, event.Err)

	if event.DoS <= 0 {
		return nil
	}

	err := s.peers.WithPeer(source, func(ps *PeerState) error {
		s.misbehavior.Misbehave(ps, event.DoS, ReasonInvalidBlock.String()+": "+event.Err.Error())
		return nil
	})
	if err != nil {
		// the peer is gone already
		return nil
	}

	s.transport.PushMessage(source, wire.NewMsgReject(wire.CmdBlock, event.RejectCode, truncateReason(event.Err.Error())))

	return nil
}

func (s *Server) newPoWValidBlock(event ValidationEvent) error {
	if event.Block == nil {
		return errors.NewInvalidArgumentError("NewPoWValidBlock without block")
	}

	if s.syncManager.InitialDownload() {
		return nil
	}

	header := event.Block.Header
	s.relayBlock(&header, true)

	return nil
}
