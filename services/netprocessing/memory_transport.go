package netprocessing

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/bsv-blockchain/peerlogic/errors"
)

// SimulatedPeer is the remote end of a MemoryTransport connection. It answers from its own chain.
type SimulatedPeer struct {
	Chain *MemoryChain

	// StallAt is a height whose block is never sent, 0 to send everything
	StallAt int32

	// IgnoreGetHeaders leaves every getheaders unanswered
	IgnoreGetHeaders bool

	nonce uint64
}

// NewSimulatedPeer creates a remote peer serving the given chain.
func NewSimulatedPeer(chain *MemoryChain) *SimulatedPeer {
	return &SimulatedPeer{Chain: chain, nonce: wire.RandomUint64()}
}

func (p *SimulatedPeer) respond(ctx context.Context, msg wire.Message) []wire.Message {
	switch m := msg.(type) {
	case *wire.MsgVersion:
		me := wire.NewNetAddressIPPort(net.IPv4zero, 0, wire.SFNodeNetwork)
		you := wire.NewNetAddressIPPort(net.IPv4zero, 0, 0)

		version := wire.NewMsgVersion(me, you, p.nonce, p.Chain.BestHeight())
		version.Services = wire.SFNodeNetwork
		_ = version.AddUserAgent("simulated", "0.1")

		return []wire.Message{version, wire.NewMsgVerAck()}

	case *wire.MsgGetHeaders:
		if p.IgnoreGetHeaders {
			return nil
		}

		headers, err := p.Chain.LocateHeaders(ctx, m.BlockLocatorHashes, &m.HashStop, wire.MaxBlockHeadersPerMsg)
		if err != nil {
			return nil
		}

		reply := wire.NewMsgHeaders()
		for _, header := range headers {
			_ = reply.AddBlockHeader(header)
		}

		return []wire.Message{reply}

	case *wire.MsgGetData:
		return p.onGetData(ctx, m)

	case *wire.MsgPing:
		return []wire.Message{wire.NewMsgPong(m.Nonce)}

	default:
		return nil
	}
}

func (p *SimulatedPeer) onGetData(ctx context.Context, msg *wire.MsgGetData) []wire.Message {
	var (
		replies  []wire.Message
		notFound = wire.NewMsgNotFound()
		stalled  chainhash.Hash
	)

	if p.StallAt > 0 {
		if block, ok := p.Chain.BlockAt(p.StallAt); ok {
			stalled = block.BlockHash()
		}
	}

	for _, iv := range msg.InvList {
		switch iv.Type {
		case wire.InvTypeBlock:
			if iv.Hash == stalled {
				continue
			}

			block, err := p.Chain.GetBlock(ctx, &iv.Hash)
			if err != nil {
				_ = notFound.AddInvVect(iv)
				continue
			}

			replies = append(replies, block)

		case wire.InvTypeTx:
			tx, err := p.Chain.GetTransaction(ctx, &iv.Hash)
			if err != nil {
				_ = notFound.AddInvVect(iv)
				continue
			}

			replies = append(replies, tx)
		}
	}

	if len(notFound.InvList) > 0 {
		replies = append(replies, notFound)
	}

	return replies
}

// MemoryTransport connects a Server to simulated peers in the same process. Messages pushed to a peer are
// answered synchronously and the answers are queued on the server.
type MemoryTransport struct {
	mu           sync.Mutex
	server       *Server
	remotes      map[PeerID]*SimulatedPeer
	sent         map[PeerID][]wire.Message
	disconnected map[PeerID]string
	banned       map[PeerID]time.Time
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		remotes:      make(map[PeerID]*SimulatedPeer),
		sent:         make(map[PeerID][]wire.Message),
		disconnected: make(map[PeerID]string),
		banned:       make(map[PeerID]time.Time),
	}
}

// Attach sets the server that receives the answers of the simulated peers.
func (t *MemoryTransport) Attach(server *Server) {
	t.mu.Lock()
	t.server = server
	t.mu.Unlock()
}

// Connect registers the remote peer and adds it to the server as an outbound connection.
func (t *MemoryTransport) Connect(id PeerID, remote *SimulatedPeer) error {
	t.mu.Lock()
	server := t.server

	if server == nil {
		t.mu.Unlock()
		return errors.NewServiceNotStartedError("memory transport not attached")
	}

	t.remotes[id] = remote
	t.mu.Unlock()

	return server.AddPeer(id, false)
}

func (t *MemoryTransport) PushMessage(id PeerID, msg wire.Message) {
	t.mu.Lock()
	t.sent[id] = append(t.sent[id], msg)
	remote := t.remotes[id]
	server := t.server
	t.mu.Unlock()

	if remote == nil || server == nil {
		return
	}

	for _, reply := range remote.respond(context.Background(), msg) {
		if err := server.QueueMessage(id, reply); err != nil {
			return
		}
	}
}

func (t *MemoryTransport) Disconnect(id PeerID, reason string) {
	t.mu.Lock()
	t.disconnected[id] = reason
	delete(t.remotes, id)
	server := t.server
	t.mu.Unlock()

	if server != nil {
		server.RemovePeer(id)
	}
}

func (t *MemoryTransport) Ban(id PeerID, until time.Time, _ string) {
	t.mu.Lock()
	t.banned[id] = until
	t.mu.Unlock()
}

// Sent returns the messages pushed to the peer so far.
func (t *MemoryTransport) Sent(id PeerID) []wire.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]wire.Message(nil), t.sent[id]...)
}

// Disconnected returns the reason the peer was disconnected for.
func (t *MemoryTransport) Disconnected(id PeerID) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	reason, ok := t.disconnected[id]

	return reason, ok
}

// Banned reports whether the peer was banned and until when.
func (t *MemoryTransport) Banned(id PeerID) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	until, ok := t.banned[id]

	return until, ok
}
