package netprocessing

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-wire"
	"github.com/bsv-blockchain/peerlogic/settings"
	"github.com/bsv-blockchain/peerlogic/ulogger"
	"github.com/bsv-blockchain/peerlogic/util/test"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testServer struct {
	*Server
	chain     *MemoryChain
	transport *MemoryTransport
	clock     *fakeClock
}

func newTestServer(t *testing.T, modify ...func(s *settings.Settings)) *testServer {
	t.Helper()

	tSettings := test.CreateBaseTestSettings(t)
	for _, fn := range modify {
		fn(tSettings)
	}

	chain := NewMemoryChain()
	transport := NewMemoryTransport()
	clock := newFakeClock()

	s := New(&ulogger.TestLogger{}, tSettings, chain, transport)
	s.now = clock.Now
	s.peers.now = clock.Now
	s.orphans.now = clock.Now
	s.misbehavior.now = clock.Now

	chain.SetNotifier(s)
	transport.Attach(s)

	require.NoError(t, s.Init(t.Context()))

	return &testServer{Server: s, chain: chain, transport: transport, clock: clock}
}

// handshake registers an inbound peer and completes the version handshake with it.
func (ts *testServer) handshake(t *testing.T, id PeerID, height int32) {
	t.Helper()

	require.NoError(t, ts.AddPeer(id, true))

	result := ts.Process(t.Context(), id, testVersion(height))
	require.NoError(t, result.Err)

	result = ts.Process(t.Context(), id, wire.NewMsgVerAck())
	require.NoError(t, result.Err)
}

// run steps the server until no peer has queued messages, at most rounds times.
func (ts *testServer) run(t *testing.T, rounds int) {
	t.Helper()

	for i := 0; i < rounds; i++ {
		if !ts.Step(t.Context()) && !ts.anyQueued() {
			// one more round so the sender sees the final state
			ts.Step(t.Context())
			return
		}
	}
}

func (ts *testServer) anyQueued() bool {
	for _, ps := range ts.peers.Peers() {
		ps.Lock()
		queued := len(ps.inbox) > 0
		ps.Unlock()

		if queued {
			return true
		}
	}

	return false
}

func (ts *testServer) peerState(t *testing.T, id PeerID) *PeerState {
	t.Helper()

	ps, err := ts.peers.Get(id)
	require.NoError(t, err)

	return ps
}

func newInterrupt() *atomic.Bool {
	return atomic.NewBool(false)
}

func testVersion(height int32) *wire.MsgVersion {
	me := wire.NewNetAddressIPPort(net.IPv4zero, 0, wire.SFNodeNetwork)
	you := wire.NewNetAddressIPPort(net.IPv4zero, 0, 0)

	return wire.NewMsgVersion(me, you, wire.RandomUint64(), height)
}

// sentOfType returns the messages of type T pushed to the peer.
func sentOfType[T wire.Message](transport *MemoryTransport, id PeerID) []T {
	var out []T

	for _, msg := range transport.Sent(id) {
		if m, ok := msg.(T); ok {
			out = append(out, m)
		}
	}

	return out
}

// fundedSpend mines a block and returns a transaction spending its coinbase.
func fundedSpend(t *testing.T, chain *MemoryChain, fee int64) *wire.MsgTx {
	t.Helper()

	block, err := chain.MineBlock(t.Context())
	require.NoError(t, err)

	coinbase := block.Transactions[0]

	return NewSpend(coinbase.TxOut[0].Value-fee, wire.OutPoint{Hash: coinbase.TxHash(), Index: 0})
}

func newTestPeerState(t *testing.T, id PeerID) *PeerState {
	t.Helper()

	return newPeerState(id, test.CreateBaseTestSettings(t), time.Unix(1_700_000_000, 0))
}
