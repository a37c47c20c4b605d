package netprocessing

import (
	"context"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/stretchr/testify/mock"
)

// MockEngine is a mock ValidationEngine for testing.
type MockEngine struct {
	mock.Mock
}

func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

func (m *MockEngine) BestHeight() int32 {
	args := m.Called()
	return args.Get(0).(int32)
}

func (m *MockEngine) BlockLocator() []*chainhash.Hash {
	args := m.Called()

	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).([]*chainhash.Hash)
}

func (m *MockEngine) HaveBlock(hash *chainhash.Hash) bool {
	args := m.Called(hash)
	return args.Bool(0)
}

func (m *MockEngine) HaveTransaction(hash *chainhash.Hash) bool {
	args := m.Called(hash)
	return args.Bool(0)
}

func (m *MockEngine) GetBlock(ctx context.Context, hash *chainhash.Hash) (*wire.MsgBlock, error) {
	args := m.Called(ctx, hash)

	if args.Error(1) != nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*wire.MsgBlock), nil
}

func (m *MockEngine) GetTransaction(ctx context.Context, hash *chainhash.Hash) (*wire.MsgTx, error) {
	args := m.Called(ctx, hash)

	if args.Error(1) != nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*wire.MsgTx), nil
}

func (m *MockEngine) LocateHeaders(ctx context.Context, locator []*chainhash.Hash, hashStop *chainhash.Hash, maxHeaders int) ([]*wire.BlockHeader, error) {
	args := m.Called(ctx, locator, hashStop, maxHeaders)

	if args.Error(1) != nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*wire.BlockHeader), nil
}

func (m *MockEngine) ProcessBlockHeaders(ctx context.Context, headers []*wire.BlockHeader) ([]HeaderInfo, error) {
	args := m.Called(ctx, headers)

	if args.Error(1) != nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]HeaderInfo), nil
}

func (m *MockEngine) CheckBlockHeader(header *wire.BlockHeader) error {
	args := m.Called(header)
	return args.Error(0)
}

func (m *MockEngine) SubmitBlock(ctx context.Context, block *wire.MsgBlock) error {
	args := m.Called(ctx, block)
	return args.Error(0)
}

func (m *MockEngine) SubmitTransaction(ctx context.Context, tx *wire.MsgTx) TxValidationResult {
	args := m.Called(ctx, tx)
	return args.Get(0).(TxValidationResult)
}

// MockTransport is a mock Transport for testing.
type MockTransport struct {
	mock.Mock
}

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func (m *MockTransport) PushMessage(id PeerID, msg wire.Message) {
	m.Called(id, msg)
}

func (m *MockTransport) Disconnect(id PeerID, reason string) {
	m.Called(id, reason)
}

func (m *MockTransport) Ban(id PeerID, until time.Time, reason string) {
	m.Called(id, until, reason)
}
