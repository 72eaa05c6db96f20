package source

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intentScope/internal/chain"
	"intentScope/internal/model"
	"intentScope/internal/protocol"
)

var (
	testContract = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	testSolver   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testToken    = common.HexToAddress("0x00000000000000000000000000000000000000d0")
)

type fakeChain struct {
	tip        uint64
	logs       []types.Log
	receipts   map[common.Hash]*chain.Receipt
	txs        map[common.Hash]*chain.Transaction
	receiptErr error
}

func (f *fakeChain) LatestBlockNumber(ctx context.Context) (uint64, error) { return f.tip, nil }

func (f *fakeChain) FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, errors.New("receipt not found")
	}
	return r, nil
}

func (f *fakeChain) TransactionByHash(ctx context.Context, hash common.Hash) (*chain.Transaction, error) {
	tx, ok := f.txs[hash]
	if !ok {
		return nil, errors.New("tx not found")
	}
	return tx, nil
}

func (f *fakeChain) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number, nil
}

func topicOf(t *testing.T, kind model.EventKind) common.Hash {
	t.Helper()
	topic, ok := protocol.TopicFor(kind)
	require.True(t, ok)
	return topic
}

func transferLog(token, from, to common.Address, amount int64, index uint) *types.Log {
	return &types.Log{
		Address: token,
		Topics:  []common.Hash{protocol.TransferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:    common.LeftPadBytes(big.NewInt(amount).Bytes(), 32),
		Index:   index,
	}
}

func newFakeChain(t *testing.T) (*fakeChain, common.Hash) {
	txHash := common.HexToHash("0x01")
	execLog := types.Log{
		Address:     testContract,
		Topics:      []common.Hash{topicOf(t, model.KindTransactionExecuted)},
		BlockNumber: 105,
		TxHash:      txHash,
		Index:       2,
	}
	rootLog := execLog
	rootLog.Topics = []common.Hash{topicOf(t, model.KindCommitmentRootAdded)}
	rootLog.Index = 3

	nft := transferLog(testToken, testSolver, testContract, 1, 4)
	nft.Topics = append(nft.Topics, common.HexToHash("0x07"))

	return &fakeChain{
		tip:  200,
		logs: []types.Log{execLog, rootLog},
		receipts: map[common.Hash]*chain.Receipt{
			txHash: {
				TxHash:            txHash,
				BlockNumber:       105,
				From:              testSolver,
				GasUsed:           50_000,
				EffectiveGasPrice: (*hexutil.Big)(big.NewInt(2_000_000_000)),
				Status:            1,
				Logs: []*types.Log{
					transferLog(testToken, testSolver, testContract, 1_000_000, 1),
					&execLog,
					&rootLog,
					nft,
				},
			},
		},
		txs: map[common.Hash]*chain.Transaction{
			txHash: {
				Hash:     txHash,
				From:     testSolver,
				Value:    (*hexutil.Big)(big.NewInt(42)),
				GasPrice: (*hexutil.Big)(big.NewInt(1)),
			},
		},
	}, txHash
}

func TestRPCSourcePullHydratesWindow(t *testing.T) {
	fc, txHash := newFakeChain(t)
	src := NewRPCSource(RPCConfig{ChainID: 1, Contract: testContract, WindowSize: 10}, fc, nil)

	window, err := src.Pull(context.Background(), model.SyncCursor{ChainID: 1, LastBlock: 99})
	require.NoError(t, err)

	assert.Equal(t, uint64(100), window.FromBlock)
	assert.Equal(t, uint64(109), window.ToBlock)
	assert.False(t, window.CaughtUp)
	require.Len(t, window.Txs, 1)

	tx := window.Txs[0]
	assert.Equal(t, txHash, tx.Hash)
	assert.Equal(t, testSolver, tx.From)
	assert.Equal(t, "42", tx.Value.String())
	assert.Equal(t, "2000000000", tx.GasPrice.String())
	assert.Equal(t, uint64(50_000), tx.GasUsed)
	assert.Equal(t, int64(1_700_000_105), tx.Timestamp.Unix())
	assert.Len(t, tx.Logs, 2)

	require.Len(t, tx.Transfers, 1)
	assert.Equal(t, testToken, tx.Transfers[0].Token)
	assert.Equal(t, "1000000", tx.Transfers[0].Amount.String())
	assert.Empty(t, window.DecodeErrors)
}

func TestRPCSourceEmptyWindowAdvances(t *testing.T) {
	fc, _ := newFakeChain(t)
	src := NewRPCSource(RPCConfig{ChainID: 1, Contract: testContract, WindowSize: 10}, fc, nil)

	window, err := src.Pull(context.Background(), model.SyncCursor{ChainID: 1, LastBlock: 150})
	require.NoError(t, err)

	assert.Empty(t, window.Txs)
	assert.Equal(t, uint64(151), window.FromBlock)
	assert.Equal(t, uint64(160), window.ToBlock)
}

func TestRPCSourceCaughtUp(t *testing.T) {
	fc, _ := newFakeChain(t)
	src := NewRPCSource(RPCConfig{ChainID: 1, Contract: testContract}, fc, nil)

	window, err := src.Pull(context.Background(), model.SyncCursor{ChainID: 1, LastBlock: 200})
	require.NoError(t, err)

	assert.True(t, window.CaughtUp)
	assert.Equal(t, uint64(200), window.ToBlock)
	assert.Empty(t, window.Txs)
}

func TestRPCSourceReceiptFailureAbortsWindow(t *testing.T) {
	fc, _ := newFakeChain(t)
	fc.receiptErr = &model.NetworkError{Op: "POST rpc", Attempts: 3, StatusCode: 503}
	src := NewRPCSource(RPCConfig{ChainID: 1, Contract: testContract}, fc, nil)

	window, err := src.Pull(context.Background(), model.SyncCursor{ChainID: 1, LastBlock: 99})
	require.Error(t, err)
	assert.Nil(t, window)

	var netErr *model.NetworkError
	assert.True(t, errors.As(err, &netErr))
}

func TestRPCSourceMalformedTransferIsRecorded(t *testing.T) {
	fc, txHash := newFakeChain(t)
	bad := transferLog(testToken, testSolver, testContract, 5, 9)
	bad.Data = []byte{0x01}
	fc.receipts[txHash].Logs = append(fc.receipts[txHash].Logs, bad)

	src := NewRPCSource(RPCConfig{ChainID: 1, Contract: testContract}, fc, nil)
	window, err := src.Pull(context.Background(), model.SyncCursor{ChainID: 1, LastBlock: 99})
	require.NoError(t, err)

	require.Len(t, window.DecodeErrors, 1)
	assert.Equal(t, uint64(1), window.DecodeErrors[0].ChainID)
	assert.Len(t, window.Txs[0].Transfers, 1)
}
