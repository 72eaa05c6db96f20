package indexer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"intentScope/internal/model"
	"intentScope/internal/pricing"
	"intentScope/internal/protocol"
	"intentScope/internal/source"
	"intentScope/internal/storage"
	"intentScope/internal/storage/memory"
)

const chainID = uint64(11155111)

var (
	contract = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	solverA  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	solverB  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	usdc     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	mystery  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	day      = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fixedNow = time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
)

func topic(t *testing.T, kind model.EventKind) common.Hash {
	t.Helper()
	h, ok := protocol.TopicFor(kind)
	if !ok {
		t.Fatalf("no topic for %s", kind)
	}
	return h
}

func pack(t *testing.T, name string, args ...interface{}) []byte {
	t.Helper()
	parsed, err := protocol.AdapterABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	data, err := parsed.Events[name].Inputs.NonIndexed().Pack(args...)
	if err != nil {
		t.Fatalf("pack %s: %v", name, err)
	}
	return data
}

func executedLog(t *testing.T, tx common.Hash, block uint64, index uint) types.Log {
	return types.Log{
		Address:     contract,
		Topics:      []common.Hash{topic(t, model.KindTransactionExecuted)},
		Data:        pack(t, "TransactionExecuted", [][32]byte{common.HexToHash("0x01")}, [][32]byte{common.HexToHash("0x02")}),
		BlockNumber: block,
		TxHash:      tx,
		Index:       index,
	}
}

func rootLog(t *testing.T, tx common.Hash, block uint64, index uint, root common.Hash) types.Log {
	return types.Log{
		Address:     contract,
		Topics:      []common.Hash{topic(t, model.KindCommitmentRootAdded)},
		Data:        pack(t, "CommitmentTreeRootAdded", [32]byte(root)),
		BlockNumber: block,
		TxHash:      tx,
		Index:       index,
	}
}

func payloadLog(t *testing.T, tx common.Hash, block uint64, index uint, payloadIndex int64) types.Log {
	return types.Log{
		Address:     contract,
		Topics:      []common.Hash{topic(t, model.KindResourcePayload), common.HexToHash("0xaa")},
		Data:        pack(t, "ResourcePayload", big.NewInt(payloadIndex), []byte{0xde, 0xad}),
		BlockNumber: block,
		TxHash:      tx,
		Index:       index,
	}
}

func rawTx(hash common.Hash, block uint64, from common.Address, value int64, logs ...types.Log) source.RawTx {
	return source.RawTx{
		Hash:        hash,
		BlockNumber: block,
		Timestamp:   day.Add(time.Duration(block) * time.Second),
		From:        from,
		Value:       big.NewInt(value),
		GasUsed:     21000,
		GasPrice:    big.NewInt(10),
		Logs:        logs,
	}
}

func transfer(token, from, to common.Address, amount int64, index uint) source.RawTransfer {
	return source.RawTransfer{Token: token, From: from, To: to, Amount: big.NewInt(amount), LogIndex: index}
}

// blockSource serves txs by block like the RPC source does.
type blockSource struct {
	mu    sync.Mutex
	txs   map[uint64][]source.RawTx
	start uint64
	tip   uint64
	size  uint64
	err   error
}

func (s *blockSource) Pull(ctx context.Context, cursor model.SyncCursor) (*source.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	start := s.start
	if start == 0 {
		start = 1
	}
	r, ok, err := source.NextRange(cursor.LastBlock, start, s.tip, s.size)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &source.Window{ChainID: chainID, FromBlock: cursor.LastBlock, ToBlock: cursor.LastBlock, CaughtUp: true}, nil
	}
	w := &source.Window{ChainID: chainID, FromBlock: r.From, ToBlock: r.To, CaughtUp: r.To >= s.tip}
	for b := r.From; b <= r.To; b++ {
		w.Txs = append(w.Txs, s.txs[b]...)
	}
	return w, nil
}

// staticSource returns the same window on every pull.
type staticSource struct {
	window source.Window
}

func (s *staticSource) Pull(ctx context.Context, cursor model.SyncCursor) (*source.Window, error) {
	w := s.window
	w.Txs = append([]source.RawTx(nil), s.window.Txs...)
	return &w, nil
}

type fixedResolver map[common.Address]model.TokenInfo

func (f fixedResolver) ResolveAll(ctx context.Context, chainID uint64, caller pricing.Caller, tokens map[common.Address]pricing.Hint) map[common.Address]model.TokenInfo {
	out := make(map[common.Address]model.TokenInfo, len(tokens))
	for token := range tokens {
		if info, ok := f[token]; ok {
			out[token] = info
		}
	}
	return out
}

func usdcResolver() fixedResolver {
	return fixedResolver{
		usdc: {Address: usdc.Hex(), Symbol: "USDC", Decimals: 6, USDPrice: big.NewRat(1, 1)},
	}
}

// flakyStore fails the first n commits.
type flakyStore struct {
	*memory.Store
	mu    sync.Mutex
	fails int
}

func (f *flakyStore) Commit(ctx context.Context, b *storage.Batch) error {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.Store.Commit(ctx, b)
}

func newPipeline(src source.Source, store storage.Store, resolver TokenResolver) *Pipeline {
	p := NewPipeline(PipelineConfig{ChainID: chainID, Name: "sepolia", Contract: contract}, src, store, resolver, nil, nil, nil)
	p.now = func() time.Time { return fixedNow }
	return p
}

// scriptedIdentity answers ChainID from a queue, repeating the last answer.
type scriptedIdentity struct {
	mu      sync.Mutex
	answers []identityAnswer
	calls   int
}

type identityAnswer struct {
	id  uint64
	err error
}

func (s *scriptedIdentity) ChainID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.answers[min(s.calls, len(s.answers)-1)]
	s.calls++
	return a.id, a.err
}
