package source

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"intentScope/internal/chain"
	"intentScope/internal/model"
	"intentScope/internal/protocol"
)

const (
	DefaultWindowSize  = 10
	DefaultConcurrency = 10
)

// ChainReader is the subset of chain.Client the RPC source needs.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*chain.Transaction, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// RPCConfig configures an RPCSource.
type RPCConfig struct {
	ChainID     uint64
	Contract    common.Address
	StartBlock  uint64
	WindowSize  uint64
	Concurrency int
}

// RPCSource scans bounded block windows with eth_getLogs and hydrates every
// matching transaction from its receipt, block and transaction body.
type RPCSource struct {
	cfg    RPCConfig
	chain  ChainReader
	logger *zap.Logger
}

// NewRPCSource builds an RPCSource.
func NewRPCSource(cfg RPCConfig, reader ChainReader, logger *zap.Logger) *RPCSource {
	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCSource{cfg: cfg, chain: reader, logger: logger}
}

// Pull fetches the window after cursor. Any fetch failure aborts the whole window.
func (s *RPCSource) Pull(ctx context.Context, cursor model.SyncCursor) (*Window, error) {
	if s.chain == nil {
		return nil, fmt.Errorf("chain client is nil")
	}

	tip, err := s.chain.LatestBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest block: %w", err)
	}

	blockRange, ok, err := NextRange(cursor.LastBlock, s.cfg.StartBlock, tip, s.cfg.WindowSize)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Window{
			ChainID:   s.cfg.ChainID,
			FromBlock: cursor.LastBlock,
			ToBlock:   cursor.LastBlock,
			CaughtUp:  true,
		}, nil
	}

	s.logger.Debug("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

	logs, err := s.chain.FilterLogs(ctx, blockRange.From, blockRange.To, []common.Address{s.cfg.Contract}, protocol.WatchedTopics())
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err)
	}

	hashes := distinctTxHashes(logs)
	txs := make([]RawTx, len(hashes))
	var (
		mu        sync.Mutex
		decodeErr []*model.DecodeError
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, hash := range hashes {
		i, hash := i, hash
		g.Go(func() error {
			tx, errs, err := s.hydrate(gCtx, hash)
			if err != nil {
				return err
			}
			txs[i] = tx
			if len(errs) > 0 {
				mu.Lock()
				decodeErr = append(decodeErr, errs...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sortTxs(txs)

	return &Window{
		ChainID:      s.cfg.ChainID,
		FromBlock:    blockRange.From,
		ToBlock:      blockRange.To,
		Txs:          txs,
		CaughtUp:     blockRange.To >= tip,
		DecodeErrors: decodeErr,
	}, nil
}

func (s *RPCSource) hydrate(ctx context.Context, hash common.Hash) (RawTx, []*model.DecodeError, error) {
	receipt, err := s.chain.TransactionReceipt(ctx, hash)
	if err != nil {
		return RawTx{}, nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
	}
	tx, err := s.chain.TransactionByHash(ctx, hash)
	if err != nil {
		return RawTx{}, nil, fmt.Errorf("transaction %s: %w", hash.Hex(), err)
	}
	blockNumber := uint64(receipt.BlockNumber)
	ts, err := s.chain.BlockTimestamp(ctx, blockNumber)
	if err != nil {
		return RawTx{}, nil, fmt.Errorf("block timestamp %d: %w", blockNumber, err)
	}

	raw := RawTx{
		Hash:        hash,
		BlockNumber: blockNumber,
		Timestamp:   time.Unix(int64(ts), 0).UTC(),
		From:        receipt.From,
		Value:       new(big.Int),
		GasUsed:     uint64(receipt.GasUsed),
		GasPrice:    new(big.Int),
	}
	if tx.Value != nil {
		raw.Value = tx.Value.ToInt()
	}
	if receipt.EffectiveGasPrice != nil {
		raw.GasPrice = receipt.EffectiveGasPrice.ToInt()
	} else if tx.GasPrice != nil {
		raw.GasPrice = tx.GasPrice.ToInt()
	}
	if (raw.From == common.Address{}) {
		raw.From = tx.From
	}

	var decodeErrs []*model.DecodeError
	for _, log := range receipt.Logs {
		if log == nil {
			continue
		}
		if log.Address == s.cfg.Contract {
			raw.Logs = append(raw.Logs, *log)
		}
		if len(log.Topics) == 0 || log.Topics[0] != protocol.TransferTopic {
			continue
		}
		if len(log.Topics) != 3 {
			// ERC-721 Transfer
			continue
		}
		transfer, err := protocol.DecodeTransfer(*log)
		if err != nil {
			var de *model.DecodeError
			if errors.As(err, &de) {
				de.ChainID = s.cfg.ChainID
				decodeErrs = append(decodeErrs, de)
				s.logger.Warn("transfer decode failed", zap.String("tx_hash", hash.Hex()), zap.Uint("log_index", log.Index), zap.Error(err))
				continue
			}
			return RawTx{}, nil, err
		}
		raw.Transfers = append(raw.Transfers, RawTransfer{
			Token:    transfer.Token,
			From:     transfer.From,
			To:       transfer.To,
			Amount:   transfer.Amount,
			LogIndex: transfer.LogIndex,
		})
	}

	return raw, decodeErrs, nil
}

func distinctTxHashes(logs []types.Log) []common.Hash {
	seen := make(map[common.Hash]struct{}, len(logs))
	out := make([]common.Hash, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		if _, ok := seen[log.TxHash]; ok {
			continue
		}
		seen[log.TxHash] = struct{}{}
		out = append(out, log.TxHash)
	}
	return out
}
