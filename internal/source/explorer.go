package source

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"intentScope/internal/model"
)

const (
	DefaultExplorerTxPages  = 3
	DefaultExplorerLogPages = 2
)

// ExplorerAPI is the subset of ExplorerClient the explorer source needs.
type ExplorerAPI interface {
	Transactions(ctx context.Context, address common.Address, page PageParams) ([]ExplorerTx, PageParams, error)
	Logs(ctx context.Context, address common.Address, page PageParams) ([]ExplorerLog, PageParams, error)
	TransactionLogs(ctx context.Context, hash common.Hash) ([]ExplorerLog, error)
	TokenTransfers(ctx context.Context, hash common.Hash) ([]ExplorerTokenTransfer, error)
}

// ExplorerConfig configures an ExplorerSource.
type ExplorerConfig struct {
	ChainID     uint64
	Contract    common.Address
	TxPages     int
	LogPages    int
	Concurrency int
}

// ExplorerSource pages newest-first through the explorer listings and stops
// at the first transaction that is already stored.
//
// The listing is assumed to be strictly newest-first. A backlog larger than
// the page budget leaves the oldest part unread.
type ExplorerSource struct {
	cfg    ExplorerConfig
	api    ExplorerAPI
	seen   SeenChecker
	logger *zap.Logger
}

// NewExplorerSource builds an ExplorerSource.
func NewExplorerSource(cfg ExplorerConfig, api ExplorerAPI, seen SeenChecker, logger *zap.Logger) *ExplorerSource {
	if cfg.TxPages <= 0 {
		cfg.TxPages = DefaultExplorerTxPages
	}
	if cfg.LogPages <= 0 {
		cfg.LogPages = DefaultExplorerLogPages
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExplorerSource{cfg: cfg, api: api, seen: seen, logger: logger}
}

// Pull returns every not-yet-stored transaction within the page budget.
func (s *ExplorerSource) Pull(ctx context.Context, cursor model.SyncCursor) (*Window, error) {
	if s.api == nil || s.seen == nil {
		return nil, fmt.Errorf("explorer source is not configured")
	}

	var (
		candidates    = make(map[common.Hash]*RawTx)
		order         []common.Hash
		decodeErrs    []*model.DecodeError
		stoppedAtSeen bool
		exhausted     bool
		page          PageParams
		lastSeenBlock uint64
		warnedOrder   bool
	)

	for p := 0; p < s.cfg.TxPages; p++ {
		items, next, err := s.api.Transactions(ctx, s.cfg.Contract, page)
		if err != nil {
			return nil, fmt.Errorf("explorer transactions page %d: %w", p, err)
		}

		hashes := make([]string, 0, len(items))
		for _, item := range items {
			hashes = append(hashes, common.HexToHash(item.Hash).Hex())
		}
		existing, err := s.seen.ExistingTransactions(ctx, s.cfg.ChainID, hashes)
		if err != nil {
			return nil, fmt.Errorf("existence check: %w", err)
		}

		for _, item := range items {
			hash := common.HexToHash(item.Hash)
			if bn := item.blockNumber(); bn > lastSeenBlock && lastSeenBlock != 0 && !warnedOrder {
				// Early stop relies on newest-first listings.
				s.logger.Warn("explorer listing is not newest-first", zap.String("tx_hash", hash.Hex()), zap.Uint64("block", bn), zap.Uint64("previous_block", lastSeenBlock))
				warnedOrder = true
			}
			if bn := item.blockNumber(); bn != 0 {
				lastSeenBlock = bn
			}
			if existing[hash.Hex()] {
				stoppedAtSeen = true
				break
			}
			// Reverted transactions emit no logs, so the RPC source never sees them either.
			if _, dup := candidates[hash]; dup || item.failed() {
				continue
			}
			raw, err := s.toRawTx(hash, item)
			if err != nil {
				decodeErrs = append(decodeErrs, &model.DecodeError{
					ChainID:     s.cfg.ChainID,
					BlockNumber: item.blockNumber(),
					TxHash:      hash.Hex(),
					Address:     s.cfg.Contract.Hex(),
					Reason:      err.Error(),
				})
				s.logger.Warn("explorer tx decode failed", zap.String("tx_hash", hash.Hex()), zap.Error(err))
				continue
			}
			candidates[hash] = raw
			order = append(order, hash)
		}

		if stoppedAtSeen {
			break
		}
		if next == nil {
			exhausted = true
			break
		}
		page = next
	}

	if len(candidates) == 0 {
		return &Window{
			ChainID:      s.cfg.ChainID,
			FromBlock:    cursor.LastBlock,
			ToBlock:      cursor.LastBlock,
			CaughtUp:     true,
			DecodeErrors: decodeErrs,
		}, nil
	}
	if !stoppedAtSeen && !exhausted {
		s.logger.Warn("explorer backlog exceeds page budget", zap.Int("tx_pages", s.cfg.TxPages), zap.Int("new_txs", len(candidates)))
	}

	complete, errs, err := s.collectLogs(ctx, candidates)
	if err != nil {
		return nil, err
	}
	decodeErrs = append(decodeErrs, errs...)

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, hash := range order {
		raw := candidates[hash]
		needLogs := !complete[hash]
		g.Go(func() error {
			errs, err := s.hydrate(gCtx, raw, needLogs)
			if err != nil {
				return err
			}
			if len(errs) > 0 {
				mu.Lock()
				decodeErrs = append(decodeErrs, errs...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	txs := make([]RawTx, 0, len(order))
	minBlock, maxBlock := uint64(0), uint64(0)
	for i, hash := range order {
		raw := candidates[hash]
		sort.SliceStable(raw.Logs, func(a, b int) bool { return raw.Logs[a].Index < raw.Logs[b].Index })
		sort.SliceStable(raw.Transfers, func(a, b int) bool { return raw.Transfers[a].LogIndex < raw.Transfers[b].LogIndex })
		txs = append(txs, *raw)
		if i == 0 || raw.BlockNumber < minBlock {
			minBlock = raw.BlockNumber
		}
		if raw.BlockNumber > maxBlock {
			maxBlock = raw.BlockNumber
		}
	}
	sortTxs(txs)

	toBlock := cursor.LastBlock
	if maxBlock > toBlock {
		toBlock = maxBlock
	}

	return &Window{
		ChainID:      s.cfg.ChainID,
		FromBlock:    minBlock,
		ToBlock:      toBlock,
		Txs:          txs,
		CaughtUp:     stoppedAtSeen || exhausted,
		DecodeErrors: decodeErrs,
	}, nil
}

// collectLogs attaches contract logs from the address log listing and reports
// which candidates received all of their logs. A transaction counts as
// complete only when the listing ended or reached an older block; the rest
// lose their partial logs and are fetched one by one.
func (s *ExplorerSource) collectLogs(ctx context.Context, candidates map[common.Hash]*RawTx) (map[common.Hash]bool, []*model.DecodeError, error) {
	minBlock := uint64(0)
	first := true
	for _, raw := range candidates {
		if first || raw.BlockNumber < minBlock {
			minBlock = raw.BlockNumber
			first = false
		}
	}

	var (
		attached  = make(map[common.Hash]bool, len(candidates))
		errsByTx  = make(map[common.Hash][]*model.DecodeError)
		page      PageParams
		ended     bool
		oldest    uint64
		sawOldest bool
	)
	for p := 0; p < s.cfg.LogPages; p++ {
		items, next, err := s.api.Logs(ctx, s.cfg.Contract, page)
		if err != nil {
			return nil, nil, fmt.Errorf("explorer logs page %d: %w", p, err)
		}

		for _, item := range items {
			if !sawOldest || item.BlockNumber < oldest {
				oldest = item.BlockNumber
				sawOldest = true
			}
			if item.BlockNumber < minBlock {
				ended = true
				break
			}
			hash := common.HexToHash(item.TxHash)
			raw, ok := candidates[hash]
			if !ok {
				continue
			}
			log, err := item.toTypesLog()
			if err != nil {
				errsByTx[hash] = append(errsByTx[hash], s.logDecodeError(item, err))
				continue
			}
			raw.Logs = append(raw.Logs, log)
			attached[hash] = true
		}

		if ended {
			break
		}
		if next == nil {
			ended = true
			break
		}
		page = next
	}

	complete := make(map[common.Hash]bool, len(attached))
	var decodeErrs []*model.DecodeError
	for hash, raw := range candidates {
		if !attached[hash] {
			// Refetched per transaction, which reports its own decode errors.
			continue
		}
		if ended || (sawOldest && oldest < raw.BlockNumber) {
			complete[hash] = true
			decodeErrs = append(decodeErrs, errsByTx[hash]...)
			continue
		}
		raw.Logs = nil
	}
	return complete, decodeErrs, nil
}

func (s *ExplorerSource) hydrate(ctx context.Context, raw *RawTx, needLogs bool) ([]*model.DecodeError, error) {
	var decodeErrs []*model.DecodeError

	if needLogs {
		items, err := s.api.TransactionLogs(ctx, raw.Hash)
		if err != nil {
			return nil, fmt.Errorf("explorer logs of %s: %w", raw.Hash.Hex(), err)
		}
		for _, item := range items {
			log, err := item.toTypesLog()
			if err != nil {
				decodeErrs = append(decodeErrs, s.logDecodeError(item, err))
				continue
			}
			if log.Address != s.cfg.Contract {
				continue
			}
			log.BlockNumber = raw.BlockNumber
			raw.Logs = append(raw.Logs, log)
		}
	}

	transfers, err := s.api.TokenTransfers(ctx, raw.Hash)
	if err != nil {
		return nil, fmt.Errorf("explorer token transfers of %s: %w", raw.Hash.Hex(), err)
	}
	for _, item := range transfers {
		if item.Token.Type != "" && item.Token.Type != "ERC-20" {
			continue
		}
		transfer, err := toRawTransfer(item)
		if err != nil {
			decodeErrs = append(decodeErrs, &model.DecodeError{
				ChainID:     s.cfg.ChainID,
				BlockNumber: raw.BlockNumber,
				TxHash:      raw.Hash.Hex(),
				LogIndex:    uint64(item.LogIndex),
				Reason:      err.Error(),
			})
			continue
		}
		raw.Transfers = append(raw.Transfers, transfer)
	}
	return decodeErrs, nil
}

func (s *ExplorerSource) toRawTx(hash common.Hash, item ExplorerTx) (*RawTx, error) {
	ts, err := parseExplorerTime(item.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	if item.From == nil || !common.IsHexAddress(item.From.Hash) {
		return nil, fmt.Errorf("missing sender")
	}
	value, err := parseBig(item.Value)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	gasPrice, err := parseBig(item.GasPrice)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	var gasUsed uint64
	if item.GasUsed != "" {
		gasUsed, err = strconv.ParseUint(item.GasUsed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("gas used: %w", err)
		}
	}
	return &RawTx{
		Hash:        hash,
		BlockNumber: item.blockNumber(),
		Timestamp:   ts,
		From:        common.HexToAddress(item.From.Hash),
		Value:       value,
		GasUsed:     gasUsed,
		GasPrice:    gasPrice,
	}, nil
}

func (s *ExplorerSource) logDecodeError(item ExplorerLog, err error) *model.DecodeError {
	e := &model.DecodeError{
		ChainID:     s.cfg.ChainID,
		BlockNumber: item.BlockNumber,
		TxHash:      item.TxHash,
		LogIndex:    uint64(item.Index),
		Reason:      err.Error(),
	}
	if len(item.Topics) > 0 && item.Topics[0] != nil {
		e.Topic0 = *item.Topics[0]
	}
	return e
}

func toRawTransfer(item ExplorerTokenTransfer) (RawTransfer, error) {
	tokenHex := item.Token.AddressHash
	if tokenHex == "" {
		tokenHex = item.Token.Address
	}
	if !common.IsHexAddress(tokenHex) {
		return RawTransfer{}, fmt.Errorf("invalid token address %q", tokenHex)
	}
	if item.From == nil || item.To == nil {
		return RawTransfer{}, fmt.Errorf("missing transfer parties")
	}
	amount, err := parseBig(item.Total.Value)
	if err != nil {
		return RawTransfer{}, fmt.Errorf("amount: %w", err)
	}
	decimals := parseDecimals(item.Token.Decimals)
	if decimals == nil {
		decimals = parseDecimals(item.Total.Decimals)
	}
	return RawTransfer{
		Token:    common.HexToAddress(tokenHex),
		From:     common.HexToAddress(item.From.Hash),
		To:       common.HexToAddress(item.To.Hash),
		Amount:   amount,
		LogIndex: item.LogIndex,
		Symbol:   item.Token.Symbol,
		Decimals: decimals,
	}, nil
}

func parseBig(value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	return n, nil
}
