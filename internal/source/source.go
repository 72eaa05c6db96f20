package source

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"intentScope/internal/model"
)

// Source pulls the next unseen batch of contract transactions for one chain.
type Source interface {
	Pull(ctx context.Context, cursor model.SyncCursor) (*Window, error)
}

// SeenChecker reports which transaction hashes are already stored.
type SeenChecker interface {
	ExistingTransactions(ctx context.Context, chainID uint64, hashes []string) (map[string]bool, error)
}

// Window is the result of one pull. ToBlock is the block the cursor may
// advance to once the window is committed.
type Window struct {
	ChainID      uint64
	FromBlock    uint64
	ToBlock      uint64
	Txs          []RawTx
	CaughtUp     bool
	DecodeErrors []*model.DecodeError
}

// RawTx is a contract transaction with everything needed to normalize it.
type RawTx struct {
	Hash        common.Hash
	BlockNumber uint64
	Timestamp   time.Time
	From        common.Address
	Value       *big.Int
	GasUsed     uint64
	GasPrice    *big.Int
	Logs        []types.Log
	Transfers   []RawTransfer
}

// RawTransfer is an ERC-20 transfer candidate. Symbol and Decimals are
// optional hints supplied by sources that already know the token.
type RawTransfer struct {
	Token    common.Address
	From     common.Address
	To       common.Address
	Amount   *big.Int
	LogIndex uint
	Symbol   string
	Decimals *uint8
}

func sortTxs(txs []RawTx) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].BlockNumber < txs[j].BlockNumber
	})
}
