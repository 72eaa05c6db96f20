package storage

import (
	"context"

	"intentScope/internal/model"
)

// Batch is every derived write of one pass. Commit applies it all or nothing,
// including the cursor advance that certifies it.
type Batch struct {
	ChainID   uint64
	Cursor    model.SyncCursor
	Events    []model.NormalizedEvent
	Payloads  []model.PayloadRecord
	Roots     []model.PrivacyRootRecord
	Transfers []model.TokenTransferRecord
	Solvers   []model.SolverAggregate
	Days      []model.DailyAggregate
	Assets    []model.AssetFlowAggregate
}

// Rows is the number of rows the batch writes, cursor included.
func (b *Batch) Rows() int {
	return 1 + len(b.Events) + len(b.Payloads) + len(b.Roots) + len(b.Transfers) +
		len(b.Solvers) + len(b.Days) + len(b.Assets)
}

// Reader exposes the lookups a pass needs before it can build a batch.
type Reader interface {
	LoadCursor(ctx context.Context, chainID uint64) (model.SyncCursor, bool, error)
	ExistingTransactions(ctx context.Context, chainID uint64, hashes []string) (map[string]bool, error)
	ExistingTransfers(ctx context.Context, chainID uint64, keys []model.TransferKey) (map[model.TransferKey]bool, error)
	ExistingRoots(ctx context.Context, chainID uint64, roots []string) (map[string]bool, error)
	MaxPoolSize(ctx context.Context, chainID uint64) (uint64, error)
	SolverAggregates(ctx context.Context, chainID uint64, addresses []string) (map[string]model.SolverAggregate, error)
	DailyAggregates(ctx context.Context, chainID uint64, dates []string) (map[string]model.DailyAggregate, error)
	AssetAggregates(ctx context.Context, chainID uint64, tokens []string) (map[string]model.AssetFlowAggregate, error)
}

// Store is a transactional row store. Row writes upsert on their natural
// keys, stored privacy roots keep their pool size, and the cursor never
// moves backwards.
type Store interface {
	Reader
	Commit(ctx context.Context, batch *Batch) error
	Close()
}
