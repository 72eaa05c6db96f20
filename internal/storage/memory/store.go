package memory

import (
	"context"
	"sort"
	"sync"

	"intentScope/internal/model"
	"intentScope/internal/storage"
)

type eventKey struct {
	chainID uint64
	txHash  string
}

type payloadKey struct {
	chainID uint64
	txHash  string
	typ     model.PayloadType
	index   uint64
}

type rootKey struct {
	chainID uint64
	root    string
}

type transferKey struct {
	chainID uint64
	key     model.TransferKey
}

type stringKey struct {
	chainID uint64
	value   string
}

// Store is an in-process storage.Store. Commit builds the next state on a
// copy and swaps it in, so a failed batch leaves nothing behind.
type Store struct {
	mu    sync.RWMutex
	state *state
}

type state struct {
	cursors   map[uint64]model.SyncCursor
	events    map[eventKey]model.NormalizedEvent
	payloads  map[payloadKey]model.PayloadRecord
	roots     map[rootKey]model.PrivacyRootRecord
	transfers map[transferKey]model.TokenTransferRecord
	solvers   map[stringKey]model.SolverAggregate
	days      map[stringKey]model.DailyAggregate
	assets    map[stringKey]model.AssetFlowAggregate
}

// New returns an empty Store.
func New() *Store {
	return &Store{state: newState()}
}

func newState() *state {
	return &state{
		cursors:   make(map[uint64]model.SyncCursor),
		events:    make(map[eventKey]model.NormalizedEvent),
		payloads:  make(map[payloadKey]model.PayloadRecord),
		roots:     make(map[rootKey]model.PrivacyRootRecord),
		transfers: make(map[transferKey]model.TokenTransferRecord),
		solvers:   make(map[stringKey]model.SolverAggregate),
		days:      make(map[stringKey]model.DailyAggregate),
		assets:    make(map[stringKey]model.AssetFlowAggregate),
	}
}

func (s *state) clone() *state {
	next := newState()
	for k, v := range s.cursors {
		next.cursors[k] = v
	}
	for k, v := range s.events {
		next.events[k] = v
	}
	for k, v := range s.payloads {
		next.payloads[k] = v
	}
	for k, v := range s.roots {
		next.roots[k] = v
	}
	for k, v := range s.transfers {
		next.transfers[k] = v
	}
	for k, v := range s.solvers {
		next.solvers[k] = v
	}
	for k, v := range s.days {
		next.days[k] = v
	}
	for k, v := range s.assets {
		next.assets[k] = v
	}
	return next
}

func (s *Store) LoadCursor(ctx context.Context, chainID uint64) (model.SyncCursor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cursor, ok := s.state.cursors[chainID]
	if !ok {
		return model.SyncCursor{ChainID: chainID}, false, nil
	}
	return cursor, true, nil
}

func (s *Store) ExistingTransactions(ctx context.Context, chainID uint64, hashes []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool)
	for _, h := range hashes {
		if _, ok := s.state.events[eventKey{chainID, h}]; ok {
			out[h] = true
		}
	}
	return out, nil
}

func (s *Store) ExistingTransfers(ctx context.Context, chainID uint64, keys []model.TransferKey) (map[model.TransferKey]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.TransferKey]bool)
	for _, k := range keys {
		if _, ok := s.state.transfers[transferKey{chainID, k}]; ok {
			out[k] = true
		}
	}
	return out, nil
}

func (s *Store) ExistingRoots(ctx context.Context, chainID uint64, roots []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool)
	for _, r := range roots {
		if _, ok := s.state.roots[rootKey{chainID, r}]; ok {
			out[r] = true
		}
	}
	return out, nil
}

func (s *Store) MaxPoolSize(ctx context.Context, chainID uint64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max uint64
	for k, root := range s.state.roots {
		if k.chainID == chainID && root.EstimatedPoolSize > max {
			max = root.EstimatedPoolSize
		}
	}
	return max, nil
}

func (s *Store) SolverAggregates(ctx context.Context, chainID uint64, addresses []string) (map[string]model.SolverAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.SolverAggregate)
	for _, a := range addresses {
		if agg, ok := s.state.solvers[stringKey{chainID, a}]; ok {
			out[a] = agg
		}
	}
	return out, nil
}

func (s *Store) DailyAggregates(ctx context.Context, chainID uint64, dates []string) (map[string]model.DailyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.DailyAggregate)
	for _, d := range dates {
		if agg, ok := s.state.days[stringKey{chainID, d}]; ok {
			out[d] = agg
		}
	}
	return out, nil
}

func (s *Store) AssetAggregates(ctx context.Context, chainID uint64, tokens []string) (map[string]model.AssetFlowAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.AssetFlowAggregate)
	for _, t := range tokens {
		if agg, ok := s.state.assets[stringKey{chainID, t}]; ok {
			out[t] = agg
		}
	}
	return out, nil
}

// Commit applies the batch atomically.
func (s *Store) Commit(ctx context.Context, batch *storage.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	id := batch.ChainID

	for _, ev := range batch.Events {
		next.events[eventKey{id, ev.TxHash}] = ev
	}
	for _, p := range batch.Payloads {
		next.payloads[payloadKey{id, p.TxHash, p.PayloadType, p.PayloadIndex}] = p
	}
	for _, r := range batch.Roots {
		k := rootKey{id, r.RootHash}
		if _, ok := next.roots[k]; ok {
			continue
		}
		next.roots[k] = r
	}
	for _, tr := range batch.Transfers {
		next.transfers[transferKey{id, tr.Key()}] = tr
	}
	for _, agg := range batch.Solvers {
		next.solvers[stringKey{id, agg.Address}] = agg
	}
	for _, agg := range batch.Days {
		next.days[stringKey{id, agg.Date}] = agg
	}
	for _, agg := range batch.Assets {
		next.assets[stringKey{id, agg.TokenAddress}] = agg
	}

	cursor := batch.Cursor
	cursor.ChainID = id
	if stored, ok := next.cursors[id]; ok {
		cursor = stored.Advance(cursor.LastBlock, cursor.UpdatedAt)
	}
	next.cursors[id] = cursor

	s.state = next
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

// Snapshot is a sorted copy of one chain's rows.
type Snapshot struct {
	Cursor    model.SyncCursor
	Events    []model.NormalizedEvent
	Payloads  []model.PayloadRecord
	Roots     []model.PrivacyRootRecord
	Transfers []model.TokenTransferRecord
	Solvers   []model.SolverAggregate
	Days      []model.DailyAggregate
	Assets    []model.AssetFlowAggregate
}

// Snapshot returns every row stored for chainID in a deterministic order.
func (s *Store) Snapshot(chainID uint64) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Cursor: s.state.cursors[chainID]}
	for k, v := range s.state.events {
		if k.chainID == chainID {
			snap.Events = append(snap.Events, v)
		}
	}
	for k, v := range s.state.payloads {
		if k.chainID == chainID {
			snap.Payloads = append(snap.Payloads, v)
		}
	}
	for k, v := range s.state.roots {
		if k.chainID == chainID {
			snap.Roots = append(snap.Roots, v)
		}
	}
	for k, v := range s.state.transfers {
		if k.chainID == chainID {
			snap.Transfers = append(snap.Transfers, v)
		}
	}
	for k, v := range s.state.solvers {
		if k.chainID == chainID {
			snap.Solvers = append(snap.Solvers, v)
		}
	}
	for k, v := range s.state.days {
		if k.chainID == chainID {
			snap.Days = append(snap.Days, v)
		}
	}
	for k, v := range s.state.assets {
		if k.chainID == chainID {
			snap.Assets = append(snap.Assets, v)
		}
	}

	sort.Slice(snap.Events, func(i, j int) bool { return snap.Events[i].TxHash < snap.Events[j].TxHash })
	sort.Slice(snap.Payloads, func(i, j int) bool {
		a, b := snap.Payloads[i], snap.Payloads[j]
		if a.TxHash != b.TxHash {
			return a.TxHash < b.TxHash
		}
		if a.PayloadType != b.PayloadType {
			return a.PayloadType < b.PayloadType
		}
		return a.PayloadIndex < b.PayloadIndex
	})
	sort.Slice(snap.Roots, func(i, j int) bool { return snap.Roots[i].EstimatedPoolSize < snap.Roots[j].EstimatedPoolSize })
	sort.Slice(snap.Transfers, func(i, j int) bool {
		a, b := snap.Transfers[i], snap.Transfers[j]
		if a.TxHash != b.TxHash {
			return a.TxHash < b.TxHash
		}
		return a.LogIndex < b.LogIndex
	})
	sort.Slice(snap.Solvers, func(i, j int) bool { return snap.Solvers[i].Address < snap.Solvers[j].Address })
	sort.Slice(snap.Days, func(i, j int) bool { return snap.Days[i].Date < snap.Days[j].Date })
	sort.Slice(snap.Assets, func(i, j int) bool { return snap.Assets[i].TokenAddress < snap.Assets[j].TokenAddress })
	return snap
}

var _ storage.Store = (*Store)(nil)
