package indexer

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"intentScope/internal/aggregate"
	"intentScope/internal/metrics"
	"intentScope/internal/model"
	"intentScope/internal/pricing"
	"intentScope/internal/source"
	"intentScope/internal/storage"
)

// ChainIdentifier reports the chain id an upstream serves.
type ChainIdentifier interface {
	ChainID(ctx context.Context) (uint64, error)
}

// PipelineConfig identifies the chain a Pipeline indexes. When Identity is
// set, passes fail until it confirms ChainID.
type PipelineConfig struct {
	ChainID  uint64
	Name     string
	Contract common.Address
	Identity ChainIdentifier
}

// Pipeline runs indexing passes for one chain. Passes of one Pipeline must
// not overlap.
type Pipeline struct {
	cfg      PipelineConfig
	source   source.Source
	store    storage.Store
	resolver TokenResolver
	caller   pricing.Caller
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
	state    atomic.Int32
	verified atomic.Bool
}

// NewPipeline wires a Pipeline. caller serves token metadata eth_calls and may be nil.
func NewPipeline(cfg PipelineConfig, src source.Source, store storage.Store, resolver TokenResolver, caller pricing.Caller, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:      cfg,
		source:   src,
		store:    store,
		resolver: resolver,
		caller:   caller,
		metrics:  m,
		logger:   logger.With(zap.Uint64("chain_id", cfg.ChainID)),
		now:      time.Now,
	}
}

func (p *Pipeline) ChainID() uint64 { return p.cfg.ChainID }

func (p *Pipeline) Name() string { return p.cfg.Name }

// State returns the pipeline's current state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	p.metrics.SetState(p.cfg.ChainID, int(s))
}

// PassResult summarises one committed pass.
type PassResult struct {
	FromBlock    uint64
	ToBlock      uint64
	Events       int
	NewEvents    int
	NewTransfers int
	NewRoots     int
	DecodeErrors int
	CaughtUp     bool
}

// RunPass pulls, classifies, enriches, aggregates and commits one window.
// On any error nothing is written and the cursor stays where it was.
func (p *Pipeline) RunPass(ctx context.Context) (res PassResult, err error) {
	if p.source == nil || p.store == nil {
		return res, fmt.Errorf("pipeline for chain %d is not configured", p.cfg.ChainID)
	}

	started := p.now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			p.setState(StateError)
		} else {
			p.setState(StateIdle)
		}
		p.metrics.ObservePass(p.cfg.ChainID, outcome, p.now().Sub(started))
	}()

	p.setState(StateFetching)
	if err := p.verifyChain(ctx); err != nil {
		return res, err
	}
	cursor, found, err := p.store.LoadCursor(ctx, p.cfg.ChainID)
	if err != nil {
		return res, fmt.Errorf("load cursor: %w", err)
	}
	window, err := p.source.Pull(ctx, cursor)
	if err != nil {
		return res, fmt.Errorf("pull: %w", err)
	}
	res.FromBlock = window.FromBlock
	res.ToBlock = window.ToBlock
	res.CaughtUp = window.CaughtUp

	p.setState(StateClassifying)
	c := classifyWindow(p.cfg.ChainID, p.cfg.Contract, window)
	res.Events = len(c.events)
	res.DecodeErrors = len(c.errs)
	for _, de := range c.errs {
		p.logger.Warn("decode failed",
			zap.String("tx_hash", de.TxHash),
			zap.Uint64("log_index", de.LogIndex),
			zap.String("topic0", de.Topic0),
			zap.String("reason", de.Reason),
		)
	}
	p.metrics.AddDecodeErrors(p.cfg.ChainID, len(c.errs))

	if len(c.events) == 0 && len(c.transfers) == 0 && found && window.ToBlock <= cursor.LastBlock {
		p.logger.Debug("nothing new", zap.Uint64("last_block", cursor.LastBlock))
		return res, nil
	}

	p.setState(StateEnriching)
	transfers := enrichTransfers(ctx, p.cfg.ChainID, p.resolver, p.caller, c.transfers)

	p.setState(StateAggregating)
	batch, counts, err := p.buildBatch(ctx, window, c, transfers)
	if err != nil {
		return res, err
	}
	res.NewEvents = counts.events
	res.NewTransfers = counts.transfers
	res.NewRoots = counts.roots

	p.setState(StateCommitting)
	if err := p.store.Commit(ctx, batch); err != nil {
		return res, &model.CommitError{ChainID: p.cfg.ChainID, Err: err}
	}

	next := batch.Cursor.LastBlock
	if found && cursor.LastBlock > next {
		next = cursor.LastBlock
	}
	p.metrics.SetCursor(p.cfg.ChainID, next)
	p.metrics.AddCommitted(p.cfg.ChainID, counts.events, counts.transfers)
	p.logger.Info("pass complete",
		zap.Uint64("from", window.FromBlock),
		zap.Uint64("to", window.ToBlock),
		zap.Int("events", len(c.events)),
		zap.Int("new_events", counts.events),
		zap.Int("new_transfers", counts.transfers),
		zap.Int("new_roots", counts.roots),
		zap.Int("decode_errors", len(c.errs)),
	)
	return res, nil
}

func (p *Pipeline) verifyChain(ctx context.Context) error {
	if p.cfg.Identity == nil || p.verified.Load() {
		return nil
	}
	remote, err := p.cfg.Identity.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if remote != p.cfg.ChainID {
		return fmt.Errorf("upstream serves chain %d, configured %d", remote, p.cfg.ChainID)
	}
	p.verified.Store(true)
	return nil
}

type newCounts struct {
	events    int
	transfers int
	roots     int
}

// buildBatch folds only records whose natural key is not stored yet into the
// aggregates, so replaying a committed window leaves them unchanged. Row
// upserts still cover every record in the window.
func (p *Pipeline) buildBatch(ctx context.Context, w *source.Window, c classified, transfers []model.TokenTransferRecord) (*storage.Batch, newCounts, error) {
	var counts newCounts
	chainID := p.cfg.ChainID

	hashes := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		hashes = append(hashes, ev.TxHash)
	}
	storedTx, err := p.store.ExistingTransactions(ctx, chainID, hashes)
	if err != nil {
		return nil, counts, fmt.Errorf("existing transactions: %w", err)
	}

	keys := make([]model.TransferKey, 0, len(transfers))
	for _, tr := range transfers {
		keys = append(keys, tr.Key())
	}
	storedTransfers, err := p.store.ExistingTransfers(ctx, chainID, keys)
	if err != nil {
		return nil, counts, fmt.Errorf("existing transfers: %w", err)
	}

	acc := aggregate.NewAccumulator(p.cfg.Contract.Hex())
	for _, ev := range c.events {
		if storedTx[ev.TxHash] {
			continue
		}
		if err := acc.AddEvent(ev); err != nil {
			return nil, counts, err
		}
		counts.events++
	}
	for _, tr := range transfers {
		if storedTransfers[tr.Key()] {
			continue
		}
		if err := acc.AddTransfer(tr); err != nil {
			return nil, counts, err
		}
		counts.transfers++
	}

	roots, err := p.newRoots(ctx, c.roots)
	if err != nil {
		return nil, counts, err
	}
	counts.roots = len(roots)

	solvers, err := p.foldSolvers(ctx, acc)
	if err != nil {
		return nil, counts, err
	}
	days, err := p.foldDays(ctx, acc)
	if err != nil {
		return nil, counts, err
	}
	assets, err := p.foldAssets(ctx, acc)
	if err != nil {
		return nil, counts, err
	}

	batch := &storage.Batch{
		ChainID:   chainID,
		Cursor:    model.SyncCursor{ChainID: chainID, LastBlock: w.ToBlock, UpdatedAt: p.now().UTC()},
		Events:    c.events,
		Payloads:  c.payloads,
		Roots:     roots,
		Transfers: transfers,
		Solvers:   solvers,
		Days:      days,
		Assets:    assets,
	}
	return batch, counts, nil
}

// newRoots drops roots that are already stored or repeated in the window,
// then numbers the rest after the stored maximum in (block, log index) order.
func (p *Pipeline) newRoots(ctx context.Context, roots []model.PrivacyRootRecord) ([]model.PrivacyRootRecord, error) {
	if len(roots) == 0 {
		return nil, nil
	}
	hashes := make([]string, 0, len(roots))
	for _, r := range roots {
		hashes = append(hashes, r.RootHash)
	}
	stored, err := p.store.ExistingRoots(ctx, p.cfg.ChainID, hashes)
	if err != nil {
		return nil, fmt.Errorf("existing roots: %w", err)
	}

	ordered := aggregate.AssignPoolSizes(roots, 0)
	fresh := make([]model.PrivacyRootRecord, 0, len(ordered))
	seen := make(map[string]bool, len(ordered))
	for _, r := range ordered {
		if stored[r.RootHash] || seen[r.RootHash] {
			continue
		}
		seen[r.RootHash] = true
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	top, err := p.store.MaxPoolSize(ctx, p.cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("max pool size: %w", err)
	}
	return aggregate.AssignPoolSizes(fresh, top), nil
}

func (p *Pipeline) foldSolvers(ctx context.Context, acc *aggregate.Accumulator) ([]model.SolverAggregate, error) {
	deltas := acc.Solvers()
	if len(deltas) == 0 {
		return nil, nil
	}
	keys := sortedKeys(deltas)
	stored, err := p.store.SolverAggregates(ctx, p.cfg.ChainID, keys)
	if err != nil {
		return nil, fmt.Errorf("solver aggregates: %w", err)
	}
	out := make([]model.SolverAggregate, 0, len(keys))
	for _, k := range keys {
		var existing *model.SolverAggregate
		if agg, ok := stored[k]; ok {
			existing = &agg
		}
		folded, err := aggregate.FoldSolver(p.cfg.ChainID, existing, deltas[k])
		if err != nil {
			return nil, err
		}
		out = append(out, folded)
	}
	return out, nil
}

func (p *Pipeline) foldDays(ctx context.Context, acc *aggregate.Accumulator) ([]model.DailyAggregate, error) {
	deltas := acc.Days()
	if len(deltas) == 0 {
		return nil, nil
	}
	keys := sortedKeys(deltas)
	stored, err := p.store.DailyAggregates(ctx, p.cfg.ChainID, keys)
	if err != nil {
		return nil, fmt.Errorf("daily aggregates: %w", err)
	}
	out := make([]model.DailyAggregate, 0, len(keys))
	for _, k := range keys {
		var existing *model.DailyAggregate
		if agg, ok := stored[k]; ok {
			existing = &agg
		}
		folded, err := aggregate.FoldDaily(p.cfg.ChainID, existing, deltas[k])
		if err != nil {
			return nil, err
		}
		out = append(out, folded)
	}
	return out, nil
}

func (p *Pipeline) foldAssets(ctx context.Context, acc *aggregate.Accumulator) ([]model.AssetFlowAggregate, error) {
	deltas := acc.Assets()
	if len(deltas) == 0 {
		return nil, nil
	}
	keys := sortedKeys(deltas)
	stored, err := p.store.AssetAggregates(ctx, p.cfg.ChainID, keys)
	if err != nil {
		return nil, fmt.Errorf("asset aggregates: %w", err)
	}
	out := make([]model.AssetFlowAggregate, 0, len(keys))
	for _, k := range keys {
		var existing *model.AssetFlowAggregate
		if agg, ok := stored[k]; ok {
			existing = &agg
		}
		folded, err := aggregate.FoldAsset(p.cfg.ChainID, existing, deltas[k])
		if err != nil {
			return nil, err
		}
		out = append(out, folded)
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
