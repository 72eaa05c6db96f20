package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"intentScope/internal/model"
	"intentScope/internal/storage"
	"intentScope/internal/storage/migrations"
)

// Store provides Postgres persistence for indexed rows and sync cursors.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pg dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies the embedded schema.
func (s *Store) Migrate(ctx context.Context) error {
	return migrations.Apply(ctx, s.pool)
}

// LoadCursor returns the committed cursor for a chain.
func (s *Store) LoadCursor(ctx context.Context, chainID uint64) (model.SyncCursor, bool, error) {
	cursor := model.SyncCursor{ChainID: chainID}
	row := s.pool.QueryRow(ctx, `SELECT last_block, updated_at FROM sync_cursors WHERE chain_id=$1`, int64(chainID))
	if err := row.Scan(&cursor.LastBlock, &cursor.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cursor, false, nil
		}
		return cursor, false, fmt.Errorf("load cursor: %w", err)
	}
	cursor.UpdatedAt = cursor.UpdatedAt.UTC()
	return cursor, true, nil
}

func (s *Store) ExistingTransactions(ctx context.Context, chainID uint64, hashes []string) (map[string]bool, error) {
	return s.existingStrings(ctx, `SELECT tx_hash FROM events WHERE chain_id=$1 AND tx_hash = ANY($2)`, chainID, hashes)
}

func (s *Store) ExistingRoots(ctx context.Context, chainID uint64, roots []string) (map[string]bool, error) {
	return s.existingStrings(ctx, `SELECT root_hash FROM privacy_roots WHERE chain_id=$1 AND root_hash = ANY($2)`, chainID, roots)
}

func (s *Store) existingStrings(ctx context.Context, query string, chainID uint64, values []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(values) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, query, int64(chainID), values)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func (s *Store) ExistingTransfers(ctx context.Context, chainID uint64, keys []model.TransferKey) (map[model.TransferKey]bool, error) {
	out := make(map[model.TransferKey]bool)
	if len(keys) == 0 {
		return out, nil
	}
	wanted := make(map[model.TransferKey]bool, len(keys))
	seen := make(map[string]bool)
	var hashes []string
	for _, k := range keys {
		wanted[k] = true
		if !seen[k.TxHash] {
			seen[k.TxHash] = true
			hashes = append(hashes, k.TxHash)
		}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, token_address, from_address, to_address
		FROM token_transfers
		WHERE chain_id=$1 AND tx_hash = ANY($2)
	`, int64(chainID), hashes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var k model.TransferKey
		if err := rows.Scan(&k.TxHash, &k.TokenAddress, &k.FromAddress, &k.ToAddress); err != nil {
			return nil, err
		}
		if wanted[k] {
			out[k] = true
		}
	}
	return out, rows.Err()
}

func (s *Store) MaxPoolSize(ctx context.Context, chainID uint64) (uint64, error) {
	var max uint64
	row := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(estimated_pool_size), 0) FROM privacy_roots WHERE chain_id=$1`, int64(chainID))
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}

func (s *Store) SolverAggregates(ctx context.Context, chainID uint64, addresses []string) (map[string]model.SolverAggregate, error) {
	out := make(map[string]model.SolverAggregate)
	if len(addresses) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT address, tx_count, total_gas_spent::text, total_value_processed::text, first_seen, last_seen
		FROM solver_aggregates
		WHERE chain_id=$1 AND address = ANY($2)
	`, int64(chainID), addresses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		agg := model.SolverAggregate{ChainID: chainID}
		if err := rows.Scan(&agg.Address, &agg.TxCount, &agg.TotalGasSpent, &agg.TotalValueProcessed, &agg.FirstSeen, &agg.LastSeen); err != nil {
			return nil, err
		}
		agg.FirstSeen = agg.FirstSeen.UTC()
		agg.LastSeen = agg.LastSeen.UTC()
		out[agg.Address] = agg
	}
	return out, rows.Err()
}

func (s *Store) DailyAggregates(ctx context.Context, chainID uint64, dates []string) (map[string]model.DailyAggregate, error) {
	out := make(map[string]model.DailyAggregate)
	if len(dates) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(day, 'YYYY-MM-DD'), intent_count, total_volume::text, unique_solvers, total_gas_used::text
		FROM daily_aggregates
		WHERE chain_id=$1 AND to_char(day, 'YYYY-MM-DD') = ANY($2)
	`, int64(chainID), dates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		agg := model.DailyAggregate{ChainID: chainID}
		if err := rows.Scan(&agg.Date, &agg.IntentCount, &agg.TotalVolume, &agg.UniqueSolvers, &agg.TotalGasUsed); err != nil {
			return nil, err
		}
		out[agg.Date] = agg
	}
	return out, rows.Err()
}

func (s *Store) AssetAggregates(ctx context.Context, chainID uint64, tokens []string) (map[string]model.AssetFlowAggregate, error) {
	out := make(map[string]model.AssetFlowAggregate)
	if len(tokens) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT token_address, flow_in::text, flow_out::text, tx_count
		FROM asset_flows
		WHERE chain_id=$1 AND token_address = ANY($2)
	`, int64(chainID), tokens)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		agg := model.AssetFlowAggregate{ChainID: chainID}
		if err := rows.Scan(&agg.TokenAddress, &agg.FlowIn, &agg.FlowOut, &agg.TxCount); err != nil {
			return nil, err
		}
		out[agg.TokenAddress] = agg
	}
	return out, rows.Err()
}

// Commit writes the batch and advances the cursor in one transaction.
func (s *Store) Commit(ctx context.Context, b *storage.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	queueEvents(batch, b)
	queuePayloads(batch, b)
	queueRoots(batch, b)
	queueTransfers(batch, b)
	queueAggregates(batch, b)
	queueCursor(batch, b)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func queueEvents(batch *pgx.Batch, b *storage.Batch) {
	for _, ev := range b.Events {
		var fields any
		if len(ev.DecodedFields) > 0 {
			fields = string(ev.DecodedFields)
		}
		topics := ev.RawTopics
		if topics == nil {
			topics = []string{}
		}
		batch.Queue(`
			INSERT INTO events (
				chain_id, tx_hash, block_number, kind, solver_address, value_wei,
				gas_used, gas_price_wei, block_time, raw_topics, decoded_fields
			) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8::numeric,$9,$10,$11::jsonb)
			ON CONFLICT (chain_id, tx_hash)
			DO UPDATE SET
				block_number = EXCLUDED.block_number,
				kind = EXCLUDED.kind,
				solver_address = EXCLUDED.solver_address,
				value_wei = EXCLUDED.value_wei,
				gas_used = EXCLUDED.gas_used,
				gas_price_wei = EXCLUDED.gas_price_wei,
				block_time = EXCLUDED.block_time,
				raw_topics = EXCLUDED.raw_topics,
				decoded_fields = EXCLUDED.decoded_fields
		`,
			int64(b.ChainID),
			ev.TxHash,
			int64(ev.BlockNumber),
			string(ev.Kind),
			ev.SolverAddress,
			ev.ValueWei,
			int64(ev.GasUsed),
			ev.GasPriceWei,
			ev.Timestamp,
			topics,
			fields,
		)
	}
}

func queuePayloads(batch *pgx.Batch, b *storage.Batch) {
	for _, p := range b.Payloads {
		batch.Queue(`
			INSERT INTO payloads (
				chain_id, tx_hash, block_number, payload_type, payload_index, tag, blob, block_time
			) VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8)
			ON CONFLICT (chain_id, tx_hash, payload_type, payload_index)
			DO UPDATE SET
				block_number = EXCLUDED.block_number,
				tag = EXCLUDED.tag,
				blob = EXCLUDED.blob,
				block_time = EXCLUDED.block_time
		`,
			int64(b.ChainID),
			p.TxHash,
			int64(p.BlockNumber),
			string(p.PayloadType),
			strconv.FormatUint(p.PayloadIndex, 10),
			p.Tag,
			p.Blob,
			p.Timestamp,
		)
	}
}

// Stored roots keep the pool size assigned when they were first seen.
func queueRoots(batch *pgx.Batch, b *storage.Batch) {
	for _, r := range b.Roots {
		batch.Queue(`
			INSERT INTO privacy_roots (
				chain_id, root_hash, tx_hash, block_number, log_index, block_time, estimated_pool_size
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (chain_id, root_hash) DO NOTHING
		`,
			int64(b.ChainID),
			r.RootHash,
			r.TxHash,
			int64(r.BlockNumber),
			int64(r.LogIndex),
			r.Timestamp,
			int64(r.EstimatedPoolSize),
		)
	}
}

func queueTransfers(batch *pgx.Batch, b *storage.Batch) {
	for _, tr := range b.Transfers {
		batch.Queue(`
			INSERT INTO token_transfers (
				chain_id, tx_hash, token_address, from_address, to_address, block_number, log_index,
				token_symbol, token_decimals, amount_raw, amount_display, amount_usd, block_time
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::numeric,$11,$12::numeric,$13)
			ON CONFLICT (chain_id, tx_hash, token_address, from_address, to_address)
			DO UPDATE SET
				block_number = EXCLUDED.block_number,
				log_index = EXCLUDED.log_index,
				token_symbol = EXCLUDED.token_symbol,
				token_decimals = EXCLUDED.token_decimals,
				amount_raw = EXCLUDED.amount_raw,
				amount_display = EXCLUDED.amount_display,
				amount_usd = EXCLUDED.amount_usd,
				block_time = EXCLUDED.block_time
		`,
			int64(b.ChainID),
			tr.TxHash,
			tr.TokenAddress,
			tr.FromAddress,
			tr.ToAddress,
			int64(tr.BlockNumber),
			int64(tr.LogIndex),
			tr.TokenSymbol,
			int16(tr.TokenDecimals),
			tr.AmountRaw,
			tr.AmountDisplay,
			tr.AmountUSD,
			tr.Timestamp,
		)
	}
}

// Aggregates arrive fully folded, so the upsert replaces the stored row.
func queueAggregates(batch *pgx.Batch, b *storage.Batch) {
	for _, agg := range b.Solvers {
		batch.Queue(`
			INSERT INTO solver_aggregates (
				chain_id, address, tx_count, total_gas_spent, total_value_processed, first_seen, last_seen
			) VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6,$7)
			ON CONFLICT (chain_id, address)
			DO UPDATE SET
				tx_count = EXCLUDED.tx_count,
				total_gas_spent = EXCLUDED.total_gas_spent,
				total_value_processed = EXCLUDED.total_value_processed,
				first_seen = EXCLUDED.first_seen,
				last_seen = EXCLUDED.last_seen
		`,
			int64(b.ChainID),
			agg.Address,
			int64(agg.TxCount),
			agg.TotalGasSpent,
			agg.TotalValueProcessed,
			agg.FirstSeen,
			agg.LastSeen,
		)
	}
	for _, agg := range b.Days {
		batch.Queue(`
			INSERT INTO daily_aggregates (
				chain_id, day, intent_count, total_volume, unique_solvers, total_gas_used
			) VALUES ($1,$2::date,$3,$4::numeric,$5,$6::numeric)
			ON CONFLICT (chain_id, day)
			DO UPDATE SET
				intent_count = EXCLUDED.intent_count,
				total_volume = EXCLUDED.total_volume,
				unique_solvers = EXCLUDED.unique_solvers,
				total_gas_used = EXCLUDED.total_gas_used
		`,
			int64(b.ChainID),
			agg.Date,
			int64(agg.IntentCount),
			agg.TotalVolume,
			int64(agg.UniqueSolvers),
			agg.TotalGasUsed,
		)
	}
	for _, agg := range b.Assets {
		batch.Queue(`
			INSERT INTO asset_flows (
				chain_id, token_address, flow_in, flow_out, tx_count
			) VALUES ($1,$2,$3::numeric,$4::numeric,$5)
			ON CONFLICT (chain_id, token_address)
			DO UPDATE SET
				flow_in = EXCLUDED.flow_in,
				flow_out = EXCLUDED.flow_out,
				tx_count = EXCLUDED.tx_count
		`,
			int64(b.ChainID),
			agg.TokenAddress,
			agg.FlowIn,
			agg.FlowOut,
			int64(agg.TxCount),
		)
	}
}

func queueCursor(batch *pgx.Batch, b *storage.Batch) {
	batch.Queue(`
		INSERT INTO sync_cursors (chain_id, last_block, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain_id)
		DO UPDATE SET
			last_block = GREATEST(sync_cursors.last_block, EXCLUDED.last_block),
			updated_at = EXCLUDED.updated_at
	`, int64(b.ChainID), int64(b.Cursor.LastBlock), b.Cursor.UpdatedAt)
}

var _ storage.Store = (*Store)(nil)
