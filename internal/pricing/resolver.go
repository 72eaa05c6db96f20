package pricing

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"intentScope/internal/model"
)

const defaultConcurrency = 10

// Hint carries metadata a source already knows about a token.
type Hint struct {
	Symbol   string
	Decimals *uint8
}

// Config configures a Resolver.
type Config struct {
	Tokens      []KnownToken
	Feeds       map[string]string
	Concurrency int
}

// Resolver turns token addresses into symbol, decimals and USD price.
// It never fails: anything unresolvable comes back as model.DefaultTokenInfo.
// One Resolver is shared by all chains.
type Resolver struct {
	known       map[tokenKey]KnownToken
	feeds       map[string]string
	feed        PriceFeed
	meta        *MetaCache
	prices      *PriceCache
	concurrency int
	logger      *zap.Logger
}

// NewResolver builds a Resolver. A nil feed disables pricing.
func NewResolver(cfg Config, feed PriceFeed, logger *zap.Logger) *Resolver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		known:       buildKnownTable(cfg.Tokens),
		feeds:       buildFeedTable(cfg.Feeds),
		feed:        feed,
		meta:        NewMetaCache(),
		prices:      NewPriceCache(),
		concurrency: cfg.Concurrency,
		logger:      logger,
	}
}

// Resolve resolves a single token.
func (r *Resolver) Resolve(ctx context.Context, chainID uint64, caller Caller, token common.Address, hint Hint) model.TokenInfo {
	return r.ResolveAll(ctx, chainID, caller, map[common.Address]Hint{token: hint})[token]
}

// ResolveAll resolves every token in one batch: metadata first with bounded
// concurrency, then a single price-feed request for the uncached feeds.
func (r *Resolver) ResolveAll(ctx context.Context, chainID uint64, caller Caller, tokens map[common.Address]Hint) map[common.Address]model.TokenInfo {
	metas := r.resolveMeta(ctx, chainID, caller, tokens)
	prices := r.resolvePrices(ctx, metas)

	out := make(map[common.Address]model.TokenInfo, len(tokens))
	for token := range tokens {
		info := model.DefaultTokenInfo(token.Hex())
		if meta, ok := metas[token]; ok {
			info.Symbol = meta.Symbol
			info.Decimals = meta.Decimals
			if price, ok := prices[r.feeds[strings.ToUpper(meta.Symbol)]]; ok {
				info.USDPrice = price
			}
		}
		out[token] = info
	}
	return out
}

func (r *Resolver) resolveMeta(ctx context.Context, chainID uint64, caller Caller, tokens map[common.Address]Hint) map[common.Address]tokenMeta {
	out := make(map[common.Address]tokenMeta, len(tokens))
	var pending []common.Address

	for token, hint := range tokens {
		key := tokenKey{chainID: chainID, address: token}
		if known, ok := r.known[key]; ok {
			out[token] = tokenMeta{Symbol: known.Symbol, Decimals: known.Decimals}
			continue
		}
		if meta, ok := r.meta.get(key); ok {
			out[token] = meta
			continue
		}
		if symbol := sanitizeSymbol(hint.Symbol); symbol != "" && hint.Decimals != nil {
			meta := tokenMeta{Symbol: symbol, Decimals: *hint.Decimals}
			r.meta.set(key, meta)
			out[token] = meta
			continue
		}
		pending = append(pending, token)
	}
	if len(pending) == 0 || caller == nil {
		return out
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, token := range pending {
		token := token
		g.Go(func() error {
			meta, err := fetchTokenMeta(gCtx, caller, token)
			if err != nil {
				r.logger.Warn("token metadata fetch failed",
					zap.Uint64("chain_id", chainID),
					zap.String("token", token.Hex()),
					zap.Error(err),
				)
				return nil
			}
			r.meta.set(tokenKey{chainID: chainID, address: token}, meta)
			mu.Lock()
			out[token] = meta
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Resolver) resolvePrices(ctx context.Context, metas map[common.Address]tokenMeta) map[string]*big.Rat {
	prices := make(map[string]*big.Rat)
	missing := make(map[string]struct{})
	for _, meta := range metas {
		feedID, ok := r.feeds[strings.ToUpper(meta.Symbol)]
		if !ok {
			continue
		}
		if price, ok := r.prices.get(feedID); ok {
			prices[feedID] = price
			continue
		}
		missing[feedID] = struct{}{}
	}
	if len(missing) == 0 || r.feed == nil {
		return prices
	}

	ids := make([]string, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fetched, err := r.feed.Prices(ctx, ids)
	if err != nil {
		r.logger.Warn("price feed lookup failed", zap.Int("feeds", len(ids)), zap.Error(err))
		return prices
	}
	for id, price := range fetched {
		id = normalizeFeedID(id)
		if _, wanted := missing[id]; !wanted || price == nil {
			continue
		}
		r.prices.set(id, price)
		prices[id] = price
		r.logger.Debug("price resolved", zap.String("feed", id), zap.String("usd", price.FloatString(8)))
	}
	return prices
}
