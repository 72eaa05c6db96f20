package indexer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"intentScope/internal/aggregate"
	"intentScope/internal/model"
	"intentScope/internal/pricing"
)

// TokenResolver resolves token metadata and prices. It never fails.
type TokenResolver interface {
	ResolveAll(ctx context.Context, chainID uint64, caller pricing.Caller, tokens map[common.Address]pricing.Hint) map[common.Address]model.TokenInfo
}

// enrichTransfers fills symbol, decimals, display amount and USD value on
// every candidate with one batched resolver call.
func enrichTransfers(ctx context.Context, chainID uint64, resolver TokenResolver, caller pricing.Caller, candidates []transferCandidate) []model.TokenTransferRecord {
	if len(candidates) == 0 {
		return nil
	}

	hints := make(map[common.Address]pricing.Hint)
	for _, c := range candidates {
		hint := hints[c.raw.Token]
		if hint.Symbol == "" && c.raw.Symbol != "" {
			hint.Symbol = c.raw.Symbol
		}
		if hint.Decimals == nil && c.raw.Decimals != nil {
			d := *c.raw.Decimals
			hint.Decimals = &d
		}
		hints[c.raw.Token] = hint
	}

	var infos map[common.Address]model.TokenInfo
	if resolver != nil {
		infos = resolver.ResolveAll(ctx, chainID, caller, hints)
	}

	out := make([]model.TokenTransferRecord, 0, len(candidates))
	for _, c := range candidates {
		info, ok := infos[c.raw.Token]
		if !ok {
			info = model.DefaultTokenInfo(c.raw.Token.Hex())
		}
		amount := c.raw.Amount
		if amount == nil {
			amount = new(big.Int)
		}
		rec := c.record
		rec.TokenSymbol = info.Symbol
		rec.TokenDecimals = info.Decimals
		rec.AmountDisplay = aggregate.FormatTokenAmount(amount, info.Decimals)
		rec.AmountUSD = aggregate.FormatUSD(aggregate.USDValue(amount, info.Decimals, info.USDPrice))
		out = append(out, rec)
	}
	return out
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
