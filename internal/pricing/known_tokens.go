package pricing

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// KnownToken is static metadata for a well-known token.
type KnownToken struct {
	ChainID  uint64 `mapstructure:"chain_id"`
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Decimals uint8  `mapstructure:"decimals"`
}

var defaultKnownTokens = []KnownToken{
	{ChainID: 1, Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Symbol: "WETH", Decimals: 18},
	{ChainID: 1, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Decimals: 6},
	{ChainID: 1, Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Symbol: "USDT", Decimals: 6},
	{ChainID: 1, Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Symbol: "WBTC", Decimals: 8},
	{ChainID: 1, Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Symbol: "DAI", Decimals: 18},
	{ChainID: 11155111, Address: "0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14", Symbol: "WETH", Decimals: 18},
	{ChainID: 11155111, Address: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", Symbol: "USDC", Decimals: 6},
	{ChainID: 8453, Address: "0x4200000000000000000000000000000000000006", Symbol: "WETH", Decimals: 18},
	{ChainID: 8453, Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Symbol: "USDC", Decimals: 6},
}

// Pyth price feed ids keyed by upper-case symbol.
var defaultFeeds = map[string]string{
	"ETH":  "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
	"WETH": "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
	"USDC": "0xeaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a",
	"USDT": "0x2b89b9dc8fdf9f34709a5b106b472f0f39bb6ca9ce04b0fd7f2e971688e2e53b",
	"BTC":  "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
	"WBTC": "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
	"DAI":  "0xb0948a5e5313200c632b51bb5ca32f6de0d36e9950a942d19751e833f70dabfd",
}

type tokenKey struct {
	chainID uint64
	address common.Address
}

func buildKnownTable(extra []KnownToken) map[tokenKey]KnownToken {
	table := make(map[tokenKey]KnownToken, len(defaultKnownTokens)+len(extra))
	for _, list := range [][]KnownToken{defaultKnownTokens, extra} {
		for _, token := range list {
			if !common.IsHexAddress(token.Address) {
				continue
			}
			table[tokenKey{chainID: token.ChainID, address: common.HexToAddress(token.Address)}] = token
		}
	}
	return table
}

func buildFeedTable(extra map[string]string) map[string]string {
	table := make(map[string]string, len(defaultFeeds)+len(extra))
	for symbol, id := range defaultFeeds {
		table[symbol] = normalizeFeedID(id)
	}
	for symbol, id := range extra {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" || id == "" {
			continue
		}
		table[symbol] = normalizeFeedID(id)
	}
	return table
}

func normalizeFeedID(id string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), "0x")
}
