package model

import "math/big"

const (
	UnknownSymbol   = "UNKNOWN"
	DefaultDecimals = uint8(18)
)

// TokenInfo captures ERC20 metadata plus a USD price.
// USDPrice is never nil; zero means no price was available.
type TokenInfo struct {
	Address  string   `json:"address"`
	Symbol   string   `json:"symbol"`
	Decimals uint8    `json:"decimals"`
	USDPrice *big.Rat `json:"-"`
}

// DefaultTokenInfo is returned whenever resolution fails.
func DefaultTokenInfo(address string) TokenInfo {
	return TokenInfo{
		Address:  address,
		Symbol:   UnknownSymbol,
		Decimals: DefaultDecimals,
		USDPrice: new(big.Rat),
	}
}
