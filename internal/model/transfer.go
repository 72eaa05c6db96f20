package model

import "time"

// TokenTransferRecord is an ERC-20 transfer observed in a watched transaction.
type TokenTransferRecord struct {
	ChainID       uint64    `json:"chain_id"`
	TxHash        string    `json:"tx_hash"`
	BlockNumber   uint64    `json:"block_number"`
	LogIndex      uint64    `json:"log_index"`
	TokenAddress  string    `json:"token_address"`
	TokenSymbol   string    `json:"token_symbol"`
	TokenDecimals uint8     `json:"token_decimals"`
	FromAddress   string    `json:"from_address"`
	ToAddress     string    `json:"to_address"`
	AmountRaw     string    `json:"amount_raw"`
	AmountDisplay string    `json:"amount_display"`
	AmountUSD     string    `json:"amount_usd"`
	Timestamp     time.Time `json:"timestamp"`
}

// TransferKey is the natural key of a TokenTransferRecord.
type TransferKey struct {
	TxHash       string
	TokenAddress string
	FromAddress  string
	ToAddress    string
}

// Key returns the record's natural key.
func (r TokenTransferRecord) Key() TransferKey {
	return TransferKey{
		TxHash:       r.TxHash,
		TokenAddress: r.TokenAddress,
		FromAddress:  r.FromAddress,
		ToAddress:    r.ToAddress,
	}
}
