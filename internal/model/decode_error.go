package model

import "fmt"

// DecodeError records a decode failure for a single log or record.
// The offending record is skipped; the rest of the batch continues.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Reason      string `json:"error"`
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode tx %s log %d topic0 %s: %s", e.TxHash, e.LogIndex, e.Topic0, e.Reason)
}
