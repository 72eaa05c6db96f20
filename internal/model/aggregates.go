package model

import "time"

// SolverAggregate is the fold of all NormalizedEvents sharing a solver address.
type SolverAggregate struct {
	ChainID             uint64    `json:"chain_id"`
	Address             string    `json:"address"`
	TxCount             uint64    `json:"tx_count"`
	TotalGasSpent       string    `json:"total_gas_spent"`
	TotalValueProcessed string    `json:"total_value_processed"`
	FirstSeen           time.Time `json:"first_seen"`
	LastSeen            time.Time `json:"last_seen"`
}

// DailyAggregate is keyed by UTC calendar day (YYYY-MM-DD).
// TotalVolume is in USD cents.
type DailyAggregate struct {
	ChainID       uint64 `json:"chain_id"`
	Date          string `json:"date"`
	IntentCount   uint64 `json:"intent_count"`
	TotalVolume   string `json:"total_volume"`
	UniqueSolvers uint64 `json:"unique_solvers"`
	TotalGasUsed  string `json:"total_gas_used"`
}

// AssetFlowAggregate tracks raw token amounts moving in and out of the contract.
type AssetFlowAggregate struct {
	ChainID      uint64 `json:"chain_id"`
	TokenAddress string `json:"token_address"`
	FlowIn       string `json:"flow_in"`
	FlowOut      string `json:"flow_out"`
	TxCount      uint64 `json:"tx_count"`
}

// DayOf returns the UTC calendar day of ts.
func DayOf(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}
