package aggregate

import (
	"fmt"
	"math/big"

	"intentScope/internal/model"
)

// FoldSolver merges a delta into the stored aggregate. existing may be nil.
func FoldSolver(chainID uint64, existing *model.SolverAggregate, delta *SolverDelta) (model.SolverAggregate, error) {
	out := model.SolverAggregate{
		ChainID:             chainID,
		Address:             delta.Address,
		TxCount:             delta.TxCount,
		TotalGasSpent:       bigString(delta.GasSpent),
		TotalValueProcessed: bigString(delta.Value),
		FirstSeen:           delta.FirstSeen.UTC(),
		LastSeen:            delta.LastSeen.UTC(),
	}
	if existing == nil {
		return out, nil
	}

	gas, err := addBigStrings(existing.TotalGasSpent, delta.GasSpent)
	if err != nil {
		return model.SolverAggregate{}, fmt.Errorf("solver %s gas: %w", delta.Address, err)
	}
	value, err := addBigStrings(existing.TotalValueProcessed, delta.Value)
	if err != nil {
		return model.SolverAggregate{}, fmt.Errorf("solver %s value: %w", delta.Address, err)
	}

	out.TxCount += existing.TxCount
	out.TotalGasSpent = gas
	out.TotalValueProcessed = value
	if !existing.FirstSeen.IsZero() && existing.FirstSeen.Before(out.FirstSeen) {
		out.FirstSeen = existing.FirstSeen.UTC()
	}
	if existing.LastSeen.After(out.LastSeen) {
		out.LastSeen = existing.LastSeen.UTC()
	}
	return out, nil
}

// FoldDaily merges a delta into the stored daily aggregate. UniqueSolvers
// takes the max of the stored value and the batch's distinct count, which
// understates the true cumulative distinct count across passes of one day.
func FoldDaily(chainID uint64, existing *model.DailyAggregate, delta *DailyDelta) (model.DailyAggregate, error) {
	out := model.DailyAggregate{
		ChainID:       chainID,
		Date:          delta.Date,
		IntentCount:   delta.IntentCount,
		TotalVolume:   bigString(delta.VolumeCents),
		UniqueSolvers: uint64(len(delta.Solvers)),
		TotalGasUsed:  bigString(delta.GasUsed),
	}
	if existing == nil {
		return out, nil
	}

	volume, err := addBigStrings(existing.TotalVolume, delta.VolumeCents)
	if err != nil {
		return model.DailyAggregate{}, fmt.Errorf("day %s volume: %w", delta.Date, err)
	}
	gas, err := addBigStrings(existing.TotalGasUsed, delta.GasUsed)
	if err != nil {
		return model.DailyAggregate{}, fmt.Errorf("day %s gas: %w", delta.Date, err)
	}

	out.IntentCount += existing.IntentCount
	out.TotalVolume = volume
	out.TotalGasUsed = gas
	if existing.UniqueSolvers > out.UniqueSolvers {
		out.UniqueSolvers = existing.UniqueSolvers
	}
	return out, nil
}

// FoldAsset merges a delta into the stored asset flow aggregate.
func FoldAsset(chainID uint64, existing *model.AssetFlowAggregate, delta *AssetDelta) (model.AssetFlowAggregate, error) {
	out := model.AssetFlowAggregate{
		ChainID:      chainID,
		TokenAddress: delta.TokenAddress,
		FlowIn:       bigString(delta.FlowIn),
		FlowOut:      bigString(delta.FlowOut),
		TxCount:      uint64(len(delta.Txs)),
	}
	if existing == nil {
		return out, nil
	}

	in, err := addBigStrings(existing.FlowIn, delta.FlowIn)
	if err != nil {
		return model.AssetFlowAggregate{}, fmt.Errorf("asset %s flow in: %w", delta.TokenAddress, err)
	}
	outFlow, err := addBigStrings(existing.FlowOut, delta.FlowOut)
	if err != nil {
		return model.AssetFlowAggregate{}, fmt.Errorf("asset %s flow out: %w", delta.TokenAddress, err)
	}

	out.FlowIn = in
	out.FlowOut = outFlow
	out.TxCount += existing.TxCount
	return out, nil
}

func addBigStrings(stored string, delta *big.Int) (string, error) {
	base, err := parseBigInt(stored)
	if err != nil {
		return "", err
	}
	if delta != nil {
		base.Add(base, delta)
	}
	return base.String(), nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
