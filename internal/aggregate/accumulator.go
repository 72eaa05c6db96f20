package aggregate

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"intentScope/internal/model"
)

// SolverDelta is one pass's contribution to a SolverAggregate.
type SolverDelta struct {
	Address   string
	TxCount   uint64
	GasSpent  *big.Int
	Value     *big.Int
	FirstSeen time.Time
	LastSeen  time.Time
}

// DailyDelta is one pass's contribution to a DailyAggregate.
type DailyDelta struct {
	Date        string
	IntentCount uint64
	VolumeCents *big.Int
	GasUsed     *big.Int
	Solvers     map[string]struct{}
}

// AssetDelta is one pass's contribution to an AssetFlowAggregate.
type AssetDelta struct {
	TokenAddress string
	FlowIn       *big.Int
	FlowOut      *big.Int
	Txs          map[string]struct{}
}

// Accumulator folds a batch of new records into per-key deltas. Records must
// be ones whose natural key is not stored yet; feeding a stored record twice
// double counts.
type Accumulator struct {
	contract string
	solvers  map[string]*SolverDelta
	days     map[string]*DailyDelta
	assets   map[string]*AssetDelta
}

// NewAccumulator builds an Accumulator. contract decides asset flow direction.
func NewAccumulator(contract string) *Accumulator {
	return &Accumulator{
		contract: strings.ToLower(contract),
		solvers:  make(map[string]*SolverDelta),
		days:     make(map[string]*DailyDelta),
		assets:   make(map[string]*AssetDelta),
	}
}

// AddEvent applies a new NormalizedEvent.
func (a *Accumulator) AddEvent(ev model.NormalizedEvent) error {
	value, err := parseBigInt(ev.ValueWei)
	if err != nil {
		return fmt.Errorf("event %s value: %w", ev.TxHash, err)
	}
	gasPrice, err := parseBigInt(ev.GasPriceWei)
	if err != nil {
		return fmt.Errorf("event %s gas price: %w", ev.TxHash, err)
	}
	gasUsed := new(big.Int).SetUint64(ev.GasUsed)
	spent := new(big.Int).Mul(gasUsed, gasPrice)

	solver, ok := a.solvers[ev.SolverAddress]
	if !ok {
		solver = &SolverDelta{
			Address:   ev.SolverAddress,
			GasSpent:  big.NewInt(0),
			Value:     big.NewInt(0),
			FirstSeen: ev.Timestamp,
			LastSeen:  ev.Timestamp,
		}
		a.solvers[ev.SolverAddress] = solver
	}
	solver.TxCount++
	solver.GasSpent.Add(solver.GasSpent, spent)
	solver.Value.Add(solver.Value, value)
	if ev.Timestamp.Before(solver.FirstSeen) {
		solver.FirstSeen = ev.Timestamp
	}
	if ev.Timestamp.After(solver.LastSeen) {
		solver.LastSeen = ev.Timestamp
	}

	day := a.day(model.DayOf(ev.Timestamp))
	day.IntentCount++
	day.GasUsed.Add(day.GasUsed, gasUsed)
	day.Solvers[ev.SolverAddress] = struct{}{}
	return nil
}

// AddTransfer applies a new TokenTransferRecord.
func (a *Accumulator) AddTransfer(tr model.TokenTransferRecord) error {
	amount, err := parseBigInt(tr.AmountRaw)
	if err != nil {
		return fmt.Errorf("transfer %s amount: %w", tr.TxHash, err)
	}
	cents, err := USDCents(tr.AmountUSD)
	if err != nil {
		return fmt.Errorf("transfer %s usd: %w", tr.TxHash, err)
	}

	day := a.day(model.DayOf(tr.Timestamp))
	day.VolumeCents.Add(day.VolumeCents, cents)

	asset, ok := a.assets[tr.TokenAddress]
	if !ok {
		asset = &AssetDelta{
			TokenAddress: tr.TokenAddress,
			FlowIn:       big.NewInt(0),
			FlowOut:      big.NewInt(0),
			Txs:          make(map[string]struct{}),
		}
		a.assets[tr.TokenAddress] = asset
	}
	if strings.EqualFold(tr.ToAddress, a.contract) {
		asset.FlowIn.Add(asset.FlowIn, amount)
	}
	if strings.EqualFold(tr.FromAddress, a.contract) {
		asset.FlowOut.Add(asset.FlowOut, amount)
	}
	asset.Txs[tr.TxHash] = struct{}{}
	return nil
}

func (a *Accumulator) day(date string) *DailyDelta {
	day, ok := a.days[date]
	if !ok {
		day = &DailyDelta{
			Date:        date,
			VolumeCents: big.NewInt(0),
			GasUsed:     big.NewInt(0),
			Solvers:     make(map[string]struct{}),
		}
		a.days[date] = day
	}
	return day
}

// Solvers returns the solver deltas keyed by address.
func (a *Accumulator) Solvers() map[string]*SolverDelta { return a.solvers }

// Days returns the daily deltas keyed by date.
func (a *Accumulator) Days() map[string]*DailyDelta { return a.days }

// Assets returns the asset deltas keyed by token address.
func (a *Accumulator) Assets() map[string]*AssetDelta { return a.assets }

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}
