package indexer

// State is the pipeline's position within a pass.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateClassifying
	StateEnriching
	StateAggregating
	StateCommitting
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateClassifying:
		return "classifying"
	case StateEnriching:
		return "enriching"
	case StateAggregating:
		return "aggregating"
	case StateCommitting:
		return "committing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
