package source

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// NextRange returns the next window after lastBlock, starting no earlier than
// startBlock and ending no later than tip. ok is false when caught up.
func NextRange(lastBlock, startBlock, tip, size uint64) (BlockRange, bool, error) {
	if size == 0 {
		return BlockRange{}, false, fmt.Errorf("window size must be greater than zero")
	}

	from := lastBlock + 1
	if from < startBlock {
		from = startBlock
	}
	if from > tip {
		return BlockRange{}, false, nil
	}

	to := tip
	if remaining := tip - from + 1; remaining > size {
		to = from + size - 1
	}
	return BlockRange{From: from, To: to}, true, nil
}
