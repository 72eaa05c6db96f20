package model

import "time"

// SyncCursor records the last block whose derived rows are durably committed.
type SyncCursor struct {
	ChainID   uint64    `json:"chain_id"`
	LastBlock uint64    `json:"last_block"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Advance returns a cursor that never moves backwards.
func (c SyncCursor) Advance(block uint64, at time.Time) SyncCursor {
	next := c
	if block > next.LastBlock {
		next.LastBlock = block
	}
	next.UpdatedAt = at.UTC()
	return next
}
