package apr

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation marks malformed input: bad tick range, wrong payload
// variant, or conflicting snapshots at the same block.
var ErrInvariantViolation = errors.New("invariant violation")

// PoolError tags an engine failure with the vault and, when known, the snapshot block.
type PoolError struct {
	PoolID   string
	Block    uint64
	HasBlock bool
	Err      error
}

func (e *PoolError) Error() string {
	if e.HasBlock {
		return fmt.Sprintf("pool %s block %d: %v", e.PoolID, e.Block, e.Err)
	}
	return fmt.Sprintf("pool %s: %v", e.PoolID, e.Err)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

func invariantError(poolID string, format string, args ...interface{}) error {
	return &PoolError{
		PoolID: poolID,
		Err:    fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...)),
	}
}

func invariantAtBlock(poolID string, block uint64, format string, args ...interface{}) error {
	return &PoolError{
		PoolID:   poolID,
		Block:    block,
		HasBlock: true,
		Err:      fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...)),
	}
}
