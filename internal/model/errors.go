package model

import "fmt"

// PoolFailure is a vault whose record could not be loaded.
type PoolFailure struct {
	PoolID string
	Err    error
}

// PartialError is returned next to the vaults that did load when some could not.
type PartialError struct {
	Failures []PoolFailure
}

func (e *PartialError) Error() string {
	if len(e.Failures) == 0 {
		return "no pool failures"
	}
	first := e.Failures[0]
	if len(e.Failures) == 1 {
		return fmt.Sprintf("pool %s: %v", first.PoolID, first.Err)
	}
	return fmt.Sprintf("%d pools failed to load, first pool %s: %v", len(e.Failures), first.PoolID, first.Err)
}
