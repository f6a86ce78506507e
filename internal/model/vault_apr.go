package model

import "time"

// Mode names the computation strategy used for a vault.
type Mode string

const (
	ModeNone   Mode = "none"
	ModeGrowth Mode = "growth"
	ModeFees   Mode = "fees"
)

// Status is the outcome of one vault computation.
type Status string

const (
	StatusOK               Status = "ok"
	StatusInsufficientData Status = "insufficient_data"
	StatusFailed           Status = "failed"
)

// VaultAPR is the annualized rate computed for one vault.
type VaultAPR struct {
	PoolID       string    `json:"pool_id"`
	Mode         Mode      `json:"mode"`
	Status       Status    `json:"status"`
	APR          float64   `json:"apr"`
	CurrentBlock uint64    `json:"current_block"`
	Error        string    `json:"error,omitempty"`
	ComputedAt   time.Time `json:"computed_at"`
}
