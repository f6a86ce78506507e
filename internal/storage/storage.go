package storage

import (
	"context"

	"vaultYield/internal/model"
)

// ResultSink receives the results of one computation pass.
type ResultSink interface {
	PutResults(ctx context.Context, results []model.VaultAPR) error
}
