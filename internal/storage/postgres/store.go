package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vaultYield/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS vaults (
	pool_id text PRIMARY KEY,
	uniswap_pool text NOT NULL,
	lower_tick integer NOT NULL,
	upper_tick integer NOT NULL,
	last_touch_without_fees bigint NOT NULL DEFAULT 0,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS vault_apr (
	pool_id text NOT NULL,
	current_block bigint NOT NULL,
	mode text NOT NULL,
	status text NOT NULL,
	apr double precision NOT NULL,
	error text NOT NULL DEFAULT '',
	computed_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_id, current_block)
);
`

// Store provides Postgres persistence for vault metadata and computed rates.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertVaults inserts or updates vault descriptors.
func (s *Store) UpsertVaults(ctx context.Context, vaults []model.PoolDescriptor) error {
	if len(vaults) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, v := range vaults {
		batch.Queue(`
			INSERT INTO vaults (
				pool_id, uniswap_pool, lower_tick, upper_tick, last_touch_without_fees, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (pool_id)
			DO UPDATE SET
				uniswap_pool = EXCLUDED.uniswap_pool,
				lower_tick = EXCLUDED.lower_tick,
				upper_tick = EXCLUDED.upper_tick,
				last_touch_without_fees = EXCLUDED.last_touch_without_fees,
				updated_at = now()
		`,
			v.ID,
			v.UniswapPool,
			v.LowerTick,
			v.UpperTick,
			int64(v.LastTouchWithoutFees),
		)
	}
	return s.sendBatch(ctx, batch)
}

// UpsertVaultAPRs inserts or updates computed rates keyed by vault and block.
func (s *Store) UpsertVaultAPRs(ctx context.Context, results []model.VaultAPR) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range results {
		batch.Queue(`
			INSERT INTO vault_apr (
				pool_id, current_block, mode, status, apr, error, computed_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,now())
			ON CONFLICT (pool_id, current_block)
			DO UPDATE SET
				mode = EXCLUDED.mode,
				status = EXCLUDED.status,
				apr = EXCLUDED.apr,
				error = EXCLUDED.error,
				computed_at = EXCLUDED.computed_at,
				updated_at = now()
		`,
			r.PoolID,
			int64(r.CurrentBlock),
			string(r.Mode),
			string(r.Status),
			r.APR,
			r.Error,
			r.ComputedAt,
		)
	}
	return s.sendBatch(ctx, batch)
}

// PutResults stores a computation pass.
func (s *Store) PutResults(ctx context.Context, results []model.VaultAPR) error {
	return s.UpsertVaultAPRs(ctx, results)
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return nil
}
