// Package runner computes APRs for a set of vaults, one isolated task per vault.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"vaultYield/internal/apr"
	"vaultYield/internal/model"
	"vaultYield/internal/storage"
)

const defaultMaxWorkers = 8

// ErrUpstream marks a failure of a history or live-reading source.
var ErrUpstream = errors.New("upstream failure")

// HistorySource serves decoded vault histories.
type HistorySource interface {
	FetchPools(ctx context.Context) ([]model.PoolHistory, error)
	FetchPoolHistory(ctx context.Context, poolID string) (model.PoolHistory, error)
}

// LiveSource serves the current on-chain state of a vault.
type LiveSource interface {
	FetchLiveReading(ctx context.Context, desc model.PoolDescriptor) (model.LiveReading, error)
}

// VaultSink persists vault descriptors alongside results.
type VaultSink interface {
	UpsertVaults(ctx context.Context, vaults []model.PoolDescriptor) error
}

// Observer receives every per-vault outcome.
type Observer interface {
	Observe(result model.VaultAPR, elapsed time.Duration)
}

// RunConfig holds runtime settings for a computation pass.
type RunConfig struct {
	MaxWorkers   int
	FetchTimeout time.Duration
	// Pools restricts a pass to these vault ids. Empty means all vaults.
	Pools    []string
	Interval time.Duration
}

// Deps are the collaborators of a Runner. History, Live and Estimator are required.
type Deps struct {
	History   HistorySource
	Live      LiveSource
	Estimator *apr.Estimator
	Sinks     []storage.ResultSink
	Vaults    VaultSink
	Observer  Observer
}

type Runner struct {
	cfg    RunConfig
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

func NewRunner(cfg RunConfig, deps Deps, logger *zap.Logger) (*Runner, error) {
	if deps.History == nil {
		return nil, fmt.Errorf("history source is nil")
	}
	if deps.Live == nil {
		return nil, fmt.Errorf("live source is nil")
	}
	if deps.Estimator == nil {
		return nil, fmt.Errorf("estimator is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger, now: time.Now}, nil
}

// ComputeAPR fetches one vault and computes its rate. FetchTimeout bounds both
// the history and the live fetch.
func (r *Runner) ComputeAPR(ctx context.Context, poolID string) (model.VaultAPR, error) {
	ctx, cancel := r.vaultContext(ctx)
	defer cancel()

	history, err := r.deps.History.FetchPoolHistory(ctx, poolID)
	if err != nil {
		err = fmt.Errorf("%w: fetch history %s: %v", ErrUpstream, poolID, err)
		return r.failed(poolID, 0, err), err
	}
	result, _, err := r.compute(ctx, history)
	return result, err
}

// Run computes every selected vault once and hands the results to the sinks.
// A failing vault is reported with StatusFailed and never aborts the others.
func (r *Runner) Run(ctx context.Context) ([]model.VaultAPR, error) {
	histories, err := r.deps.History.FetchPools(ctx)
	var partial *model.PartialError
	if err != nil && !errors.As(err, &partial) {
		return nil, fmt.Errorf("%w: fetch pools: %v", ErrUpstream, err)
	}
	var unloaded []model.PoolFailure
	if partial != nil {
		unloaded = partial.Failures
	}
	histories, unloaded = r.selectPools(histories, unloaded)
	if len(histories) == 0 && len(unloaded) == 0 {
		r.logger.Info("no vaults to compute")
		return nil, nil
	}

	r.logger.Info("pass start",
		zap.Int("vaults", len(histories)),
		zap.Int("unloaded", len(unloaded)),
		zap.Int("workers", r.cfg.MaxWorkers),
	)
	start := time.Now()

	results := make([]model.VaultAPR, len(histories), len(histories)+len(unloaded))
	done := make([]bool, len(histories))

	pool := pond.NewPool(r.cfg.MaxWorkers)
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for i := range histories {
		i := i
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			vaultCtx, cancel := r.vaultContext(groupCtx)
			defer cancel()
			result, elapsed, err := r.compute(vaultCtx, histories[i])
			if err != nil {
				r.logger.Warn("vault failed",
					zap.String("pool", histories[i].Descriptor.ID),
					zap.Error(err),
				)
			}
			if r.deps.Observer != nil {
				r.deps.Observer.Observe(result, elapsed)
			}
			results[i] = result
			done[i] = true
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		r.logger.Warn("vault group encountered error", zap.Error(err))
	}
	// Wait returns early on cancellation; drain running tasks before reading results.
	pool.StopAndWait()

	for i := range results {
		if !done[i] {
			cause := ctx.Err()
			if cause == nil {
				cause = errors.New("not scheduled")
			}
			results[i] = r.failed(histories[i].Descriptor.ID, 0, cause)
		}
	}

	for _, f := range unloaded {
		err := fmt.Errorf("%w: load pool %s: %v", ErrUpstream, f.PoolID, f.Err)
		r.logger.Warn("vault failed", zap.String("pool", f.PoolID), zap.Error(err))
		result := r.failed(f.PoolID, 0, err)
		if r.deps.Observer != nil {
			r.deps.Observer.Observe(result, 0)
		}
		results = append(results, result)
	}

	counts := make(map[model.Status]int)
	for _, res := range results {
		counts[res.Status]++
	}
	r.logger.Info("pass complete",
		zap.Int("ok", counts[model.StatusOK]),
		zap.Int("insufficient_data", counts[model.StatusInsufficientData]),
		zap.Int("failed", counts[model.StatusFailed]),
		zap.Duration("elapsed", time.Since(start)),
	)

	return results, r.store(ctx, histories, results)
}

// Loop runs a pass, reports it, and repeats every Interval until ctx is done.
// With a zero Interval it runs a single pass and returns its error.
func (r *Runner) Loop(ctx context.Context, report func([]model.VaultAPR)) error {
	for {
		results, err := r.Run(ctx)
		if report != nil && len(results) > 0 {
			report(results)
		}
		if r.cfg.Interval <= 0 {
			return err
		}
		if err != nil {
			r.logger.Error("pass failed", zap.Error(err))
		}

		timer := time.NewTimer(r.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *Runner) compute(ctx context.Context, history model.PoolHistory) (model.VaultAPR, time.Duration, error) {
	start := time.Now()
	poolID := history.Descriptor.ID

	live, err := r.deps.Live.FetchLiveReading(ctx, history.Descriptor)
	if err != nil {
		err = fmt.Errorf("%w: live reading %s: %v", ErrUpstream, poolID, err)
		return r.failed(poolID, 0, err), time.Since(start), err
	}

	est, err := r.deps.Estimator.Estimate(history, live)
	if err != nil {
		return r.failed(poolID, live.CurrentBlock, err), time.Since(start), err
	}

	result := model.VaultAPR{
		PoolID:       poolID,
		Mode:         est.Mode,
		Status:       model.StatusOK,
		APR:          est.Float64(),
		CurrentBlock: live.CurrentBlock,
		ComputedAt:   r.now().UTC(),
	}
	if !est.Sufficient() {
		result.Status = model.StatusInsufficientData
	}

	r.logger.Debug("vault computed",
		zap.String("pool", poolID),
		zap.String("mode", string(result.Mode)),
		zap.String("status", string(result.Status)),
		zap.Float64("apr", result.APR),
		zap.Uint64("current_block", result.CurrentBlock),
	)
	return result, time.Since(start), nil
}

// vaultContext bounds the fetches of one vault by FetchTimeout.
func (r *Runner) vaultContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.FetchTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.FetchTimeout)
	}
	return context.WithCancel(ctx)
}

func (r *Runner) failed(poolID string, block uint64, err error) model.VaultAPR {
	return model.VaultAPR{
		PoolID:       poolID,
		Mode:         model.ModeNone,
		Status:       model.StatusFailed,
		CurrentBlock: block,
		Error:        err.Error(),
		ComputedAt:   r.now().UTC(),
	}
}

// selectPools keeps the configured vaults; unloaded pools count as found.
func (r *Runner) selectPools(histories []model.PoolHistory, unloaded []model.PoolFailure) ([]model.PoolHistory, []model.PoolFailure) {
	if len(r.cfg.Pools) == 0 {
		return histories, unloaded
	}
	wanted := make(map[string]bool, len(r.cfg.Pools))
	for _, id := range r.cfg.Pools {
		wanted[strings.ToLower(id)] = false
	}
	keep := func(id string) bool {
		key := strings.ToLower(id)
		if _, ok := wanted[key]; ok {
			wanted[key] = true
			return true
		}
		return false
	}

	out := make([]model.PoolHistory, 0, len(r.cfg.Pools))
	for _, h := range histories {
		if keep(h.Descriptor.ID) {
			out = append(out, h)
		}
	}
	var failures []model.PoolFailure
	for _, f := range unloaded {
		if keep(f.PoolID) {
			failures = append(failures, f)
		}
	}
	for id, found := range wanted {
		if !found {
			r.logger.Warn("requested vault not found", zap.String("pool", id))
		}
	}
	return out, failures
}

func (r *Runner) store(ctx context.Context, histories []model.PoolHistory, results []model.VaultAPR) error {
	var errs []error
	if r.deps.Vaults != nil {
		descs := make([]model.PoolDescriptor, 0, len(histories))
		for _, h := range histories {
			descs = append(descs, h.Descriptor)
		}
		if err := r.deps.Vaults.UpsertVaults(ctx, descs); err != nil {
			errs = append(errs, fmt.Errorf("store vaults: %w", err))
		}
	}
	for _, sink := range r.deps.Sinks {
		if err := sink.PutResults(ctx, results); err != nil {
			errs = append(errs, fmt.Errorf("store results: %w", err))
		}
	}
	return errors.Join(errs...)
}
