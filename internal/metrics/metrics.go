// Package metrics exposes per-pass APR computation metrics for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vaultYield/internal/model"
)

type Recorder struct {
	registry     *prometheus.Registry
	computations *prometheus.CounterVec
	apr          *prometheus.GaugeVec
	duration     prometheus.Histogram
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		computations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_apr_computations_total",
				Help: "Vault APR computations by outcome and mode",
			},
			[]string{"status", "mode"},
		),
		apr: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vault_apr_ratio",
				Help: "Last computed annualized rate per vault (0.1 = 10%)",
			},
			[]string{"pool"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vault_apr_compute_seconds",
				Help:    "Time to fetch inputs and compute one vault",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	r.registry.MustRegister(r.computations, r.apr, r.duration)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records one vault outcome. Failed vaults keep their previous gauge value.
func (r *Recorder) Observe(result model.VaultAPR, elapsed time.Duration) {
	r.computations.WithLabelValues(string(result.Status), string(result.Mode)).Inc()
	r.duration.Observe(elapsed.Seconds())
	if result.Status != model.StatusFailed {
		r.apr.WithLabelValues(result.PoolID).Set(result.APR)
	}
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
