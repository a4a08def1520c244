package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hhminer"

// Collector holds the hashing metrics, labelled by worker id
type Collector struct {
	HashesTotal    *prometheus.CounterVec
	NoncesFound    *prometheus.CounterVec
	NoncesRejected *prometheus.CounterVec
	SyncFaults     *prometheus.CounterVec
	BatchDuration  *prometheus.HistogramVec
	WorkersActive  prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		HashesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hashes_total",
				Help:      "Total number of nonces hashed",
			},
			[]string{"worker"},
		),
		NoncesFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nonces_found_total",
				Help:      "Nonces reported by workers and confirmed by the host",
			},
			[]string{"worker"},
		),
		NoncesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nonces_rejected_total",
				Help:      "Nonces reported by workers that failed host verification",
			},
			[]string{"worker"},
		),
		SyncFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_faults_total",
				Help:      "Faults reported by worker Sync",
			},
			[]string{"worker"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Time from CalculateHash to a completed Sync",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"worker"},
		),
		WorkersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_active",
				Help:      "Workers currently being driven",
			},
		),
	}
	reg.MustRegister(c.HashesTotal, c.NoncesFound, c.NoncesRejected, c.SyncFaults, c.BatchDuration, c.WorkersActive)
	return c
}

// ObserveBatch records one synced batch
func (c *Collector) ObserveBatch(worker string, hashes, found, rejected int, d time.Duration) {
	c.HashesTotal.WithLabelValues(worker).Add(float64(hashes))
	c.NoncesFound.WithLabelValues(worker).Add(float64(found))
	c.NoncesRejected.WithLabelValues(worker).Add(float64(rejected))
	c.BatchDuration.WithLabelValues(worker).Observe(d.Seconds())
}

func (c *Collector) SyncFault(worker string) {
	c.SyncFaults.WithLabelValues(worker).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger hclog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
