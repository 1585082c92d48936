package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Метрики воркера.
var (
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squll_tasks_total",
		Help: "Tasks processed by the worker, by backend and outcome",
	}, []string{"dbms", "outcome"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squll_runs_total",
		Help: "Single query executions, by backend and outcome",
	}, []string{"dbms", "outcome"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "squll_run_duration_milliseconds",
		Help:    "Elapsed time of successful query executions as reported by the adapter",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"dbms"})

	QueueRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squll_queue_requests_total",
		Help: "Requests to the work queue, by operation and outcome",
	}, []string{"op", "outcome"})

	BailoutRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squll_bailout_remaining",
		Help: "Errors left before the worker bails out (-1 when disabled)",
	})

	BackoffSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squll_backoff_seconds",
		Help: "Current idle backoff delay",
	})

	WorkerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "squll_worker_state",
		Help: "1 for the current worker state, 0 otherwise",
	}, []string{"state"})
)

// Outcome переводит ошибку в метку outcome.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// SetWorkerState отмечает текущее состояние в WorkerState.
func SetWorkerState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		WorkerState.WithLabelValues(s).Set(v)
	}
}

// ServeMetrics поднимает HTTP mux с /healthz и /metrics и блокируется до отмены ctx.
func ServeMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
