// Command telemetry-smoke drives a telemetry pipeline against a live OTLP
// collector. It runs a configurable set of producers emitting logs, spans,
// and metrics, exposes the pipeline's own Prometheus metrics, and prints
// the delivery report on shutdown.
package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/spire-labs/telemetry"
	"github.com/spire-labs/telemetry/internal/config"
	"github.com/spire-labs/telemetry/internal/health"
	"github.com/spire-labs/telemetry/internal/logging"
)

func main() {
	var (
		producers = flag.Int("producers", 4, "Concurrent event producers")
		rate      = flag.Duration("rate", 10*time.Millisecond, "Delay between events per producer")
		count     = flag.Int("count", 0, "Events per producer before exiting (0 = run until signal)")
	)
	cfg, err := config.ParseFlags()
	if err != nil {
		logging.Fatal("invalid configuration", logging.F("error", err.Error()))
	}
	if cfg.ServiceName == "" || cfg.ServiceName == "unknown-service" {
		cfg.ServiceName = "telemetry-smoke"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := telemetry.Init(ctx, *cfg)
	if err != nil {
		logging.Fatal("failed to start pipeline", logging.F("error", err.Error()))
	}

	checker := health.New()
	checker.Register("queue", health.QueueSaturationCheck(func() (int, int) {
		snap := client.Snapshot()
		return snap.Queue.Depth, snap.Queue.Capacity
	}, 0.9))

	var metricsServer *http.Server
	if cfg.MetricsListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/live", checker.LiveHandler())
		mux.Handle("/ready", checker.ReadyHandler())
		metricsServer = &http.Server{Addr: cfg.MetricsListenAddr, Handler: mux}
		go func() {
			logging.Info("metrics endpoint started", logging.F("addr", cfg.MetricsListenAddr, "path", "/metrics"))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("metrics server error", logging.F("error", err.Error()))
			}
		}()
	}

	logging.Info("telemetry-smoke started", logging.F(
		"endpoint", cfg.ExporterEndpoint,
		"protocol", cfg.ExporterProtocol,
		"producers", *producers,
		"rate", rate.String(),
	))

	g, runCtx := errgroup.WithContext(ctx)
	for i := 0; i < *producers; i++ {
		worker := i
		g.Go(func() error {
			return produce(runCtx, client, worker, *rate, *count)
		})
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		logging.Error("producer error", logging.F("error", err.Error()))
	}

	logging.Info("shutting down")
	checker.SetShuttingDown()
	stop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		metricsServer.Shutdown(shutdownCtx)
		cancel()
	}

	report := client.Shutdown(context.Background())
	logging.Info("shutdown complete", logging.F(
		"exported_events", report.ExportedEvents,
		"exported_batches", report.ExportedBatches,
		"failed_batches", report.FailedBatches,
		"lost_on_shutdown", report.LostOnShutdown,
		"dropped_oldest", report.DroppedOldest,
		"dropped_newest", report.DroppedNewest,
		"elapsed", report.Elapsed.String(),
	))
}

// produce emits one span per iteration with a correlated log and a pair of
// metrics, mimicking an instrumented request handler.
func produce(ctx context.Context, client *telemetry.Client, worker int, rate time.Duration, count int) error {
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	workerAttr := attribute.Int("worker", worker)
	for i := 0; count == 0 || i < count; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		spanCtx, span := client.StartSpan(ctx, "smoke_request", workerAttr)
		client.Metric(spanCtx, "smoke.requests", 1, workerAttr)
		if i%100 == 99 {
			client.Warn(spanCtx, "synthetic slow request", workerAttr)
		} else {
			client.Info(spanCtx, "synthetic request", workerAttr)
		}
		client.Metric(spanCtx, "smoke.iteration", float64(i), workerAttr)
		span.End()
	}
	return nil
}
