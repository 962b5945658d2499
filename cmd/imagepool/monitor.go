package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/imagepool/pkg/config"
	"github.com/ajitpratap0/imagepool/pkg/logger"
	"github.com/ajitpratap0/imagepool/pkg/memory"
	"github.com/ajitpratap0/imagepool/pkg/metrics"
	"github.com/ajitpratap0/imagepool/pkg/observability"
	"github.com/ajitpratap0/imagepool/pkg/pool"
)

func newMonitorCommand(v *viper.Viper) *cobra.Command {
	var trimOnStart string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve pool metrics and trim pools under memory pressure",
		Long: `Build the configured pools, register them with the trim registry and
run the memory pressure monitor until interrupted. Prometheus metrics are
served on the configured address and trim spans are exported to stdout
when tracing is enabled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var level *memory.TrimType
			if trimOnStart != "" {
				t, err := memory.ParseTrimType(trimOnStart)
				if err != nil {
					return err
				}
				level = &t
			}
			return runMonitor(ctx, cfg, level)
		},
	}
	cmd.Flags().StringVar(&trimOnStart, "trim", "", "Deliver this trim type once the pools are built")
	return cmd
}

func runMonitor(ctx context.Context, cfg *config.Config, trimOnStart *memory.TrimType) error {
	var registryOpts []memory.RegistryOption
	if cfg.Observability.EnableTracing {
		tc := observability.DefaultTracingConfig(cfg.Name)
		tc.ServiceVersion = version
		tc.SamplingRate = cfg.Observability.TracingSampleRate
		tp, err := observability.InitTracing(ctx, tc)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
		registryOpts = append(registryOpts, memory.WithTracerProvider(tp))
	}

	registry := memory.NewRegistry(registryOpts...)
	registry.Register(metrics.NewTrimRecorder())

	factory, err := pool.NewFactory(cfg.Pools, registry,
		pool.WithStatsTrackerFactory(func(name string) pool.StatsTracker {
			return metrics.NewPoolStatsTracker(name)
		}),
	)
	if err != nil {
		return err
	}
	if err := buildPools(factory); err != nil {
		return err
	}

	gauges, err := observability.RegisterPoolGauges(otel.Meter(cfg.Name), factory.Stats)
	if err != nil {
		return err
	}
	defer func() { _ = gauges.Unregister() }()

	if trimOnStart != nil {
		n := registry.Trim(ctx, *trimOnStart)
		logger.Info("initial trim delivered", zap.Stringer("trim_type", *trimOnStart), zap.Int("targets", n))
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Monitor.Enabled {
		monitor, err := memory.NewPressureMonitor(cfg.Monitor.MonitorConfig, registry, memory.SystemSampler)
		if err != nil {
			return err
		}
		g.Go(func() error { return monitor.Run(ctx) })
	}

	if interval := cfg.Observability.StatsInterval; interval > 0 {
		g.Go(func() error { return observeStats(ctx, factory, interval) })
	}

	if cfg.Observability.EnableMetrics {
		server := &http.Server{
			Addr:              cfg.Observability.MetricsAddress,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", zap.String("address", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	logger.Info("monitor started",
		zap.String("name", cfg.Name),
		zap.Int("trim_targets", registry.Len()),
		zap.Bool("pressure_monitor", cfg.Monitor.Enabled))

	err = g.Wait()
	logger.Info("monitor stopped")
	return err
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// observeStats copies pool snapshots into the Prometheus gauges every
// interval until ctx is done.
func observeStats(ctx context.Context, factory *pool.Factory, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for _, s := range factory.Stats() {
			metrics.ObserveStats(s)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
