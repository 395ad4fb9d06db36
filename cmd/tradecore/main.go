// Command tradecore is the trading core's process entrypoint: load
// config, wire the ServiceContext, rescan for bots left active across
// a restart, serve /metrics for the ambient Prometheus scrape, and
// shut every running bot down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeromicro/go-zero/core/logx"

	"tradecore/internal/config"
	"tradecore/internal/svc"
	"tradecore/pkg/redact"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("f", "etc/tradecore.yaml", "path to the config file")
	metricsAddr := flag.String("metrics-addr", ":9090", "address the /metrics admin surface listens on")
	flag.Parse()

	logx.SetWriter(redact.NewWriter(logx.NewWriter(os.Stdout)))

	cfg := config.MustLoad(*configPath)
	logx.Infof("tradecore: starting in %s mode, %d configured bots", cfg.Env, len(cfg.Bots))

	serviceCtx := svc.NewServiceContext(cfg)

	registry := prometheus.NewRegistry()
	serviceCtx.MustRegisterMetrics(registry)
	serveMetrics(*metricsAddr, registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serviceCtx.Scheduler.ColdStartRescan(ctx); err != nil {
		logx.Errorf("tradecore: cold start rescan failed: %v", err)
	}
	for _, bot := range cfg.Bots {
		if err := serviceCtx.Scheduler.StartBot(ctx, bot.ID); err != nil {
			logx.Errorf("tradecore: failed to start bot %s: %v", bot.ID, err)
		}
	}

	logx.Info("tradecore: running, press Ctrl+C to stop")
	<-ctx.Done()
	logx.Info("tradecore: shutdown signal received, stopping bots...")

	done := make(chan struct{})
	go func() {
		serviceCtx.Scheduler.StopAll()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("tradecore: all bots stopped cleanly")
	case <-time.After(shutdownTimeout):
		logx.Error("tradecore: shutdown timeout exceeded, forcing exit")
	}
}

// serveMetrics starts the Prometheus admin surface on its own
// goroutine. §6's admin surface (start/stop/pause HTTP API) is out of
// scope; the metrics it would otherwise expose are ambient
// observability, not a feature, so they stay in scope.
func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Errorf("tradecore: metrics server stopped: %v", err)
		}
	}()
}
