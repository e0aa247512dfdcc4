package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/ggems/ggems/internal/config"
	"github.com/ggems/ggems/internal/gpu"
	"github.com/ggems/ggems/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const metricsPath = "/metrics"

func newManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *gpu.Manager {
	backend := gpu.NewBackend(cfg, log)
	manager := gpu.NewManager(backend, gpu.OptionsFromConfig(cfg), log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return manager.Initialize()
		},
		OnStop: func(context.Context) error {
			return manager.Close()
		},
	})
	return manager
}

// registerMetricsServer serves the Prometheus registry while the app runs.
// Nothing is started when no listen address is configured.
func registerMetricsServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) {
	addr := cfg.Metrics.ListenAddress
	if addr == "" {
		return
	}
	server := &http.Server{Addr: addr, Handler: metrics.Handler(metricsPath)}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			log.Info("Serving metrics", zap.String("address", ln.Addr().String()), zap.String("path", metricsPath))
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

// run builds the object graph, starts it, hands the manager to fn and stops
// the graph again, closing the manager.
func run(st *state, fn func(*gpu.Manager) error) error {
	var manager *gpu.Manager
	app := fx.New(
		fx.Supply(st.cfg, st.log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(newManager),
		fx.Invoke(registerMetricsServer),
		fx.Populate(&manager),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(manager)

	if st.hold && st.cfg.Metrics.ListenAddress != "" {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		st.log.Info("Holding until interrupted")
		<-ctx.Done()
		stop()
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	return errors.Join(runErr, app.Stop(stopCtx))
}
