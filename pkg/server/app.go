package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"CapFlow/internal/handler/api"
	"CapFlow/internal/usecase"
	"CapFlow/pkg/config"
	xhttp "CapFlow/pkg/http"
	pkgkafka "CapFlow/pkg/kafka"
	applogger "CapFlow/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	dash       *usecase.FlowDashboard
	refresher  *usecase.Refresher
	hub        *api.TapeHub
	handler    xhttp.Handler
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	httpServer *xhttp.Server
}

// Option customizes App.
type Option func(*App)

// WithConsumer runs consumer with kh registered alongside the HTTP server.
func WithConsumer(consumer *pkgkafka.Consumer, kh pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = consumer
		a.kh = kh
	}
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	dash *usecase.FlowDashboard,
	hub *api.TapeHub,
	handler xhttp.Handler,
	opts ...Option,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	a := &App{
		cfg:       cfg,
		log:       log,
		dash:      dash,
		refresher: usecase.NewRefresher(dash, cfg.Provider.RefreshInterval, log),
		hub:       hub,
		handler:   handler,
	}
	for _, opt := range opts {
		opt(a)
	}
	if hub != nil {
		dash.SetTapeListener(hub.Broadcast)
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(log),
	)
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is cancelled.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var hubDone chan struct{}
	if a.hub != nil {
		hubDone = make(chan struct{})
		go func() {
			defer close(hubDone)
			a.hub.Run(runCtx)
		}()
	}

	go a.refresher.Run(runCtx)
	a.log.Info("refresher started",
		applogger.String("provider", a.cfg.Provider.Type),
		applogger.Duration("interval", a.cfg.Provider.RefreshInterval),
	)

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return a.abort(ctx, cancel, hubDone, err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return a.abort(ctx, cancel, hubDone, err)
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown(context.WithoutCancel(ctx), cancel, hubDone)
}

// abort stops whatever already started after err. The shutdown context must
// outlive cancel, which shutdown calls to stop the background loops.
func (a *App) abort(ctx context.Context, cancel context.CancelFunc, hubDone <-chan struct{}, err error) error {
	return errors.Join(err, a.shutdown(context.WithoutCancel(ctx), cancel, hubDone))
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context, cancel context.CancelFunc, hubDone <-chan struct{}) error {
	a.log.Info("shutting down...")
	var errs []error

	shutdownCtx, stop := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer stop()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	// Background loops stop after the server so in-flight requests finish.
	cancel()
	select {
	case <-a.refresher.Done():
	case <-shutdownCtx.Done():
		a.log.Warn("refresher did not stop in time")
	}
	if hubDone != nil {
		<-hubDone
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
