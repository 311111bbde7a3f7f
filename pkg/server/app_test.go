package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"CapFlow/internal/handler/api"
	"CapFlow/internal/service/provider"
	"CapFlow/internal/services/analytics"
	"CapFlow/internal/services/narrative"
	"CapFlow/internal/usecase"
	"CapFlow/pkg/config"
	pkgkafka "CapFlow/pkg/kafka"
	applogger "CapFlow/pkg/logger"
	"CapFlow/pkg/util"
)

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second

	src := provider.NewSyntheticProvider(7, util.NewTradingCalendar("xnys"))
	dash := usecase.NewFlowDashboard(src, analytics.NewEngine(), narrative.NewFallback())
	return New(cfg, applogger.Nop(), dash, nil, api.NewFlowsEchoHandler(nil, dash), opts...)
}

func TestAbortStopsComponentsWithLiveContext(t *testing.T) {
	consumer, err := pkgkafka.NewConsumer(pkgkafka.WithConsumerBrokers([]string{"127.0.0.1:1"}))
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	a := newTestApp(t, WithConsumer(consumer, nil))

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.refresher.Run(runCtx)

	startErr := errors.New("consumer start failed")
	err = a.abort(runCtx, cancel, nil, startErr)
	if !errors.Is(err, startErr) {
		t.Fatalf("abort error = %v", err)
	}
	// Only the start error comes back: consumer.Stop saw a usable context.
	if err.Error() != startErr.Error() {
		t.Fatalf("shutdown reported errors: %v", err)
	}
	select {
	case <-a.refresher.Done():
	default:
		t.Fatal("refresher still running after abort")
	}
}

func TestRunContextStopsOnCancel(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := a.RunContext(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	select {
	case <-a.refresher.Done():
	default:
		t.Fatal("refresher still running after shutdown")
	}
}
