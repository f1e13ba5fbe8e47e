package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	appInventory "github.com/Zhima-Mochi/storefront/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/storefront/internal/application/order"
	appPayment "github.com/Zhima-Mochi/storefront/internal/application/payment"
	"github.com/Zhima-Mochi/storefront/internal/config"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/id"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/kafka"
	infraobs "github.com/Zhima-Mochi/storefront/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/storefront/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/storefront/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/storefront/internal/presentation/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	baseLogger, err := logging.NewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)
	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	oteltrace.InstallPropagator()
	counters, histograms := prometrics.Standard(prometrics.New("", "", nil))
	tel := infraobs.New(oteltrace.New(cfg.ServiceName), zaplogger.Wrap(baseLogger), counters, histograms)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, systemLogger)
	if err != nil {
		return err
	}
	defer st.close()

	gw, err := openGateway(cfg, tel)
	if err != nil {
		return err
	}

	// In-memory event bus; the Kafka relay, when enabled, forwards every event.
	bus := outbox.NewBus(tel.Logger())
	if cfg.KafkaBrokers != "" {
		client := kafka.NewClient(cfg.KafkaBrokers)
		relay := kafka.NewRelay(client.NewWriter(cfg.KafkaTopic), cfg.ServiceName, tel)
		defer func() { _ = relay.Close() }()
		bus.SubscribeAll(workerpresentation.Middleware("kafka_relay", tel)(relay.Handle))
		systemLogger.Info("event_relay_enabled", zap.Strings("brokers", client.Brokers), zap.String("topic", cfg.KafkaTopic))
	}

	orderIDs := id.NewPrefixed("ord_")
	paymentIDs := id.NewPrefixed("pay_")

	restock := appInventory.NewRestockOnCancelUseCase(st.products, cfg.RestockOnCancel, tel)
	reconciler := appPayment.NewReconciler(st.payments, st.orders, gw.gateway, restock, bus, tel)
	deps := httppresentation.Deps{
		CreateOrder:  appOrder.NewCreateOrderUseCase(st.orders, st.products, st.products, orderIDs, bus, tel),
		UpdateStatus: appOrder.NewUpdateStatusUseCase(st.orders, restock, bus, tel),
		Orders:       appOrder.NewQueries(st.orders, tel),
		CreatePayment: appPayment.NewCreatePaymentUseCase(st.payments, st.orders, gw.gateway, paymentIDs, appPayment.Settings{
			Currency:       cfg.Currency,
			GatewayTimeout: cfg.GatewayTimeout,
		}, tel),
		ConfirmPayment: appPayment.NewConfirmPaymentUseCase(st.payments, gw.gateway, reconciler, cfg.GatewayTimeout, tel),
		CollectCash:    appPayment.NewCollectCashUseCase(st.payments, reconciler, tel),
		Webhook:        appPayment.NewWebhookUseCase(gw.verifier, st.payments, reconciler, st.deliveries, tel),
		Payments:       appPayment.NewQueries(st.payments, st.orders, tel),
		Products:       st.products,
		Currency:       cfg.Currency,
		Checks:         st.checks,
		Metrics:        promhttp.Handler(),
	}
	if gw.simulator != nil && cfg.Env != "prod" {
		deps.Simulator = gw.simulator
	}

	bus.Start(context.Background())

	sweeper := appPayment.NewSweeper(st.payments, gw.gateway, reconciler, appPayment.SweeperConfig{
		Interval:       cfg.SweepInterval,
		Age:            cfg.SweepAge,
		GatewayTimeout: cfg.GatewayTimeout,
	}, tel)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	handler := httppresentation.NewHandler(deps, tel.Logger(), tel)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		systemLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
			zap.String("gateway", cfg.Gateway),
			zap.Bool("restock_on_cancel", cfg.RestockOnCancel),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			systemLogger.Error("http_server_error", zap.Error(err))
			stop()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", zap.Error(err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	stop()
	wg.Wait()
	bus.Stop(shutdownCtx)
	return nil
}
