package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	appPayment "github.com/Zhima-Mochi/storefront/internal/application/payment"
	"github.com/Zhima-Mochi/storefront/internal/config"
	"github.com/Zhima-Mochi/storefront/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/gateway"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/gateway/fake"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/gateway/signature"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/gateway/stripe"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/redis"
	"github.com/Zhima-Mochi/storefront/internal/observability"
	httppresentation "github.com/Zhima-Mochi/storefront/internal/presentation/http"
)

type productStore interface {
	catalog.Reader
	dominv.Ledger
}

type stores struct {
	products   productStore
	orders     domorder.Repository
	payments   dompay.Repository
	deliveries appPayment.DeliveryStore
	checks     map[string]func(context.Context) error
	closers    []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// seedCatalog is loaded on startup when SEED_CATALOG is on. Existing rows are
// never overwritten.
var seedCatalog = []catalog.Product{
	{ID: "prod_widget", Name: "Widget", UnitPrice: 1000, Stock: 100},
	{ID: "prod_gadget", Name: "Gadget", UnitPrice: 2499, Stock: 50},
	{ID: "prod_gizmo", Name: "Gizmo", UnitPrice: 599, Stock: 200},
	{ID: "prod_doohickey", Name: "Doohickey", UnitPrice: 15000, Stock: 5},
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	st := &stores{checks: map[string]func(context.Context) error{}}

	if cfg.DatabaseURL == "" {
		products := memory.NewProductRepository()
		if cfg.SeedCatalog {
			for _, p := range seedCatalog {
				products.Put(p)
			}
		}
		st.products = products
		st.orders = memory.NewOrderRepository()
		st.payments = memory.NewPaymentRepository()
		log.Info("storage_selected", zap.String("backend", "memory"))
	} else {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			st.close()
			return nil, err
		}
		products := postgres.NewProductRepository(db)
		if cfg.SeedCatalog {
			if err := products.Seed(ctx, seedCatalog...); err != nil {
				st.close()
				return nil, err
			}
		}
		st.products = products
		st.orders = postgres.NewOrderRepository(db)
		st.payments = postgres.NewPaymentRepository(db)
		st.checks["postgres"] = db.Ping
		log.Info("storage_selected", zap.String("backend", "postgres"))
	}

	if cfg.RedisURL == "" {
		st.deliveries = memory.NewDeliveryStore(cfg.WebhookTTL)
	} else {
		rs, err := redis.NewDeliveryStore(cfg.RedisURL, cfg.WebhookTTL)
		if err != nil {
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = rs.Close() })
		st.deliveries = rs
		st.checks["redis"] = rs.Ping
	}
	return st, nil
}

type gatewaySet struct {
	gateway   dompay.Gateway
	verifier  dompay.WebhookVerifier
	simulator httppresentation.Simulator
}

func openGateway(cfg *config.Config, tel observability.Observability) (*gatewaySet, error) {
	switch cfg.Gateway {
	case config.GatewayFake:
		g := fake.New(cfg.WebhookSecret)
		return &gatewaySet{
			gateway:   gateway.Instrument(g, config.GatewayFake, tel),
			verifier:  fake.NewVerifier(cfg.WebhookSecret, signature.DefaultTolerance),
			simulator: g,
		}, nil
	case config.GatewayStripe:
		return &gatewaySet{
			gateway:  gateway.Instrument(stripe.New(cfg.StripeSecretKey), config.GatewayStripe, tel),
			verifier: stripe.NewVerifier(cfg.WebhookSecret, signature.DefaultTolerance),
		}, nil
	}
	return nil, fmt.Errorf("unknown gateway %q", cfg.Gateway)
}
