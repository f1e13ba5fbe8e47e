// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	GatewayFake   = "fake"
	GatewayStripe = "stripe"
)

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string
	LogLevel    string
	LogFile     string

	// Empty DatabaseURL keeps everything in memory.
	DatabaseURL string
	// Empty RedisURL keeps webhook delivery ids in memory.
	RedisURL string
	// Empty KafkaBrokers disables the event relay.
	KafkaBrokers string
	KafkaTopic   string

	Gateway         string
	StripeSecretKey string
	WebhookSecret   string
	Currency        string
	GatewayTimeout  time.Duration
	WebhookTTL      time.Duration

	SweepInterval time.Duration
	SweepAge      time.Duration

	RestockOnCancel bool
	SeedCatalog     bool
}

func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:     getenv("SERVICE_NAME", "storefront"),
		Env:             getenv("ENV", "dev"),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFile:         os.Getenv("LOG_FILE"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:      getenv("KAFKA_TOPIC", "storefront.events"),
		Gateway:         strings.ToLower(getenv("GATEWAY", GatewayFake)),
		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		WebhookSecret:   getenv("WEBHOOK_SECRET", "whsec_dev"),
		Currency:        strings.ToLower(getenv("CURRENCY", "usd")),
	}

	var errs []error
	cfg.GatewayTimeout = duration("GATEWAY_TIMEOUT", 10*time.Second, &errs)
	cfg.WebhookTTL = duration("WEBHOOK_DEDUP_TTL", 72*time.Hour, &errs)
	cfg.SweepInterval = duration("SWEEP_INTERVAL", time.Minute, &errs)
	cfg.SweepAge = duration("SWEEP_AGE", 5*time.Minute, &errs)
	cfg.RestockOnCancel = boolean("RESTOCK_ON_CANCEL", false, &errs)
	cfg.SeedCatalog = boolean("SEED_CATALOG", true, &errs)

	switch cfg.Gateway {
	case GatewayFake:
	case GatewayStripe:
		if cfg.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required when GATEWAY=stripe"))
		}
	default:
		errs = append(errs, fmt.Errorf("GATEWAY: unknown gateway %q", cfg.Gateway))
	}
	if cfg.WebhookSecret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET must not be empty"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func boolean(key string, def bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}
