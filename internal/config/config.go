// Package config содержит логику чтения конфигурации движка бронирования.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации движка бронирования.
type Config struct {
	RunAddress            string        `env:"RUN_ADDRESS"`
	DatabaseURI           string        `env:"DATABASE_URI"`
	PaymentGatewayAddress string        `env:"PAYMENT_GATEWAY_ADDRESS"`
	AMQPAddress           string        `env:"AMQP_ADDRESS"`
	AuthSecret            string        `env:"AUTH_SECRET"`
	PendingTTL            time.Duration `env:"PENDING_TTL"`
	SweepInterval         time.Duration `env:"SWEEP_INTERVAL"`
	ReceiptClusterGap     time.Duration `env:"RECEIPT_CLUSTER_GAP"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных
// окружения; окружение имеет приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayAddress := cfg.PaymentGatewayAddress
	envAMQPAddress := cfg.AMQPAddress
	envAuthSecret := cfg.AuthSecret
	envPendingTTL := cfg.PendingTTL
	envSweepInterval := cfg.SweepInterval
	envReceiptGap := cfg.ReceiptClusterGap

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PaymentGatewayAddress, "p", "", "payment gateway address")
	flag.StringVar(&cfg.AMQPAddress, "q", "", "AMQP broker address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "auth cookie signing secret")
	flag.DurationVar(&cfg.PendingTTL, "pending-ttl", 0, "TTL of unpaid bookings before sweep cancellation")
	flag.DurationVar(&cfg.SweepInterval, "sweep-interval", 0, "reconciliation sweep period")
	flag.DurationVar(&cfg.ReceiptClusterGap, "receipt-gap", 0, "max creation gap between bookings of one receipt")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayAddress != "" {
		cfg.PaymentGatewayAddress = envGatewayAddress
	}
	if envAMQPAddress != "" {
		cfg.AMQPAddress = envAMQPAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envPendingTTL != 0 {
		cfg.PendingTTL = envPendingTTL
	}
	if envSweepInterval != 0 {
		cfg.SweepInterval = envSweepInterval
	}
	if envReceiptGap != 0 {
		cfg.ReceiptClusterGap = envReceiptGap
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
