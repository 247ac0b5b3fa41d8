// Package config reads process configuration from the environment, after
// loading a .env file when one is present.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Telemetry is shared by the client and the loopback backend.
type Telemetry struct {
	AMQPURL      string `env:"CHAT_AMQP_URL"`
	AMQPExchange string `env:"CHAT_AMQP_EXCHANGE" envDefault:"chat.lifecycle"`
	RoutingKey   string `env:"CHAT_AMQP_ROUTING_KEY" envDefault:"chat.lifecycle"`
	OTelEndpoint string `env:"CHAT_OTEL_ENDPOINT"`
	Environment  string `env:"CHAT_ENV" envDefault:"local"`
}

// Client configures the chat-sync client process.
type Client struct {
	APIURL               string        `env:"CHAT_API_URL" envDefault:"http://localhost:8083"`
	WSURL                string        `env:"CHAT_WS_URL" envDefault:"ws://localhost:8083/ws"`
	Token                string        `env:"CHAT_TOKEN"`
	TimeUnit             time.Duration `env:"CHAT_TIME_UNIT" envDefault:"1s"`
	MaxReconnectAttempts int           `env:"CHAT_MAX_RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconcileWindow      time.Duration `env:"CHAT_RECONCILE_WINDOW" envDefault:"30s"`
	MetricsAddr          string        `env:"CHAT_METRICS_ADDR"`
	Telemetry
}

// Backend configures the loopback chat backend.
type Backend struct {
	Port      string `env:"PORT" envDefault:"8083"`
	JWTSecret string `env:"CHAT_JWT_SECRET"`
	Debug     bool   `env:"DEBUG"`
	Telemetry
}

// LoadClient reads the client configuration.
func LoadClient() (Client, error) {
	var cfg Client
	if err := parse(&cfg); err != nil {
		return Client{}, err
	}
	if cfg.TimeUnit <= 0 {
		return Client{}, fmt.Errorf("CHAT_TIME_UNIT must be positive, got %s", cfg.TimeUnit)
	}
	if cfg.MaxReconnectAttempts <= 0 {
		return Client{}, fmt.Errorf("CHAT_MAX_RECONNECT_ATTEMPTS must be positive, got %d", cfg.MaxReconnectAttempts)
	}
	return cfg, nil
}

// LoadBackend reads the backend configuration.
func LoadBackend() (Backend, error) {
	var cfg Backend
	if err := parse(&cfg); err != nil {
		return Backend{}, err
	}
	return cfg, nil
}

func parse(target any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
