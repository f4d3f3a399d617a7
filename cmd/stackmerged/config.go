package main

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	ServiceConfig struct {
		Environment string

		SentryDSN string `env:"SENTRY_DSN"`
		LogLevel  string `env:"STACKMERGE_LOG_LEVEL"`

		// ListingsBucket is a gocloud.dev bucket URL. Listings aren't stored
		// when empty.
		ListingsBucket string `env:"STACKMERGE_BUCKET"`

		ListingsKafkaBrokers []string `env:"STACKMERGE_KAFKA_BROKERS" env-separator:","`
		ListingsKafkaTopic   string   `env:"STACKMERGE_KAFKA_TOPIC"`

		MaxBodyBytes int64 `env:"STACKMERGE_MAX_BODY_BYTES"`
	}
)

var (
	serviceConfigs = map[string]ServiceConfig{
		"production": {
			LogLevel:             "info",
			ListingsBucket:       "gs://stackmerge-listings",
			ListingsKafkaBrokers: []string{"kafka.service.consul:9092"},
			ListingsKafkaTopic:   "merged-stacks",
			MaxBodyBytes:         256 << 20,
		},
		"development": {
			LogLevel:     "debug",
			MaxBodyBytes: 256 << 20,
		},
	}
)

// loadServiceConfig starts from the defaults of the environment and applies
// the environment variables on top.
func loadServiceConfig(envName string) (ServiceConfig, error) {
	cfg, exists := serviceConfigs[envName]
	if !exists {
		return ServiceConfig{}, fmt.Errorf("service config for environment %v does not exist", envName)
	}
	cfg.Environment = envName
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return ServiceConfig{}, err
	}
	return cfg, nil
}
