package config

import (
	"os"
	"strings"
	"time"
)

// Config captures service level configuration. FromEnv keeps main lean.
type Config struct {
	Addr          string
	PostgresURL   string
	RedisURL      string
	KafkaBrokers  []string
	KafkaTopic    string
	JWTSigningKey string
	// LookupTimeout bounds one company directory call. The gate retries once
	// with backoff before failing the signature closed.
	LookupTimeout time.Duration
	LookupRetry   time.Duration
}

func FromEnv() Config {
	cfg := Config{
		Addr:          getenv("BORDEREAU_ADDR", ":8080"),
		PostgresURL:   os.Getenv("BORDEREAU_POSTGRES_URL"),
		RedisURL:      os.Getenv("BORDEREAU_REDIS_URL"),
		KafkaTopic:    getenv("BORDEREAU_KAFKA_TOPIC", "bordereau.events"),
		JWTSigningKey: getenv("BORDEREAU_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		LookupTimeout: 3 * time.Second,
		LookupRetry:   500 * time.Millisecond,
	}
	if brokers := os.Getenv("BORDEREAU_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if timeout, err := time.ParseDuration(os.Getenv("BORDEREAU_LOOKUP_TIMEOUT")); err == nil {
		cfg.LookupTimeout = timeout
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
