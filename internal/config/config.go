package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/identity"
	"github.com/fjod/go_cart/bookstore/internal/platform/postgres"
)

const (
	ServiceName    = "bookstore"
	ServiceVersion = "0.1.0"
)

type Config struct {
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	// Storage selects "postgres" or "memory" for orders and inventory.
	Storage  string
	Postgres postgres.Credentials

	// CartStore selects "mongo" or "memory" for cart lines.
	CartStore   string
	MongoURI    string
	MongoDBName string

	// Empty RedisAddr disables the cart cache.
	RedisAddr     string
	RedisPassword string

	CatalogDBPath         string
	CatalogMigrationsPath string

	// Empty KafkaBrokers disables the outbox publisher and the cart cleanup consumer.
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaGroupID   string
	OutboxInterval time.Duration

	// Empty OtelEndpoint disables trace export.
	OtelEndpoint string

	// Customers seeds the user directory, from CUSTOMERS="id=Name,id=Name".
	Customers []identity.Customer

	// SeedStock is applied to every catalog book without an inventory record at startup.
	SeedStock int32
}

func Load() (*Config, error) {
	var errs []string
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return d
	}
	integer := func(key, def string, bits int) int64 {
		n, err := strconv.ParseInt(getEnv(key, def), 10, bits)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return n
	}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     duration("REQUEST_TIMEOUT", "30s"),
		ShutdownTimeout:    duration("SHUTDOWN_TIMEOUT", "10s"),
		MaxRequestBodySize: integer("MAX_REQUEST_BODY_SIZE", "1048576", 64),
		LogLevel:           getEnv("LOG_LEVEL", "info"),

		Storage: getEnv("STORAGE", "postgres"),
		Postgres: postgres.Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              int(integer("DB_PORT", "5432", 32)),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "bookstore"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/platform/postgres/migrations"),
		},

		CartStore:   getEnv("CART_STORE", "mongo"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "cartdb"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		CatalogDBPath:         getEnv("CATALOG_DB_PATH", "./catalog.db"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "./internal/catalog/migrations"),

		KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "order-events"),
		KafkaGroupID:   getEnv("KAFKA_GROUP_ID", "bookstore-cart-cleanup"),
		OutboxInterval: duration("OUTBOX_INTERVAL", "1s"),

		OtelEndpoint: getEnv("OTEL_ENDPOINT", ""),

		SeedStock: int32(integer("SEED_STOCK", "0", 32)),
	}

	customers, err := parseCustomers(getEnv("CUSTOMERS", ""))
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.Customers = customers

	if cfg.Storage != "postgres" && cfg.Storage != "memory" {
		errs = append(errs, fmt.Sprintf("invalid STORAGE %q: want postgres or memory", cfg.Storage))
	}
	if cfg.CartStore != "mongo" && cfg.CartStore != "memory" {
		errs = append(errs, fmt.Sprintf("invalid CART_STORE %q: want mongo or memory", cfg.CartStore))
	}
	if cfg.SeedStock < 0 {
		errs = append(errs, "invalid SEED_STOCK: must not be negative")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseCustomers(s string) ([]identity.Customer, error) {
	var out []identity.Customer
	for _, entry := range splitList(s) {
		id, name, ok := strings.Cut(entry, "=")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if !ok || id == "" || name == "" {
			return nil, fmt.Errorf("invalid CUSTOMERS entry %q: want id=Name", entry)
		}
		out = append(out, identity.Customer{ID: id, Name: name})
	}
	return out, nil
}
