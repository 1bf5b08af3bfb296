package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Config struct {
	ServiceName string `yaml:"service_name"`
	Env         string `yaml:"env"`
	LogLevel    string `yaml:"log_level"`

	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Cart      CartConfig      `yaml:"cart"`
	Events    EventsConfig    `yaml:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Products are upserted into the catalog on start.
	Products []ProductSeed `yaml:"products,omitempty"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	MySQLDSN    string `yaml:"mysql_dsn"`
	PostgresDSN string `yaml:"postgres_dsn"`
	MaxConns    int    `yaml:"max_conns"`
	Migrate     bool   `yaml:"migrate"`
}

type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	PoolSize   int           `yaml:"pool_size"`
	CatalogTTL time.Duration `yaml:"catalog_ttl"`
}

type CartConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

type EventsConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

type ProductSeed struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	Price             string `yaml:"price"`
	QuantityAvailable int    `yaml:"quantity_available"`
}

func Default() Config {
	return Config{
		ServiceName: "shop-dashboard",
		Env:         "development",
		LogLevel:    "info",
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		Store: StoreConfig{
			Driver:   DriverMemory,
			MySQLDSN: "root:root@tcp(localhost:3306)/shop?parseTime=true&loc=UTC",
			MaxConns: 50,
			Migrate:  true,
		},
		Redis: RedisConfig{
			PoolSize:   100,
			CatalogTTL: 30 * time.Second,
		},
		Cart: CartConfig{
			MaxRetries:   5,
			RetryBackoff: 5 * time.Millisecond,
		},
		Events: EventsConfig{
			Workers:   10,
			QueueSize: 10000,
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("SERVICE_NAME", &c.ServiceName)
	str("APP_ENV", &c.Env)
	str("LOG_LEVEL", &c.LogLevel)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("GRPC_ADDR", &c.GRPCAddr)
	str("STORE_DRIVER", &c.Store.Driver)
	str("MYSQL_DSN", &c.Store.MySQLDSN)
	str("POSTGRES_DSN", &c.Store.PostgresDSN)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	ints := []struct {
		key string
		dst *int
	}{
		{"EVENT_WORKERS", &c.Events.Workers},
		{"EVENT_QUEUE_SIZE", &c.Events.QueueSize},
		{"CART_MAX_RETRIES", &c.Cart.MaxRetries},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverMemory:
	case DriverMySQL:
		if c.Store.MySQLDSN == "" {
			errs = append(errs, errors.New("store.mysql_dsn is required for the mysql driver"))
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.HTTPAddr == "" && c.GRPCAddr == "" {
		errs = append(errs, errors.New("at least one of http_addr and grpc_addr must be set"))
	}
	if c.Events.Workers <= 0 {
		errs = append(errs, errors.New("events.workers must be positive"))
	}
	if c.Events.QueueSize <= 0 {
		errs = append(errs, errors.New("events.queue_size must be positive"))
	}
	if c.Cart.MaxRetries <= 0 {
		errs = append(errs, errors.New("cart.max_retries must be positive"))
	}
	for i, p := range c.Products {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("products[%d].id is required", i))
		}
	}
	return errors.Join(errs...)
}
