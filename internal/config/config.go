package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Backends suportados
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendHTTP     = "http"
)

// Config representa a configuração do serviço
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	Catalog   CatalogConfig
	Database  DatabaseConfig
	Cart      CartConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
	Shift     ShiftConfig
	Sale      SaleConfig
}

type ServerConfig struct {
	Name string
	Env  string
	Port string
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	Backend  string
	SeedFile string
}

type CatalogConfig struct {
	Backend           string
	URL               string
	Timeout           time.Duration
	LowStockThreshold int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MaxConns int32
}

// CartConfig: RedisURL vazio mantém os snapshots do carrinho no próprio processo
type CartConfig struct {
	RedisURL string
	TTL      time.Duration
}

type KafkaConfig struct {
	Brokers            []string
	TopicSaleCommitted string
	TopicSaleCancelled string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
}

type ShiftConfig struct {
	Timezone       string
	AutoStart      bool
	WorkHoursStart int
	WorkHoursEnd   int
}

type SaleConfig struct {
	CancelWindow time.Duration
	MinPrice     decimal.Decimal
}

// Location resolve o fuso horário configurado
func (c ShiftConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// fileConfig espelha o esquema do arquivo YAML
type fileConfig struct {
	Service struct {
		Name     string `yaml:"name"`
		Env      string `yaml:"env"`
		Port     string `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"service"`
	Storage struct {
		Backend  string `yaml:"backend"`
		SeedFile string `yaml:"seed_file"`
	} `yaml:"storage"`
	Catalog struct {
		Backend           string `yaml:"backend"`
		URL               string `yaml:"url"`
		Timeout           string `yaml:"timeout"`
		LowStockThreshold int    `yaml:"low_stock_threshold"`
	} `yaml:"catalog"`
	Database struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"database"`
	Cart struct {
		RedisURL string `yaml:"redis_url"`
		TTL      string `yaml:"ttl"`
	} `yaml:"cart"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topics  struct {
			SaleCommitted string `yaml:"sale_committed"`
			SaleCancelled string `yaml:"sale_cancelled"`
		} `yaml:"topics"`
	} `yaml:"kafka"`
	Telemetry struct {
		Enabled  *bool  `yaml:"enabled"`
		Endpoint string `yaml:"otlp_endpoint"`
	} `yaml:"telemetry"`
	Shift struct {
		Timezone       string `yaml:"timezone"`
		AutoStart      *bool  `yaml:"auto_start"`
		WorkHoursStart *int   `yaml:"work_hours_start"`
		WorkHoursEnd   *int   `yaml:"work_hours_end"`
	} `yaml:"shift"`
	Sale struct {
		CancelWindow string `yaml:"cancel_window"`
		MinPrice     string `yaml:"min_price"`
	} `yaml:"sale"`
}

func defaults() Config {
	return Config{
		Server:    ServerConfig{Name: "pos-service", Env: "development", Port: "8080"},
		Log:       LogConfig{Level: "info"},
		Storage:   StorageConfig{Backend: BackendMemory},
		Catalog:   CatalogConfig{Timeout: 5 * time.Second, LowStockThreshold: 10},
		Database:  DatabaseConfig{Host: "localhost", Port: "5432", User: "pos", Password: "pos", Name: "pos_db", MaxConns: 20},
		Cart:      CartConfig{TTL: 24 * time.Hour},
		Telemetry: TelemetryConfig{Enabled: false, OTLPEndpoint: "localhost:4318"},
		Shift:     ShiftConfig{Timezone: "Asia/Bangkok", AutoStart: false, WorkHoursStart: 6, WorkHoursEnd: 23},
		Sale:      SaleConfig{CancelWindow: 24 * time.Hour, MinPrice: decimal.RequireFromString("0.01")},
	}
}

// Load resolve a configuração na ordem: padrões -> arquivo YAML -> .env -> variáveis de ambiente.
// path vazio usa POS_CONFIG_FILE; arquivo inexistente é ignorado.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv("POS_CONFIG_FILE")
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	// .env é opcional
	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&cfg.Server.Name, f.Service.Name)
	setString(&cfg.Server.Env, f.Service.Env)
	setString(&cfg.Server.Port, f.Service.Port)
	setString(&cfg.Log.Level, f.Service.LogLevel)
	setString(&cfg.Storage.Backend, f.Storage.Backend)
	setString(&cfg.Storage.SeedFile, f.Storage.SeedFile)
	setString(&cfg.Catalog.Backend, f.Catalog.Backend)
	setString(&cfg.Catalog.URL, f.Catalog.URL)
	if f.Catalog.LowStockThreshold > 0 {
		cfg.Catalog.LowStockThreshold = f.Catalog.LowStockThreshold
	}
	setString(&cfg.Database.Host, f.Database.Host)
	setString(&cfg.Database.Port, f.Database.Port)
	setString(&cfg.Database.User, f.Database.User)
	setString(&cfg.Database.Password, f.Database.Password)
	setString(&cfg.Database.Name, f.Database.Name)
	if f.Database.MaxConns > 0 {
		cfg.Database.MaxConns = f.Database.MaxConns
	}
	setString(&cfg.Cart.RedisURL, f.Cart.RedisURL)
	if len(f.Kafka.Brokers) > 0 {
		cfg.Kafka.Brokers = f.Kafka.Brokers
	}
	setString(&cfg.Kafka.TopicSaleCommitted, f.Kafka.Topics.SaleCommitted)
	setString(&cfg.Kafka.TopicSaleCancelled, f.Kafka.Topics.SaleCancelled)
	if f.Telemetry.Enabled != nil {
		cfg.Telemetry.Enabled = *f.Telemetry.Enabled
	}
	setString(&cfg.Telemetry.OTLPEndpoint, f.Telemetry.Endpoint)
	setString(&cfg.Shift.Timezone, f.Shift.Timezone)
	if f.Shift.AutoStart != nil {
		cfg.Shift.AutoStart = *f.Shift.AutoStart
	}
	if f.Shift.WorkHoursStart != nil {
		cfg.Shift.WorkHoursStart = *f.Shift.WorkHoursStart
	}
	if f.Shift.WorkHoursEnd != nil {
		cfg.Shift.WorkHoursEnd = *f.Shift.WorkHoursEnd
	}

	durations := []struct {
		dst *time.Duration
		raw string
		key string
	}{
		{&cfg.Catalog.Timeout, f.Catalog.Timeout, "catalog.timeout"},
		{&cfg.Cart.TTL, f.Cart.TTL, "cart.ttl"},
		{&cfg.Sale.CancelWindow, f.Sale.CancelWindow, "sale.cancel_window"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if f.Sale.MinPrice != "" {
		v, err := decimal.NewFromString(f.Sale.MinPrice)
		if err != nil {
			return fmt.Errorf("parse sale.min_price: %w", err)
		}
		cfg.Sale.MinPrice = v
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Server.Name = getEnv("SERVICE_NAME", cfg.Server.Name)
	cfg.Server.Env = getEnv("APP_ENV", cfg.Server.Env)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	cfg.Storage.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", cfg.Storage.Backend))
	cfg.Storage.SeedFile = getEnv("SEED_FILE", cfg.Storage.SeedFile)

	cfg.Catalog.Backend = strings.ToLower(getEnv("CATALOG_BACKEND", cfg.Catalog.Backend))
	cfg.Catalog.URL = getEnv("CATALOG_URL", cfg.Catalog.URL)
	cfg.Catalog.Timeout = getEnvAsDuration("CATALOG_TIMEOUT", cfg.Catalog.Timeout)
	cfg.Catalog.LowStockThreshold = getEnvAsInt("LOW_STOCK_THRESHOLD", cfg.Catalog.LowStockThreshold)

	cfg.Database.Host = getEnv("DATABASE_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DATABASE_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DATABASE_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DATABASE_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DATABASE_NAME", cfg.Database.Name)
	cfg.Database.MaxConns = int32(getEnvAsInt("DATABASE_MAX_CONNS", int(cfg.Database.MaxConns)))

	cfg.Cart.RedisURL = getEnv("REDIS_URL", cfg.Cart.RedisURL)
	cfg.Cart.TTL = getEnvAsDuration("CART_TTL", cfg.Cart.TTL)

	cfg.Kafka.Brokers = getEnvAsCSV("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.TopicSaleCommitted = getEnv("KAFKA_TOPIC_SALE_COMMITTED", cfg.Kafka.TopicSaleCommitted)
	cfg.Kafka.TopicSaleCancelled = getEnv("KAFKA_TOPIC_SALE_CANCELLED", cfg.Kafka.TopicSaleCancelled)

	cfg.Telemetry.Enabled = getEnvAsBool("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)

	cfg.Shift.Timezone = getEnv("TIMEZONE", cfg.Shift.Timezone)
	cfg.Shift.AutoStart = getEnvAsBool("SHIFT_AUTO_START", cfg.Shift.AutoStart)
	cfg.Shift.WorkHoursStart = getEnvAsInt("WORK_HOURS_START", cfg.Shift.WorkHoursStart)
	cfg.Shift.WorkHoursEnd = getEnvAsInt("WORK_HOURS_END", cfg.Shift.WorkHoursEnd)

	cfg.Sale.CancelWindow = getEnvAsDuration("SALE_CANCEL_WINDOW", cfg.Sale.CancelWindow)
	if value, ok := os.LookupEnv("MIN_PRICE"); ok {
		v, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("parse MIN_PRICE: %w", err)
		}
		cfg.Sale.MinPrice = v
	}

	// o catálogo acompanha o armazenamento quando não é informado
	if cfg.Catalog.Backend == "" {
		cfg.Catalog.Backend = cfg.Storage.Backend
	}
	return nil
}

// Validate rejeita combinações que o serviço não consegue montar
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	switch c.Catalog.Backend {
	case BackendMemory, BackendPostgres:
		if c.Catalog.Backend != c.Storage.Backend {
			return fmt.Errorf("catalog backend %q requires storage backend %q", c.Catalog.Backend, c.Catalog.Backend)
		}
	case BackendHTTP:
		if c.Catalog.URL == "" {
			return errors.New("CATALOG_URL is required for the http catalog backend")
		}
	default:
		return fmt.Errorf("unsupported catalog backend %q", c.Catalog.Backend)
	}
	if c.Shift.WorkHoursStart < 0 || c.Shift.WorkHoursEnd > 24 || c.Shift.WorkHoursStart >= c.Shift.WorkHoursEnd {
		return fmt.Errorf("invalid working hours %d-%d", c.Shift.WorkHoursStart, c.Shift.WorkHoursEnd)
	}
	if _, err := c.Shift.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Shift.Timezone, err)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsCSV(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
