package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/library-lending/internal/core/domain"
)

const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
)

type Config struct {
	HTTPPort        int
	GRPCPort        int
	LogLevel        string
	ShutdownTimeout time.Duration

	StorageDriver string
	MySQLDSN      string
	RedisAddr     string
	SeedBorrowers []string

	KafkaBrokers   []string
	KafkaTopic     string
	EventWorkers   int
	EventQueueSize int

	MaxLoansPerBorrower int
	MaxRenewals         int
	LoanDurationDays    int
	RenewalDays         int
	DailyFineRate       string
	SweepInterval       time.Duration
}

type configFile struct {
	Service struct {
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"service"`
	Storage struct {
		Driver        string   `yaml:"driver"`
		MySQLDSN      string   `yaml:"mysql_dsn"`
		RedisAddr     string   `yaml:"redis_addr"`
		SeedBorrowers []string `yaml:"seed_borrowers"`
	} `yaml:"storage"`
	Events struct {
		KafkaBrokers []string `yaml:"kafka_brokers"`
		Topic        string   `yaml:"topic"`
		Workers      int      `yaml:"workers"`
		QueueSize    int      `yaml:"queue_size"`
	} `yaml:"events"`
	Lending struct {
		MaxLoansPerBorrower int    `yaml:"max_loans_per_borrower"`
		MaxRenewals         *int   `yaml:"max_renewals"`
		LoanDurationDays    int    `yaml:"loan_duration_days"`
		RenewalDays         int    `yaml:"renewal_days"`
		DailyFineRate       string `yaml:"daily_fine_rate"`
		SweepInterval       string `yaml:"sweep_interval"`
	} `yaml:"lending"`
}

func defaults() Config {
	return Config{
		HTTPPort:            8080,
		GRPCPort:            50051,
		LogLevel:            "info",
		ShutdownTimeout:     5 * time.Second,
		StorageDriver:       DriverMemory,
		MySQLDSN:            "root:root@tcp(localhost:3306)/library?parseTime=true",
		KafkaTopic:          "library.loans",
		EventWorkers:        4,
		EventQueueSize:      10000,
		MaxLoansPerBorrower: 5,
		MaxRenewals:         3,
		LoanDurationDays:    14,
		RenewalDays:         14,
		DailyFineRate:       "0.50",
	}
}

// Load builds the config from defaults, then the YAML file at path if it exists,
// then environment variables.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := cfg.applyFile(raw); err != nil {
				return Config{}, err
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.ShutdownTimeout = time.Duration(envInt("SHUTDOWN_TIMEOUT_SECONDS", int(cfg.ShutdownTimeout.Seconds()))) * time.Second
	cfg.StorageDriver = strings.ToLower(envOrDefault("STORAGE_DRIVER", cfg.StorageDriver))
	cfg.MySQLDSN = envOrDefault("MYSQL_DSN", cfg.MySQLDSN)
	cfg.RedisAddr = envOrDefault("REDIS_ADDR", envOrDefault("REDIS_URL", cfg.RedisAddr))
	cfg.SeedBorrowers = envCSV("SEED_BORROWERS", cfg.SeedBorrowers)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envOrDefault("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.EventWorkers = envInt("EVENT_WORKERS", cfg.EventWorkers)
	cfg.EventQueueSize = envInt("EVENT_QUEUE_SIZE", cfg.EventQueueSize)
	cfg.MaxLoansPerBorrower = envInt("MAX_LOANS_PER_BORROWER", cfg.MaxLoansPerBorrower)
	cfg.MaxRenewals = envInt("MAX_RENEWALS", cfg.MaxRenewals)
	cfg.LoanDurationDays = envInt("LOAN_DURATION_DAYS", cfg.LoanDurationDays)
	cfg.RenewalDays = envInt("RENEWAL_DAYS", cfg.RenewalDays)
	cfg.DailyFineRate = envOrDefault("DAILY_FINE_RATE", cfg.DailyFineRate)
	cfg.SweepInterval = envDuration("SWEEP_INTERVAL", cfg.SweepInterval)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if f.Service.HTTPPort > 0 {
		c.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		c.GRPCPort = f.Service.GRPCPort
	}
	if f.Service.LogLevel != "" {
		c.LogLevel = f.Service.LogLevel
	}
	if f.Storage.Driver != "" {
		c.StorageDriver = strings.ToLower(f.Storage.Driver)
	}
	if f.Storage.MySQLDSN != "" {
		c.MySQLDSN = f.Storage.MySQLDSN
	}
	if f.Storage.RedisAddr != "" {
		c.RedisAddr = f.Storage.RedisAddr
	}
	if len(f.Storage.SeedBorrowers) > 0 {
		c.SeedBorrowers = trimNonEmpty(f.Storage.SeedBorrowers)
	}
	if len(f.Events.KafkaBrokers) > 0 {
		c.KafkaBrokers = trimNonEmpty(f.Events.KafkaBrokers)
	}
	if f.Events.Topic != "" {
		c.KafkaTopic = f.Events.Topic
	}
	if f.Events.Workers > 0 {
		c.EventWorkers = f.Events.Workers
	}
	if f.Events.QueueSize > 0 {
		c.EventQueueSize = f.Events.QueueSize
	}
	if f.Lending.MaxLoansPerBorrower > 0 {
		c.MaxLoansPerBorrower = f.Lending.MaxLoansPerBorrower
	}
	if f.Lending.MaxRenewals != nil {
		c.MaxRenewals = *f.Lending.MaxRenewals
	}
	if f.Lending.LoanDurationDays > 0 {
		c.LoanDurationDays = f.Lending.LoanDurationDays
	}
	if f.Lending.RenewalDays > 0 {
		c.RenewalDays = f.Lending.RenewalDays
	}
	if f.Lending.DailyFineRate != "" {
		c.DailyFineRate = f.Lending.DailyFineRate
	}
	if f.Lending.SweepInterval != "" {
		d, err := time.ParseDuration(f.Lending.SweepInterval)
		if err != nil {
			return fmt.Errorf("parse lending.sweep_interval: %w", err)
		}
		c.SweepInterval = d
	}
	return nil
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case DriverMemory:
	case DriverMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("missing MYSQL_DSN for mysql storage")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if c.EventWorkers <= 0 || c.EventQueueSize <= 0 {
		return fmt.Errorf("event workers and queue size must be positive")
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("lending policy: %w", err)
	}
	return nil
}

// Policy converts the lending settings into the rules the loan service enforces.
func (c Config) Policy() (domain.Policy, error) {
	rate, err := decimal.NewFromString(c.DailyFineRate)
	if err != nil {
		return domain.Policy{}, domain.Validationf("daily fine rate %q is not a number", c.DailyFineRate)
	}
	p := domain.DefaultPolicy()
	p.MaxLoansPerBorrower = c.MaxLoansPerBorrower
	p.MaxRenewals = c.MaxRenewals
	p.LoanDuration = time.Duration(c.LoanDurationDays) * domain.Day
	p.RenewalExtension = time.Duration(c.RenewalDays) * domain.Day
	p.DailyFineRate = rate
	if err := p.Validate(); err != nil {
		return domain.Policy{}, err
	}
	return p, nil
}

func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return trimNonEmpty(strings.Split(raw, ","))
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
