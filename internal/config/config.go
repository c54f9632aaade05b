// Package config предоставляет структуры и функции для загрузки конфигурации
// из YAML-файла с переопределением через переменные окружения.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Драйверы хранилища документов.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env             string `yaml:"env" env:"APP_ENV" env-default:"local"`
	Storage         `yaml:"storage"`
	RedisConnection `yaml:"redis_connection"`
	IdentityAPI     `yaml:"identity_api"`
	Billing         `yaml:"billing"`
	Cache           `yaml:"cache"`
}

// Storage настройки хранилища документов.
type Storage struct {
	Driver         string        `yaml:"driver" env:"STORAGE_DRIVER" env-default:"memory"`
	Timeout        time.Duration `yaml:"timeout" env:"STORAGE_TIMEOUT" env-default:"10s"`
	PostgresDSN    string        `yaml:"postgres_dsn" env:"STORAGE_POSTGRES_DSN"`
	MigrationsPath string        `yaml:"migrations_path" env:"STORAGE_MIGRATIONS_PATH" env-default:"./migrations"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS" env-default:"localhost:6379"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user" env:"REDIS_USER"`
	DB           int           `yaml:"db" env:"REDIS_DB"`
	MaxRetries   int           `yaml:"max_retries" env:"REDIS_MAX_RETRIES"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env:"REDIS_TIMEOUT" env-default:"5s"`
}

// IdentityAPI настройки клиента API идентификации пользователей.
type IdentityAPI struct {
	BaseURL  string        `yaml:"base_url" env:"IDENTITY_API_BASE_URL" env-default:"https://calil.jp/infrastructure"`
	Audience string        `yaml:"audience" env:"IDENTITY_API_AUDIENCE" env-default:"https://libmuteki2.appspot.com"`
	Timeout  time.Duration `yaml:"timeout" env:"IDENTITY_API_TIMEOUT" env-default:"30s"`
	Breaker  `yaml:"breaker"`
}

// Breaker настройки circuit breaker для исходящих вызовов.
type Breaker struct {
	Enabled          bool          `yaml:"enabled" env:"IDENTITY_API_BREAKER_ENABLED"`
	MaxRequests      uint32        `yaml:"max_requests" env-default:"1"`
	Interval         time.Duration `yaml:"interval" env-default:"60s"`
	OpenTimeout      time.Duration `yaml:"open_timeout" env-default:"30s"`
	FailureThreshold uint32        `yaml:"failure_threshold" env-default:"5"`
}

// Cache настройки кэша сведений о подписках в redis.
type Cache struct {
	Enabled bool          `yaml:"enabled" env:"CACHE_ENABLED"`
	TTL     time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"5m"`
}

// Billing настройки платёжного провайдера.
type Billing struct {
	PriceIDs `yaml:"price_ids"`
}

// PriceIDs идентификаторы цен платёжного провайдера для каждого тарифа.
type PriceIDs struct {
	Basic    string `yaml:"basic" env:"STRIPE_PRICE_ID_BASIC"`
	Standard string `yaml:"standard" env:"STRIPE_PRICE_ID_STANDARD"`
	Pro      string `yaml:"pro" env:"STRIPE_PRICE_ID_PRO"`
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	// .env не обязателен: переменные могут прийти из окружения
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает конфиг из файла path и проверяет его.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, path)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverRedis:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}
	if c.IdentityAPI.BaseURL == "" {
		return errors.New("identity_api.base_url is required")
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  Driver: %s\n"+
			"  Timeout: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  User: %s\n"+
			"  DB: %d\n"+
			"IdentityAPI:\n"+
			"  BaseURL: %s\n"+
			"  Audience: %s\n"+
			"  Timeout: %s\n"+
			"  Breaker: %t\n"+
			"Cache: %t (ttl %s)\n",
		c.Env,
		c.Storage.Driver,
		c.Storage.Timeout,
		c.AddressRedis,
		c.User,
		c.DB,
		c.BaseURL,
		c.Audience,
		c.IdentityAPI.Timeout,
		c.Breaker.Enabled,
		c.Cache.Enabled,
		c.Cache.TTL,
	)
}
