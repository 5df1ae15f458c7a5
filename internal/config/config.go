// Package config загружает конфигурацию сервиса: значения по умолчанию,
// затем YAML-файл, затем переменные окружения HORSESTORE_*.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/annel0/horsestore/internal/auth"
	"github.com/annel0/horsestore/internal/eventbus"
	"github.com/annel0/horsestore/internal/eviction"
	"github.com/annel0/horsestore/internal/logging"
	"github.com/annel0/horsestore/internal/stable"
	"github.com/annel0/horsestore/internal/storage"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath - переменная окружения с путем к YAML-файлу
const EnvConfigPath = "HORSESTORE_CONFIG"

// MaxSlots - верхняя граница числа слотов владельца
const MaxSlots = 1000

// Config корневая структура конфигурации приложения.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Settings  Settings        `yaml:"settings"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver" env:"HORSESTORE_STORAGE_DRIVER"`
	Path          string `yaml:"path" env:"HORSESTORE_STORAGE_PATH"`
	DSN           string `yaml:"dsn" env:"HORSESTORE_STORAGE_DSN"`
	RedisAddr     string `yaml:"redis_addr" env:"HORSESTORE_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"HORSESTORE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"HORSESTORE_REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"HORSESTORE_REDIS_PREFIX"`
}

// Settings - поведение хранения лошадей
type Settings struct {
	MaxDistance          float64 `yaml:"max_distance" env:"HORSESTORE_MAX_DISTANCE"`
	SlotsCount           int     `yaml:"slots_count" env:"HORSESTORE_SLOTS_COUNT"`
	CheckIntervalSeconds int     `yaml:"check_interval_seconds" env:"HORSESTORE_CHECK_INTERVAL_SECONDS"`
	NearbyRadius         float64 `yaml:"nearby_radius" env:"HORSESTORE_NEARBY_RADIUS"`
	SlotExhaustion       string  `yaml:"slot_exhaustion" env:"HORSESTORE_SLOT_EXHAUSTION"`
}

type EventBusConfig struct {
	URL       string `yaml:"url" env:"HORSESTORE_EVENTBUS_URL"`
	Stream    string `yaml:"stream" env:"HORSESTORE_EVENTBUS_STREAM"`
	Durable   string `yaml:"durable" env:"HORSESTORE_EVENTBUS_DURABLE"`
	Buffer    int    `yaml:"buffer" env:"HORSESTORE_EVENTBUS_BUFFER"`
	Retention int    `yaml:"retention_hours" env:"HORSESTORE_EVENTBUS_RETENTION_HOURS"`
}

type ServerConfig struct {
	RESTPort    int    `yaml:"rest_port" env:"HORSESTORE_REST_PORT"`
	JWTSecret   string `yaml:"jwt_secret" env:"HORSESTORE_JWT_SECRET"` // Base64, пусто - API без авторизации
	JWTTTLHours int    `yaml:"jwt_ttl_hours" env:"HORSESTORE_JWT_TTL_HOURS"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"HORSESTORE_TELEMETRY_ENABLED"`
	ServiceName string `yaml:"service_name" env:"HORSESTORE_TELEMETRY_SERVICE_NAME"`
	Endpoint    string `yaml:"endpoint" env:"HORSESTORE_TELEMETRY_ENDPOINT"` // host:port OTLP/HTTP, пусто - из OTEL_EXPORTER_OTLP_ENDPOINT
}

type LoggingConfig struct {
	Dir   string `yaml:"dir" env:"HORSESTORE_LOG_DIR"`
	Level string `yaml:"level" env:"HORSESTORE_LOG_LEVEL"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:      storage.DriverBadger,
			Path:        "data",
			RedisAddr:   "localhost:6379",
			RedisPrefix: storage.DefaultRedisConfig().KeyPrefix,
		},
		Settings: Settings{
			MaxDistance:          eviction.DefaultMaxDistance,
			SlotsCount:           stable.DefaultSlots,
			CheckIntervalSeconds: int(eviction.DefaultInterval / time.Second),
			NearbyRadius:         stable.DefaultNearbyRadius,
			SlotExhaustion:       string(stable.ExhaustionOverwrite),
		},
		EventBus: EventBusConfig{
			Stream:    "HORSES",
			Durable:   "horsestore",
			Buffer:    1024,
			Retention: 24,
		},
		Server: ServerConfig{RESTPort: 8089, JWTTTLHours: 24},
		Telemetry: TelemetryConfig{
			ServiceName: "horsestore",
		},
		Logging: LoggingConfig{Level: "INFO"},
	}
}

// Load читает конфигурацию. Если path == "", берется HORSESTORE_CONFIG;
// без файла используются значения по умолчанию. Переменные окружения
// применяются поверх файла.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения и собирает все ошибки сразу
func (c *Config) Validate() error {
	var errs []error

	known := false
	for _, d := range storage.Drivers() {
		if c.Storage.Driver == d {
			known = true
			break
		}
	}
	if !known {
		errs = append(errs, fmt.Errorf("storage.driver: неизвестный драйвер %q", c.Storage.Driver))
	}
	if c.Storage.Driver == storage.DriverMySQL && c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn: обязателен для mysql"))
	}
	if c.Settings.SlotsCount < 1 || c.Settings.SlotsCount > MaxSlots {
		errs = append(errs, fmt.Errorf("settings.slots_count: %d вне диапазона [1, %d]", c.Settings.SlotsCount, MaxSlots))
	}
	if c.Settings.MaxDistance <= 0 {
		errs = append(errs, fmt.Errorf("settings.max_distance: должно быть > 0, получено %v", c.Settings.MaxDistance))
	}
	if c.Settings.CheckIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("settings.check_interval_seconds: должно быть > 0, получено %d", c.Settings.CheckIntervalSeconds))
	}
	if c.Settings.NearbyRadius <= 0 {
		errs = append(errs, fmt.Errorf("settings.nearby_radius: должно быть > 0, получено %v", c.Settings.NearbyRadius))
	}
	if !stable.ExhaustionPolicy(c.Settings.SlotExhaustion).Valid() {
		errs = append(errs, fmt.Errorf("settings.slot_exhaustion: неизвестная политика %q", c.Settings.SlotExhaustion))
	}
	if c.Server.RESTPort < 0 || c.Server.RESTPort > 65535 {
		errs = append(errs, fmt.Errorf("server.rest_port: некорректный порт %d", c.Server.RESTPort))
	}
	if c.Server.JWTSecret != "" {
		if _, err := c.Authenticator(); err != nil {
			errs = append(errs, fmt.Errorf("server.jwt_secret: %w", err))
		}
	}
	if c.Server.JWTTTLHours <= 0 {
		errs = append(errs, fmt.Errorf("server.jwt_ttl_hours: должно быть > 0, получено %d", c.Server.JWTTTLHours))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// StorageOptions преобразует настройки в конфигурацию хранилища
func (c *Config) StorageOptions() storage.Config {
	return storage.Config{
		Driver: c.Storage.Driver,
		Path:   c.Storage.Path,
		DSN:    c.Storage.DSN,
		Redis: storage.RedisConfig{
			Addr:      c.Storage.RedisAddr,
			Password:  c.Storage.RedisPassword,
			DB:        c.Storage.RedisDB,
			KeyPrefix: c.Storage.RedisPrefix,
		},
	}
}

// StableOptions возвращает параметры сервиса хранения (без метрик и логгера)
func (c *Config) StableOptions() stable.Options {
	return stable.Options{
		Slots:        c.Settings.SlotsCount,
		Exhaustion:   stable.ExhaustionPolicy(c.Settings.SlotExhaustion),
		NearbyRadius: c.Settings.NearbyRadius,
	}
}

// EvictionConfig возвращает параметры монитора расстояния
func (c *Config) EvictionConfig() eviction.Config {
	return eviction.Config{
		MaxDistance: c.Settings.MaxDistance,
		Interval:    time.Duration(c.Settings.CheckIntervalSeconds) * time.Second,
	}
}

// JetStreamConfig возвращает параметры JetStream; ok == false - нужна шина в памяти
func (c *Config) JetStreamConfig() (eventbus.JetStreamConfig, bool) {
	if c.EventBus.URL == "" {
		return eventbus.JetStreamConfig{}, false
	}
	return eventbus.JetStreamConfig{
		URL:       c.EventBus.URL,
		Stream:    c.EventBus.Stream,
		Durable:   c.EventBus.Durable,
		Retention: time.Duration(c.EventBus.Retention) * time.Hour,
	}, true
}

// Authenticator возвращает проверяющего JWT или nil, если ключ не задан
func (c *Config) Authenticator() (*auth.Authenticator, error) {
	if c.Server.JWTSecret == "" {
		return nil, nil
	}
	return auth.NewAuthenticator(c.Server.JWTSecret, time.Duration(c.Server.JWTTTLHours)*time.Hour)
}

// LogLevel возвращает разобранный уровень логирования
func (c *Config) LogLevel() logging.LogLevel {
	lvl, _ := logging.ParseLevel(c.Logging.Level)
	return lvl
}
