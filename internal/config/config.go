package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации подсистемы персистенции.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
	Cache    CacheConfig    `yaml:"cache"`
	EventBus EventBusConfig `yaml:"eventbus"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// StorageConfig выбор и настройки backend-а хранилища.
type StorageConfig struct {
	// Backend: "memory", "maria", "badger" или "mongo"
	Backend    string `yaml:"backend"`
	MariaDSN   string `yaml:"maria_dsn"`
	BadgerPath string `yaml:"badger_path"`
	MongoURI   string `yaml:"mongo_uri"`
	MongoDB    string `yaml:"mongo_db"`
}

// QueueConfig настройки очереди команд.
type QueueConfig struct {
	InitialCapacity   int `yaml:"initial_capacity"`
	AutoCommitSeconds int `yaml:"auto_commit_seconds"`
}

// CacheConfig настройки Redis кеша чтения чанков.
type CacheConfig struct {
	Enabled       bool   `yaml:"enabled"`
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
}

// EventBusConfig настройки NATS JetStream шины событий.
type EventBusConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

// MetricsConfig настройки Prometheus endpoint-а.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// GetBackend возвращает backend с приоритетом: config -> env -> "memory"
func (s *StorageConfig) GetBackend() string {
	if s.Backend != "" {
		return s.Backend
	}
	if env := os.Getenv("WORLD_STORAGE_BACKEND"); env != "" {
		return env
	}
	return "memory"
}

// GetInitialCapacity возвращает ёмкость очереди с поддержкой fallback значений
func (q *QueueConfig) GetInitialCapacity() int {
	return getIntWithEnvFallback(q.InitialCapacity, "WORLD_QUEUE_CAPACITY", 1024)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (m *MetricsConfig) GetMetricsPort() int {
	return getIntWithEnvFallback(m.Port, "WORLD_METRICS_PORT", 2112)
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configValue int, envVar string, defaultValue int) int {
	if configValue > 0 {
		return configValue
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	return defaultValue
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV WORLD_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("WORLD_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
