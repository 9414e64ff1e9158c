package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadYAML тестирует чтение YAML конфигурации
func TestLoadYAML(t *testing.T) {
	content := `
storage:
  backend: badger
  badger_path: /tmp/world
queue:
  initial_capacity: 256
  auto_commit_seconds: 5
cache:
  enabled: true
  redis_url: localhost:6379
metrics:
  enabled: true
  port: 9100
`
	path := filepath.Join(t.TempDir(), "persist.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Ошибка записи временного конфига: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Ошибка загрузки конфига: %v", err)
	}
	if cfg == nil {
		t.Fatal("Конфиг не должен быть nil")
	}

	if cfg.Storage.GetBackend() != "badger" {
		t.Errorf("Ожидался backend badger, получен %s", cfg.Storage.GetBackend())
	}
	if cfg.Queue.GetInitialCapacity() != 256 {
		t.Errorf("Ожидалась ёмкость 256, получена %d", cfg.Queue.GetInitialCapacity())
	}
	if cfg.Metrics.GetMetricsPort() != 9100 {
		t.Errorf("Ожидался порт 9100, получен %d", cfg.Metrics.GetMetricsPort())
	}
	if !cfg.Cache.Enabled {
		t.Error("Кеш должен быть включен")
	}
}

// TestDefaults тестирует значения по умолчанию
func TestDefaults(t *testing.T) {
	var cfg Config

	if cfg.Storage.GetBackend() != "memory" {
		t.Errorf("Ожидался backend memory по умолчанию, получен %s", cfg.Storage.GetBackend())
	}
	if cfg.Queue.GetInitialCapacity() != 1024 {
		t.Errorf("Ожидалась ёмкость 1024 по умолчанию, получена %d", cfg.Queue.GetInitialCapacity())
	}
	if cfg.Metrics.GetMetricsPort() != 2112 {
		t.Errorf("Ожидался порт 2112 по умолчанию, получен %d", cfg.Metrics.GetMetricsPort())
	}
}

// TestEnvFallback тестирует приоритет: config -> env -> default
func TestEnvFallback(t *testing.T) {
	t.Setenv("WORLD_QUEUE_CAPACITY", "4096")
	t.Setenv("WORLD_STORAGE_BACKEND", "maria")

	var cfg Config
	if cfg.Queue.GetInitialCapacity() != 4096 {
		t.Errorf("Ожидалась ёмкость 4096 из ENV, получена %d", cfg.Queue.GetInitialCapacity())
	}
	if cfg.Storage.GetBackend() != "maria" {
		t.Errorf("Ожидался backend maria из ENV, получен %s", cfg.Storage.GetBackend())
	}

	// Конфиг имеет приоритет над ENV
	cfg.Queue.InitialCapacity = 128
	cfg.Storage.Backend = "mongo"
	if cfg.Queue.GetInitialCapacity() != 128 {
		t.Errorf("Конфиг должен иметь приоритет над ENV, получено %d", cfg.Queue.GetInitialCapacity())
	}
	if cfg.Storage.GetBackend() != "mongo" {
		t.Errorf("Конфиг должен иметь приоритет над ENV, получен %s", cfg.Storage.GetBackend())
	}
}

// TestLoadMissing тестирует отсутствие конфига
func TestLoadMissing(t *testing.T) {
	t.Setenv("WORLD_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Отсутствие конфига не должно быть ошибкой: %v", err)
	}
	if cfg != nil {
		t.Error("Ожидался nil конфиг при отсутствии пути")
	}
}
