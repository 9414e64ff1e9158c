package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/world-persist/internal/cache"
	"github.com/annel0/world-persist/internal/config"
	"github.com/annel0/world-persist/internal/eventbus"
	"github.com/annel0/world-persist/internal/logging"
	"github.com/annel0/world-persist/internal/persist"
	"github.com/annel0/world-persist/internal/store"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или ENV WORLD_CONFIG)")
	flag.Parse()

	// Инициализируем систему логирования
	if err := logging.Init(); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.Close()

	logging.Info("🗄️ Запуск сервиса персистенции мира...")

	// === КОНФИГУРАЦИЯ ===
	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("Ошибка загрузки конфигурации: %v", err)
		os.Exit(1)
	}
	if cfg == nil {
		cfg = &config.Config{} // дефолты + ENV
	}

	backend := cfg.Storage.GetBackend()
	logging.Info("📡 Конфигурация: backend=%s, очередь=%d, метрики порт=%d",
		backend, cfg.Queue.GetInitialCapacity(), cfg.Metrics.GetMetricsPort())

	// === ХРАНИЛИЩЕ ===
	st, err := openStore(backend, cfg)
	if err != nil {
		logging.Error("Ошибка открытия хранилища %s: %v", backend, err)
		os.Exit(1)
	}

	// === КЕШ ===
	var chunkCache cache.ChunkCache
	if cfg.Cache.Enabled {
		ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
		rc, cacheErr := cache.NewRedisChunkCache(cache.CacheConfig{
			RedisURL:      cfg.Cache.RedisURL,
			RedisPassword: cfg.Cache.RedisPassword,
			RedisDB:       cfg.Cache.RedisDB,
			TTL:           ttl,
		})
		if cacheErr != nil {
			// Кеш опционален: без Redis продолжаем без кеша
			logging.Warn("Redis недоступен, работаем без кеша: %v", cacheErr)
		} else {
			chunkCache = rc
			logging.Info("✅ Redis кеш чанков подключен (%s)", cfg.Cache.RedisURL)
		}
	}

	// === ШИНА СОБЫТИЙ ===
	var bus eventbus.EventBus
	if cfg.EventBus.Enabled {
		retention := time.Duration(cfg.EventBus.Retention) * time.Hour
		jsBus, busErr := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, retention)
		if busErr != nil {
			logging.Warn("NATS недоступен, события отключены: %v", busErr)
		} else {
			bus = jsBus
			defer jsBus.Close()
			logging.Info("✅ NATS JetStream шина подключена (%s)", cfg.EventBus.URL)
		}
	}

	// === МЕТРИКИ ===
	var metrics *persist.Metrics
	if cfg.Metrics.Enabled {
		metrics = persist.NewMetrics()
		persist.ServeMetrics(cfg.Metrics.GetMetricsPort())
		logging.Info("✅ Prometheus метрики на порту %d", cfg.Metrics.GetMetricsPort())
	}

	// === ПЕРСИСТЕНЦИЯ ===
	ps := persist.New(st, persist.Options{
		InitialCapacity: cfg.Queue.GetInitialCapacity(),
		AutoCommitEvery: time.Duration(cfg.Queue.AutoCommitSeconds) * time.Second,
		Cache:           chunkCache,
		Bus:             bus,
		Metrics:         metrics,
	})
	logging.Info("✅ Persister запущен")

	// Поднимаем состояние игрока при старте (если есть)
	if state, found, stateErr := ps.LoadState(context.Background()); stateErr == nil && found {
		logging.Info("Состояние игрока: (%.1f, %.1f, %.1f)", state.X, state.Y, state.Z)
	}

	// === GRACEFUL SHUTDOWN ===
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("Получен сигнал %v, останавливаемся...", sig)

	if err := ps.Shutdown(); err != nil {
		logging.Error("Ошибка остановки: %v", err)
		os.Exit(1)
	}
	logging.Info("Очередь опустошена, хранилище закрыто. До встречи!")
}

// openStore создает backend хранилища по имени из конфигурации.
func openStore(backend string, cfg *config.Config) (store.Store, error) {
	switch backend {
	case "maria":
		return store.NewMariaStore(cfg.Storage.MariaDSN)
	case "badger":
		path := cfg.Storage.BadgerPath
		if path == "" {
			path = "data/world"
		}
		return store.NewBadgerStore(path)
	case "mongo":
		return store.NewMongoStore(store.MongoConfig{
			URI:      cfg.Storage.MongoURI,
			Database: cfg.Storage.MongoDB,
		})
	default:
		return store.NewMemoryStore(), nil
	}
}
