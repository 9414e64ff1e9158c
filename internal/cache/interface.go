package cache

import (
	"context"

	"github.com/annel0/world-persist/internal/store"
)

// ChunkCache кеш результатов чтения чанков, стоящий перед Store.
//
// Кеш — строго read-path оптимизация: промах или отказ кеша никогда не
// являются ошибкой, читатель просто идет в Store. Worker инвалидирует
// ключи чанка после применения записей, поэтому кеш может отдавать
// слегка устаревшие данные в пределах модели relaxed consistency
// подсистемы.
type ChunkCache interface {
	// GetBlocks возвращает закешированные блоки чанка (ok=false — промах)
	GetBlocks(ctx context.Context, p, q int) ([]store.BlockRow, bool)

	// SetBlocks кеширует блоки чанка
	SetBlocks(ctx context.Context, p, q int, rows []store.BlockRow)

	// GetLights возвращает закешированный свет чанка
	GetLights(ctx context.Context, p, q int) ([]store.BlockRow, bool)

	// SetLights кеширует свет чанка
	SetLights(ctx context.Context, p, q int, rows []store.BlockRow)

	// Invalidate сбрасывает все ключи чанка
	Invalidate(ctx context.Context, p, q int)

	// Close освобождает ресурсы кеша
	Close() error
}
