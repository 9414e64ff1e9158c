package tests

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/world-persist/internal/eventbus"
	"github.com/annel0/world-persist/internal/persist"
	"github.com/annel0/world-persist/internal/store"
	"github.com/annel0/world-persist/internal/vec"
)

// TestPersistPipeline проверяет полный цикл: постановка команд из нескольких
// горутин, границы коммитов, события на шине, чтение после Shutdown.
func TestPersistPipeline(t *testing.T) {
	ms := store.NewMemoryStore()
	bus := eventbus.NewMemoryBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var commits []persist.CommitAppliedPayload
	_, err := bus.Subscribe(context.Background(), "CommitApplied", func(ctx context.Context, ev *eventbus.Envelope) {
		var payload persist.CommitAppliedPayload
		if jsonErr := json.Unmarshal(ev.Payload, &payload); jsonErr == nil {
			mu.Lock()
			commits = append(commits, payload)
			mu.Unlock()
		}
	})
	require.NoError(t, err)

	ps := persist.New(ms, persist.Options{
		InitialCapacity: 8,
		Bus:             bus,
		Source:          "integration-test",
	})

	// Несколько производителей пишут разные чанки
	const perProducer = 200
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(chunk int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				pos := vec.Vec3{X: i % vec.ChunkSize, Y: i / vec.ChunkSize, Z: 0}
				ps.WriteBlockAt(chunk, 0, pos, i+1)
				ps.WriteLightAt(chunk, 0, pos, 15)
			}
			ps.SetChunkKey(chunk, 0, chunk*10)
		}(g)
	}
	wg.Wait()

	ps.Commit()
	require.NoError(t, ps.Shutdown())

	// Всё поставленное до Shutdown применено
	ctx := context.Background()
	for chunk := 0; chunk < 4; chunk++ {
		blocks, loadErr := ps.LoadBlocks(ctx, chunk, 0)
		require.NoError(t, loadErr)
		assert.NotEmpty(t, blocks, "чанк %d должен содержать блоки", chunk)

		lights, loadErr := ps.LoadLights(ctx, chunk, 0)
		require.NoError(t, loadErr)
		assert.NotEmpty(t, lights, "чанк %d должен содержать свет", chunk)

		key, loadErr := ps.GetKey(ctx, chunk, 0)
		require.NoError(t, loadErr)
		assert.Equal(t, chunk*10, key)
	}

	// Событие коммита дошло до подписчика
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(commits) >= 1
	}, 2*time.Second, 10*time.Millisecond, "CommitApplied не опубликован")

	mu.Lock()
	last := commits[len(commits)-1]
	mu.Unlock()
	assert.Greater(t, last.Commands, 0, "коммит должен покрывать команды")
	assert.GreaterOrEqual(t, last.Seq, uint64(1))
}

// TestPersistDamageLifecycle проверяет жизненный цикл износа: нанесение,
// сброс перезаписью блока, явная очистка нулей.
func TestPersistDamageLifecycle(t *testing.T) {
	ms := store.NewMemoryStore()
	ps := persist.New(ms, persist.Options{})

	ctx := context.Background()
	hit := vec.Vec3{X: 4, Y: 12, Z: 7}
	broken := vec.Vec3{X: 5, Y: 12, Z: 7}

	// Два блока получают износ; один затем перезаписывается
	ps.WriteDamageAt(0, 0, hit, 2)
	ps.WriteDamageAt(0, 0, broken, 9)
	ps.WriteBlockAt(0, 0, broken, 0)
	ps.TrimChunkDamage(0, 0)

	require.NoError(t, ps.Shutdown())

	rows, err := ps.LoadDamage(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1, "после сброса и очистки должен остаться один износ")
	assert.Equal(t, hit, rows[0].Pos)
	assert.Equal(t, 2, rows[0].Damage)
}

// TestPersistSignsAndState проверяет синхронный путь: таблички и состояние
// игрока идут мимо очереди и видны сразу.
func TestPersistSignsAndState(t *testing.T) {
	ms := store.NewMemoryStore()
	ps := persist.New(ms, persist.Options{})

	ctx := context.Background()
	pos := vec.Vec3{X: 40, Y: 12, Z: -9}
	c := vec.ChunkOf(pos.X, pos.Z)

	require.NoError(t, ps.InsertSign(ctx, c.X, c.Y, pos, 2, "добро пожаловать"))
	signs, err := ps.LoadSigns(ctx, c.X, c.Y)
	require.NoError(t, err)
	require.Len(t, signs, 1)
	assert.Equal(t, "добро пожаловать", signs[0].Text)

	state := store.PlayerState{X: 40.5, Y: 13, Z: -9.5, RX: 1.1, RY: -0.3, Flying: true}
	require.NoError(t, ps.SaveState(ctx, state))
	got, found, err := ps.LoadState(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, state, got)

	require.NoError(t, ps.DeleteSigns(ctx, pos))
	signs, err = ps.LoadSigns(ctx, c.X, c.Y)
	require.NoError(t, err)
	assert.Empty(t, signs)

	require.NoError(t, ps.Shutdown())
}

// TestPersistQueueGrowthUnderLoad проверяет, что очередь растёт под нагрузкой
// и ничего не теряет.
func TestPersistQueueGrowthUnderLoad(t *testing.T) {
	ms := store.NewMemoryStore()
	ps := persist.New(ms, persist.Options{InitialCapacity: 1})

	// Позиции различны: пара (X, Y) однозначно кодирует i
	const n = 5000
	for i := 0; i < n; i++ {
		ps.WriteBlockAt(i%7, i%5, vec.Vec3{X: i % vec.ChunkSize, Y: i / vec.ChunkSize, Z: 0}, i)
	}

	stats := ps.Stats()
	assert.GreaterOrEqual(t, stats.Capacity, 1, "ёмкость не может быть меньше начальной")

	require.NoError(t, ps.Shutdown())
	assert.Equal(t, n, ms.BlockCount(), "все команды должны быть применены")

	// После Shutdown очередь освобождена
	assert.Equal(t, 0, ps.Stats().Length)
}
