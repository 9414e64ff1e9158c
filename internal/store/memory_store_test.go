package store

import (
	"context"
	"testing"

	"github.com/annel0/world-persist/internal/vec"
)

// TestMemoryStoreBlocks тестирует запись и чтение блоков
func TestMemoryStoreBlocks(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	pos := vec.Vec3{X: 1, Y: 2, Z: 3}
	if err := ms.InsertBlock(ctx, 0, 0, pos, 17); err != nil {
		t.Fatalf("Ошибка записи блока: %v", err)
	}
	if err := ms.InsertBlock(ctx, 0, 0, pos, 18); err != nil {
		t.Fatalf("Ошибка перезаписи блока: %v", err)
	}
	if err := ms.InsertBlock(ctx, 5, 5, pos, 99); err != nil {
		t.Fatalf("Ошибка записи блока в другой чанк: %v", err)
	}

	rows, err := ms.LoadBlocks(ctx, 0, 0)
	if err != nil {
		t.Fatalf("Ошибка чтения блоков: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Ожидалась 1 запись (перезапись по месту), получено %d", len(rows))
	}
	if rows[0].W != 18 || !rows[0].Pos.Equals(pos) {
		t.Errorf("Неверная запись: %+v", rows[0])
	}
}

// TestMemoryStoreTrimZeroDamage тестирует очистку нулевого износа
func TestMemoryStoreTrimZeroDamage(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	ms.InsertBlockDamage(ctx, 1, 1, vec.Vec3{X: 1}, 0)
	ms.InsertBlockDamage(ctx, 1, 1, vec.Vec3{X: 2}, 7)
	ms.InsertBlockDamage(ctx, 9, 9, vec.Vec3{X: 3}, 0)

	if err := ms.TrimZeroDamage(ctx, 1, 1); err != nil {
		t.Fatalf("Ошибка очистки: %v", err)
	}

	rows, err := ms.LoadDamage(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Ошибка чтения износа: %v", err)
	}
	if len(rows) != 1 || rows[0].Damage != 7 {
		t.Errorf("Ожидалась одна ненулевая запись, получено: %+v", rows)
	}

	// Чужой чанк не тронут
	other, _ := ms.LoadDamage(ctx, 9, 9)
	if len(other) != 1 {
		t.Errorf("Очистка не должна трогать другие чанки: %+v", other)
	}
}

// TestMemoryStoreKeys тестирует ключи чанков
func TestMemoryStoreKeys(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	// Ключ незаписанного чанка — 0
	key, err := ms.GetKey(ctx, 3, 4)
	if err != nil {
		t.Fatalf("Ошибка чтения ключа: %v", err)
	}
	if key != 0 {
		t.Errorf("Ожидался ключ 0 для незаписанного чанка, получен %d", key)
	}

	if err := ms.SetKey(ctx, 3, 4, 77); err != nil {
		t.Fatalf("Ошибка записи ключа: %v", err)
	}
	key, _ = ms.GetKey(ctx, 3, 4)
	if key != 77 {
		t.Errorf("Ожидался ключ 77, получен %d", key)
	}
}

// TestMemoryStoreSigns тестирует таблички
func TestMemoryStoreSigns(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	pos := vec.Vec3{X: 10, Y: 20, Z: 30}
	c := vec.ChunkOf(pos.X, pos.Z)

	ms.InsertSign(ctx, c.X, c.Y, pos, 0, "north")
	ms.InsertSign(ctx, c.X, c.Y, pos, 1, "east")

	rows, err := ms.LoadSigns(ctx, c.X, c.Y)
	if err != nil {
		t.Fatalf("Ошибка чтения табличек: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Ожидалось 2 таблички, получено %d", len(rows))
	}

	if err := ms.DeleteSign(ctx, pos, 0); err != nil {
		t.Fatalf("Ошибка удаления таблички: %v", err)
	}
	rows, _ = ms.LoadSigns(ctx, c.X, c.Y)
	if len(rows) != 1 || rows[0].Face != 1 {
		t.Errorf("После удаления грани 0 ожидалась табличка грани 1: %+v", rows)
	}

	if err := ms.DeleteSigns(ctx, pos); err != nil {
		t.Fatalf("Ошибка удаления табличек блока: %v", err)
	}
	rows, _ = ms.LoadSigns(ctx, c.X, c.Y)
	if len(rows) != 0 {
		t.Errorf("Ожидалось 0 табличек, получено: %+v", rows)
	}
}

// TestMemoryStoreState тестирует состояние игрока
func TestMemoryStoreState(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	_, found, err := ms.LoadState(ctx)
	if err != nil {
		t.Fatalf("Ошибка чтения состояния: %v", err)
	}
	if found {
		t.Error("Состояние не должно существовать до записи")
	}

	want := PlayerState{X: 1.5, Y: 32, Z: -4.25, RX: 0.1, RY: -0.2, Flying: true}
	if err := ms.SaveState(ctx, want); err != nil {
		t.Fatalf("Ошибка сохранения состояния: %v", err)
	}

	got, found, err := ms.LoadState(ctx)
	if err != nil {
		t.Fatalf("Ошибка чтения состояния: %v", err)
	}
	if !found {
		t.Fatal("Состояние не найдено после записи")
	}
	if got != want {
		t.Errorf("Ожидалось %+v, получено %+v", want, got)
	}
}

// TestMemoryStoreContextCancellation тестирует отмену контекста
func TestMemoryStoreContextCancellation(t *testing.T) {
	ms := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ms.InsertBlock(ctx, 0, 0, vec.Vec3{}, 1); err != context.Canceled {
		t.Errorf("Ожидалась ошибка отмены контекста, получена: %v", err)
	}
	if _, err := ms.LoadBlocks(ctx, 0, 0); err != context.Canceled {
		t.Errorf("Ожидалась ошибка отмены контекста, получена: %v", err)
	}
}
