package store

import (
	"context"
	"testing"

	"github.com/annel0/world-persist/internal/vec"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	bs, err := NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка открытия BadgerDB: %v", err)
	}
	t.Cleanup(func() { bs.Close() })
	return bs
}

// TestBadgerSignKeyFromPosition тестирует, что ключ таблички строится из
// позиции: табличка, записанная с несовпадающими координатами чанка,
// находится и удаляется по одной лишь позиции
func TestBadgerSignKeyFromPosition(t *testing.T) {
	bs := newTestBadgerStore(t)
	ctx := context.Background()

	pos := vec.Vec3{X: 40, Y: 10, Z: -70}
	c := vec.ChunkOf(pos.X, pos.Z)

	// Намеренно передаем чужой чанк: запись обязана лечь в чанк позиции
	if err := bs.InsertSign(ctx, 99, 99, pos, 3, "указатель"); err != nil {
		t.Fatalf("Ошибка записи таблички: %v", err)
	}

	rows, err := bs.LoadSigns(ctx, c.X, c.Y)
	if err != nil {
		t.Fatalf("Ошибка чтения табличек: %v", err)
	}
	if len(rows) != 1 || rows[0].Text != "указатель" {
		t.Fatalf("Табличка должна читаться из чанка позиции %v: %+v", c, rows)
	}

	wrong, err := bs.LoadSigns(ctx, 99, 99)
	if err != nil {
		t.Fatalf("Ошибка чтения табличек: %v", err)
	}
	if len(wrong) != 0 {
		t.Errorf("В чанке (99,99) табличек быть не должно: %+v", wrong)
	}

	if err := bs.DeleteSign(ctx, pos, 3); err != nil {
		t.Fatalf("Ошибка удаления таблички: %v", err)
	}
	rows, err = bs.LoadSigns(ctx, c.X, c.Y)
	if err != nil {
		t.Fatalf("Ошибка чтения табличек: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Табличка должна удаляться по позиции: %+v", rows)
	}
}

// TestBadgerDeleteSignsByPosition тестирует удаление всех граней блока
func TestBadgerDeleteSignsByPosition(t *testing.T) {
	bs := newTestBadgerStore(t)
	ctx := context.Background()

	pos := vec.Vec3{X: -5, Y: 20, Z: 33}
	c := vec.ChunkOf(pos.X, pos.Z)

	for face := 0; face < 4; face++ {
		if err := bs.InsertSign(ctx, c.X, c.Y, pos, face, "грань"); err != nil {
			t.Fatalf("Ошибка записи таблички: %v", err)
		}
	}

	if err := bs.DeleteSigns(ctx, pos); err != nil {
		t.Fatalf("Ошибка удаления табличек блока: %v", err)
	}

	rows, err := bs.LoadSigns(ctx, c.X, c.Y)
	if err != nil {
		t.Fatalf("Ошибка чтения табличек: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("После удаления блока табличек быть не должно: %+v", rows)
	}
}

// TestBadgerBlocksRoundTrip тестирует запись и чтение блоков через границу
// коммита
func TestBadgerBlocksRoundTrip(t *testing.T) {
	bs := newTestBadgerStore(t)
	ctx := context.Background()

	pos := vec.Vec3{X: 1, Y: 2, Z: 3}
	if err := bs.InsertBlock(ctx, 0, 0, pos, 7); err != nil {
		t.Fatalf("Ошибка записи блока: %v", err)
	}
	if err := bs.CommitAndBegin(ctx); err != nil {
		t.Fatalf("Ошибка фиксации: %v", err)
	}

	rows, err := bs.LoadBlocks(ctx, 0, 0)
	if err != nil {
		t.Fatalf("Ошибка чтения блоков: %v", err)
	}
	if len(rows) != 1 || rows[0].W != 7 || !rows[0].Pos.Equals(pos) {
		t.Errorf("Неверные блоки: %+v", rows)
	}
}
