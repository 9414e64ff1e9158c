package store

import (
	"context"

	"github.com/annel0/world-persist/internal/vec"
)

// BlockRow одна запись блока или света, загруженная из хранилища
type BlockRow struct {
	Pos vec.Vec3 `json:"pos"`
	W   int      `json:"w"`
}

// DamageRow одна запись износа блока
type DamageRow struct {
	Pos    vec.Vec3 `json:"pos"`
	Damage int      `json:"damage"`
}

// SignRow одна запись таблички
type SignRow struct {
	Pos  vec.Vec3 `json:"pos"`
	Face int      `json:"face"`
	Text string   `json:"text"`
}

// PlayerState сохраненное состояние игрока между сессиями
type PlayerState struct {
	X, Y, Z float64
	RX, RY  float64
	Flying  bool
}

// Store определяет интерфейс постоянного хранилища мира.
//
// Запись (InsertBlock и далее до CommitAndBegin) выполняется только
// worker-ом подсистемы персистенции, поэтому реализации не обязаны
// синхронизировать её между собой. Чтение может выполняться из
// произвольных потоков одновременно с записью; читатель может не видеть
// изменения, которые ещё не прошли границу CommitAndBegin.
type Store interface {
	// InsertBlock записывает блок (p,q — чанк, pos — позиция, w — id блока)
	InsertBlock(ctx context.Context, p, q int, pos vec.Vec3, w int) error

	// InsertLight записывает значение света
	InsertLight(ctx context.Context, p, q int, pos vec.Vec3, w int) error

	// InsertBlockDamage записывает значение износа блока (0 — не поврежден)
	InsertBlockDamage(ctx context.Context, p, q int, pos vec.Vec3, damage int) error

	// TrimZeroDamage удаляет записи износа равные нулю для чанка
	TrimZeroDamage(ctx context.Context, p, q int) error

	// SetKey устанавливает ключ чанка
	SetKey(ctx context.Context, p, q, key int) error

	// CommitAndBegin закрывает текущую транзакцию и открывает следующую.
	// Все записи с предыдущей границы фиксируются одной атомарной единицей.
	CommitAndBegin(ctx context.Context) error

	// Таблички пишутся синхронно, минуя очередь (как и в игровом клиенте)
	InsertSign(ctx context.Context, p, q int, pos vec.Vec3, face int, text string) error
	DeleteSign(ctx context.Context, pos vec.Vec3, face int) error
	DeleteSigns(ctx context.Context, pos vec.Vec3) error
	DeleteAllSigns(ctx context.Context) error

	// Состояние игрока (позиция, поворот камеры, полет)
	SaveState(ctx context.Context, st PlayerState) error
	LoadState(ctx context.Context) (PlayerState, bool, error)

	// Чтение данных чанка
	LoadBlocks(ctx context.Context, p, q int) ([]BlockRow, error)
	LoadLights(ctx context.Context, p, q int) ([]BlockRow, error)
	LoadDamage(ctx context.Context, p, q int) ([]DamageRow, error)
	LoadSigns(ctx context.Context, p, q int) ([]SignRow, error)

	// GetKey возвращает ключ чанка (0, если ключ не записан)
	GetKey(ctx context.Context, p, q int) (int, error)

	// Close фиксирует незавершенную транзакцию и закрывает хранилище
	Close() error
}
