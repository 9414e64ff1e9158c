package store

import (
	"context"
	"sync"

	"github.com/annel0/world-persist/internal/vec"
)

// chunkPos ключ записи внутри чанка
type chunkPos struct {
	P, Q    int
	X, Y, Z int
}

// signKey таблички уникальны по позиции и грани
type signKey struct {
	X, Y, Z int
	Face    int
}

// AppliedOp одна применённая операция записи (для проверки порядка в тестах)
type AppliedOp struct {
	Op     string // "block", "light", "damage", "trim", "key", "commit"
	P, Q   int
	Pos    vec.Vec3
	W      int
	Damage int
	Key    int
}

// MemoryStore реализует Store в памяти.
// Используется в тестах и как дефолтный backend, когда персистентное
// хранилище не сконфигурировано. Дополнительно ведет журнал применённых
// операций записи, чтобы тесты могли проверять порядок.
type MemoryStore struct {
	mu sync.RWMutex

	blocks map[chunkPos]int
	lights map[chunkPos]int
	damage map[chunkPos]int
	keys   map[vec.Vec2]int
	signs  map[signKey]SignRow
	state  *PlayerState

	// Журнал записи: зафиксированные + незакоммиченная часть.
	// CommitAndBegin переносит pending в applied.
	applied []AppliedOp
	pending []AppliedOp

	closed bool
}

// NewMemoryStore создает пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks: make(map[chunkPos]int),
		lights: make(map[chunkPos]int),
		damage: make(map[chunkPos]int),
		keys:   make(map[vec.Vec2]int),
		signs:  make(map[signKey]SignRow),
	}
}

func (m *MemoryStore) InsertBlock(ctx context.Context, p, q int, pos vec.Vec3, w int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[chunkPos{p, q, pos.X, pos.Y, pos.Z}] = w
	m.pending = append(m.pending, AppliedOp{Op: "block", P: p, Q: q, Pos: pos, W: w})
	return nil
}

func (m *MemoryStore) InsertLight(ctx context.Context, p, q int, pos vec.Vec3, w int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lights[chunkPos{p, q, pos.X, pos.Y, pos.Z}] = w
	m.pending = append(m.pending, AppliedOp{Op: "light", P: p, Q: q, Pos: pos, W: w})
	return nil
}

func (m *MemoryStore) InsertBlockDamage(ctx context.Context, p, q int, pos vec.Vec3, damage int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.damage[chunkPos{p, q, pos.X, pos.Y, pos.Z}] = damage
	m.pending = append(m.pending, AppliedOp{Op: "damage", P: p, Q: q, Pos: pos, Damage: damage})
	return nil
}

func (m *MemoryStore) TrimZeroDamage(ctx context.Context, p, q int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, d := range m.damage {
		if d == 0 && key.P == p && key.Q == q {
			delete(m.damage, key)
		}
	}
	m.pending = append(m.pending, AppliedOp{Op: "trim", P: p, Q: q})
	return nil
}

func (m *MemoryStore) SetKey(ctx context.Context, p, q, key int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[vec.Vec2{X: p, Y: q}] = key
	m.pending = append(m.pending, AppliedOp{Op: "key", P: p, Q: q, Key: key})
	return nil
}

func (m *MemoryStore) CommitAndBegin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, m.pending...)
	m.pending = m.pending[:0]
	m.applied = append(m.applied, AppliedOp{Op: "commit"})
	return nil
}

func (m *MemoryStore) InsertSign(ctx context.Context, p, q int, pos vec.Vec3, face int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signs[signKey{pos.X, pos.Y, pos.Z, face}] = SignRow{Pos: pos, Face: face, Text: text}
	return nil
}

func (m *MemoryStore) DeleteSign(ctx context.Context, pos vec.Vec3, face int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.signs, signKey{pos.X, pos.Y, pos.Z, face})
	return nil
}

func (m *MemoryStore) DeleteSigns(ctx context.Context, pos vec.Vec3) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.signs {
		if key.X == pos.X && key.Y == pos.Y && key.Z == pos.Z {
			delete(m.signs, key)
		}
	}
	return nil
}

func (m *MemoryStore) DeleteAllSigns(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signs = make(map[signKey]SignRow)
	return nil
}

func (m *MemoryStore) SaveState(ctx context.Context, st PlayerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &st
	return nil
}

func (m *MemoryStore) LoadState(ctx context.Context) (PlayerState, bool, error) {
	if err := ctx.Err(); err != nil {
		return PlayerState{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return PlayerState{}, false, nil
	}
	return *m.state, true, nil
}

func (m *MemoryStore) LoadBlocks(ctx context.Context, p, q int) ([]BlockRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []BlockRow
	for key, w := range m.blocks {
		if key.P == p && key.Q == q {
			rows = append(rows, BlockRow{Pos: vec.Vec3{X: key.X, Y: key.Y, Z: key.Z}, W: w})
		}
	}
	return rows, nil
}

func (m *MemoryStore) LoadLights(ctx context.Context, p, q int) ([]BlockRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []BlockRow
	for key, w := range m.lights {
		if key.P == p && key.Q == q {
			rows = append(rows, BlockRow{Pos: vec.Vec3{X: key.X, Y: key.Y, Z: key.Z}, W: w})
		}
	}
	return rows, nil
}

func (m *MemoryStore) LoadDamage(ctx context.Context, p, q int) ([]DamageRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []DamageRow
	for key, d := range m.damage {
		if key.P == p && key.Q == q {
			rows = append(rows, DamageRow{Pos: vec.Vec3{X: key.X, Y: key.Y, Z: key.Z}, Damage: d})
		}
	}
	return rows, nil
}

func (m *MemoryStore) LoadSigns(ctx context.Context, p, q int) ([]SignRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []SignRow
	for _, row := range m.signs {
		if vec.ChunkOf(row.Pos.X, row.Pos.Z) == (vec.Vec2{X: p, Y: q}) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (m *MemoryStore) GetKey(ctx context.Context, p, q int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.keys[vec.Vec2{X: p, Y: q}], nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Финальный commit незакоммиченных операций
	m.applied = append(m.applied, m.pending...)
	m.pending = m.pending[:0]
	m.closed = true
	return nil
}

// AppliedOps возвращает копию журнала применённых операций записи
// (включая незакоммиченную часть) в порядке применения.
func (m *MemoryStore) AppliedOps() []AppliedOp {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ops := make([]AppliedOp, 0, len(m.applied)+len(m.pending))
	ops = append(ops, m.applied...)
	ops = append(ops, m.pending...)
	return ops
}

// BlockCount возвращает число записанных блоков во всех чанках
func (m *MemoryStore) BlockCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}
