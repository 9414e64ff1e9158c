package persist

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/world-persist/internal/cache"
	"github.com/annel0/world-persist/internal/eventbus"
	"github.com/annel0/world-persist/internal/logging"
	"github.com/annel0/world-persist/internal/store"
	"github.com/annel0/world-persist/internal/vec"
)

// DefaultQueueCapacity начальная ёмкость очереди команд
const DefaultQueueCapacity = 1024

// Options настройки Persister-а. Нулевое значение даёт рабочую
// конфигурацию: очередь на 1024 команды, без автокоммита, без кеша,
// без шины и без метрик.
type Options struct {
	// InitialCapacity начальная ёмкость кольцевого буфера (по умолчанию 1024)
	InitialCapacity int

	// AutoCommitEvery интервал автоматических границ коммита
	// (0 — только явные Commit)
	AutoCommitEvery time.Duration

	// Cache опциональный кеш чтения чанков
	Cache cache.ChunkCache

	// Bus опциональная шина событий персистенции
	Bus eventbus.EventBus

	// Metrics опциональные Prometheus метрики
	Metrics *Metrics

	// Source имя узла в публикуемых событиях (по умолчанию "world-persist")
	Source string
}

// Persister асинхронная write-behind персистенция мира.
//
// Произвольное число потоков-производителей кладет команды записи в
// очередь; единственный worker применяет их к Store в порядке постановки.
// Постановка не блокирует (кроме короткого захвата мьютекса) и всегда
// успешна — подтверждения записи нет, это осознанный fire-and-forget.
// Чтение идет мимо очереди, напрямую в Store, под отдельным мьютексом
// читателей; читатель может не видеть ещё не применённые записи.
//
// Несколько независимых экземпляров допустимы: все состояние
// инкапсулировано, глобальных переменных нет.
type Persister struct {
	mu   sync.Mutex // защищает ring и stopped
	cond *sync.Cond
	ring *Ring

	loadMu sync.Mutex // сериализует читателей между собой

	store   store.Store
	cache   cache.ChunkCache
	bus     eventbus.EventBus
	metrics *Metrics
	source  string

	done     chan struct{} // закрывается, когда worker вышел
	stopped  bool          // выставлен после Shutdown: новые команды отбрасываются
	autoQuit chan struct{}
	ticker   *time.Ticker

	commitSeq uint64 // только worker
}

// New создает Persister над готовым Store и запускает worker.
func New(st store.Store, opts Options) *Persister {
	capacity := opts.InitialCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	source := opts.Source
	if source == "" {
		source = "world-persist"
	}

	ps := &Persister{
		ring:    NewRing(capacity),
		store:   st,
		cache:   opts.Cache,
		bus:     opts.Bus,
		metrics: opts.Metrics,
		source:  source,
		done:    make(chan struct{}),
	}
	ps.cond = sync.NewCond(&ps.mu)

	if ps.metrics != nil {
		ps.metrics.queueCapacity.Set(float64(capacity))
	}

	go ps.runWorker()

	if opts.AutoCommitEvery > 0 {
		ps.autoQuit = make(chan struct{})
		ps.ticker = time.NewTicker(opts.AutoCommitEvery)
		go ps.autoCommitLoop(ps.ticker, ps.autoQuit)
	}

	return ps
}

// enqueue кладет команду в очередь и будит worker.
// Сигнал подается всегда, даже если worker не спит — лишний сигнал безвреден.
func (ps *Persister) enqueue(cmd Command) {
	ps.mu.Lock()
	if ps.stopped {
		ps.mu.Unlock()
		logging.Warn("Persister: команда %s после Shutdown отброшена", cmd.Kind())
		return
	}
	oldCapacity := ps.ring.Capacity()
	ps.ring.Push(cmd)
	size := ps.ring.Size()
	capacity := ps.ring.Capacity()
	ps.cond.Signal()
	ps.mu.Unlock()

	if ps.metrics != nil {
		ps.metrics.queueLength.Set(float64(size))
		if capacity != oldCapacity {
			ps.metrics.queueCapacity.Set(float64(capacity))
			ps.metrics.queueGrows.Inc()
		}
	}
}

// WriteBlockAt ставит в очередь запись блока.
// При применении worker дополнительно сбросит износ блока в ноль.
func (ps *Persister) WriteBlockAt(p, q int, pos vec.Vec3, w int) {
	ps.enqueue(WriteBlock{P: p, Q: q, Pos: pos, W: w})
}

// WriteLightAt ставит в очередь запись значения света.
func (ps *Persister) WriteLightAt(p, q int, pos vec.Vec3, w int) {
	ps.enqueue(WriteLight{P: p, Q: q, Pos: pos, W: w})
}

// SetChunkKey ставит в очередь запись ключа чанка.
func (ps *Persister) SetChunkKey(p, q, key int) {
	ps.enqueue(SetKey{P: p, Q: q, Key: key})
}

// WriteDamageAt ставит в очередь запись износа блока.
func (ps *Persister) WriteDamageAt(p, q int, pos vec.Vec3, damage int) {
	ps.enqueue(WriteDamage{P: p, Q: q, Pos: pos, Damage: damage})
}

// TrimChunkDamage ставит в очередь удаление нулевых записей износа чанка.
func (ps *Persister) TrimChunkDamage(p, q int) {
	ps.enqueue(TrimZeroDamage{P: p, Q: q})
}

// Commit ставит в очередь границу транзакции: всё, что поставлено раньше,
// зафиксируется одной атомарной единицей.
func (ps *Persister) Commit() {
	ps.enqueue(Commit{})
}

// autoCommitLoop периодически ставит границы коммита.
// Каналы передаются параметрами: цикл не читает поля Persister-а,
// которые Shutdown меняет под мьютексом.
func (ps *Persister) autoCommitLoop(ticker *time.Ticker, quit <-chan struct{}) {
	for {
		select {
		case <-ticker.C:
			ps.Commit()
		case <-quit:
			return
		}
	}
}

// Shutdown ставит терминальный sentinel, дожидается, пока worker применит
// всё поставленное раньше и выйдет, затем закрывает Store (финальная
// фиксация — обязанность Store.Close). Блокирует вызывающего. Повторный
// вызов безопасен и возвращает nil.
//
// Таймаута нет: зависший вызов Store повесит и Shutdown.
func (ps *Persister) Shutdown() error {
	ps.mu.Lock()
	if ps.stopped {
		ps.mu.Unlock()
		<-ps.done
		return nil
	}
	ps.stopped = true
	// Останавливаем автокоммит; тик, успевший проскочить до этого места,
	// безвреден — Commit после stopped просто отбрасывается.
	// Поле не обнуляем: повторный вход сюда отсечен флагом stopped.
	if ps.autoQuit != nil {
		ps.ticker.Stop()
		close(ps.autoQuit)
	}
	ps.ring.Push(Shutdown{})
	ps.cond.Signal()
	ps.mu.Unlock()

	// join: ждём, пока worker опустошит очередь и выйдет
	<-ps.done

	ps.publishStopped()

	err := ps.store.Close()

	ps.mu.Lock()
	ps.ring.Free()
	ps.mu.Unlock()

	if ps.cache != nil {
		if cerr := ps.cache.Close(); cerr != nil {
			logging.Warn("Ошибка закрытия кеша: %v", cerr)
		}
	}

	return err
}

// publishStopped публикует событие остановки подсистемы
func (ps *Persister) publishStopped() {
	if ps.bus == nil {
		return
	}
	payload, _ := json.Marshal(struct {
		Commits uint64 `json:"commits"`
	}{Commits: ps.commitSeq})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := ps.bus.Publish(ctx, &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    ps.source,
		EventType: "PersistStopped",
		Payload:   payload,
	})
	if err != nil {
		logging.Warn("Publish PersistStopped: %v", err)
	}
}

// QueueStats текущее состояние очереди (для диагностики и тестов)
type QueueStats struct {
	Length   int
	Capacity int
}

// Stats возвращает мгновенный снимок состояния очереди.
func (ps *Persister) Stats() QueueStats {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return QueueStats{Length: ps.ring.Size(), Capacity: ps.ring.Capacity()}
}

//================ Read path (мимо очереди) =================//

// LoadBlocks загружает блоки чанка. Сначала смотрит в кеш; промах идет в
// Store, результат кешируется.
func (ps *Persister) LoadBlocks(ctx context.Context, p, q int) ([]store.BlockRow, error) {
	ps.loadMu.Lock()
	defer ps.loadMu.Unlock()

	if ps.cache != nil {
		if rows, ok := ps.cache.GetBlocks(ctx, p, q); ok {
			return rows, nil
		}
	}

	rows, err := ps.store.LoadBlocks(ctx, p, q)
	if err != nil {
		return nil, err
	}
	if ps.cache != nil {
		ps.cache.SetBlocks(ctx, p, q, rows)
	}
	logging.LogChunkLoad("block", p, q, len(rows))
	return rows, nil
}

// LoadLights загружает значения света чанка.
func (ps *Persister) LoadLights(ctx context.Context, p, q int) ([]store.BlockRow, error) {
	ps.loadMu.Lock()
	defer ps.loadMu.Unlock()

	if ps.cache != nil {
		if rows, ok := ps.cache.GetLights(ctx, p, q); ok {
			return rows, nil
		}
	}

	rows, err := ps.store.LoadLights(ctx, p, q)
	if err != nil {
		return nil, err
	}
	if ps.cache != nil {
		ps.cache.SetLights(ctx, p, q, rows)
	}
	logging.LogChunkLoad("light", p, q, len(rows))
	return rows, nil
}

// LoadDamage загружает записи износа чанка, отбрасывая нулевые.
func (ps *Persister) LoadDamage(ctx context.Context, p, q int) ([]store.DamageRow, error) {
	ps.loadMu.Lock()
	defer ps.loadMu.Unlock()

	rows, err := ps.store.LoadDamage(ctx, p, q)
	if err != nil {
		return nil, err
	}
	result := rows[:0]
	for _, row := range rows {
		if row.Damage != 0 {
			result = append(result, row)
		}
	}
	logging.LogChunkLoad("damage", p, q, len(result))
	return result, nil
}

// LoadSigns загружает таблички чанка.
func (ps *Persister) LoadSigns(ctx context.Context, p, q int) ([]store.SignRow, error) {
	ps.loadMu.Lock()
	defer ps.loadMu.Unlock()
	return ps.store.LoadSigns(ctx, p, q)
}

// GetKey возвращает ключ чанка (0, если ключ не записан).
func (ps *Persister) GetKey(ctx context.Context, p, q int) (int, error) {
	ps.loadMu.Lock()
	defer ps.loadMu.Unlock()
	return ps.store.GetKey(ctx, p, q)
}

// LoadState загружает сохраненное состояние игрока.
func (ps *Persister) LoadState(ctx context.Context) (store.PlayerState, bool, error) {
	ps.loadMu.Lock()
	defer ps.loadMu.Unlock()
	return ps.store.LoadState(ctx)
}

//================ Синхронные записи (мимо очереди) =================//

// Таблички и состояние игрока пишутся синхронно, как в игровом клиенте:
// они редкие, идут из UI-потока и не стоят постановки в очередь.

func (ps *Persister) InsertSign(ctx context.Context, p, q int, pos vec.Vec3, face int, text string) error {
	return ps.store.InsertSign(ctx, p, q, pos, face, text)
}

func (ps *Persister) DeleteSign(ctx context.Context, pos vec.Vec3, face int) error {
	return ps.store.DeleteSign(ctx, pos, face)
}

func (ps *Persister) DeleteSigns(ctx context.Context, pos vec.Vec3) error {
	return ps.store.DeleteSigns(ctx, pos)
}

func (ps *Persister) DeleteAllSigns(ctx context.Context) error {
	return ps.store.DeleteAllSigns(ctx)
}

func (ps *Persister) SaveState(ctx context.Context, st store.PlayerState) error {
	return ps.store.SaveState(ctx, st)
}
