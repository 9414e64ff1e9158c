package persist

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/world-persist/internal/eventbus"
	"github.com/annel0/world-persist/internal/logging"
)

// CommitAppliedPayload полезная нагрузка события CommitApplied.
type CommitAppliedPayload struct {
	Seq      uint64 `json:"seq"`      // порядковый номер границы коммита
	Commands int    `json:"commands"` // команд применено с прошлой границы
	Millis   int64  `json:"millis"`   // время с прошлой границы
}

// runWorker цикл единственного потребителя очереди.
//
// Каждая итерация: взять мьютекс; пока очередь пуста — ждать на condition
// (ожидание терпимо к ложным пробуждениям, поэтому в цикле); извлечь одну
// команду под мьютексом (Ring не синхронизирован); отпустить мьютекс и
// применить команду к Store уже вне мьютекса, чтобы производители могли
// продолжать класть команды во время применения.
func (ps *Persister) runWorker() {
	defer close(ps.done)

	ctx := context.Background()
	batch := 0
	lastCommit := time.Now()

	for {
		ps.mu.Lock()
		for ps.ring.Empty() {
			ps.cond.Wait()
		}
		cmd, _ := ps.ring.Pop()
		size := ps.ring.Size()
		ps.mu.Unlock()

		if ps.metrics != nil {
			ps.metrics.queueLength.Set(float64(size))
		}

		if _, ok := cmd.(Shutdown); ok {
			// Всё, что стояло в очереди раньше sentinel-а, уже применено
			logging.Info("Persist worker остановлен, применено %d команд без коммита", batch)
			return
		}

		ps.apply(ctx, cmd, &batch, &lastCommit)
	}
}

// apply применяет одну команду к Store.
// Ошибки Store не останавливают worker и не видны производителям:
// логируются, учитываются в метриках, цикл продолжается.
func (ps *Persister) apply(ctx context.Context, cmd Command, batch *int, lastCommit *time.Time) {
	start := time.Now()
	var err error
	op := cmd.Kind()

	switch c := cmd.(type) {
	case WriteBlock:
		// Полная запись блока всегда сбрасывает износ в ноль: износ имеет
		// смысл только для блока, который с тех пор не заменяли.
		err = ps.store.InsertBlock(ctx, c.P, c.Q, c.Pos, c.W)
		if err == nil {
			err = ps.store.InsertBlockDamage(ctx, c.P, c.Q, c.Pos, 0)
		}
		ps.invalidateChunk(ctx, c.P, c.Q)

	case WriteLight:
		err = ps.store.InsertLight(ctx, c.P, c.Q, c.Pos, c.W)
		ps.invalidateChunk(ctx, c.P, c.Q)

	case SetKey:
		err = ps.store.SetKey(ctx, c.P, c.Q, c.Key)

	case WriteDamage:
		err = ps.store.InsertBlockDamage(ctx, c.P, c.Q, c.Pos, c.Damage)

	case TrimZeroDamage:
		err = ps.store.TrimZeroDamage(ctx, c.P, c.Q)
		ps.invalidateChunk(ctx, c.P, c.Q)

	case Commit:
		err = ps.store.CommitAndBegin(ctx)
		if err == nil {
			ps.publishCommit(*batch, time.Since(*lastCommit))
		}
		*batch = 0
		*lastCommit = time.Now()

	case Shutdown:
		// Обрабатывается в runWorker до диспетчеризации
		return
	}

	if ps.metrics != nil {
		ps.metrics.applyDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		ps.noteStoreError(op, cmd, err)
		return
	}

	if _, ok := cmd.(Commit); !ok {
		*batch++
	}
	if ps.metrics != nil {
		ps.metrics.applied.WithLabelValues(op).Inc()
	}
}

// invalidateChunk сбрасывает кеш чтения чанка после записи
func (ps *Persister) invalidateChunk(ctx context.Context, p, q int) {
	if ps.cache != nil {
		ps.cache.Invalidate(ctx, p, q)
	}
}

// noteStoreError логирует ошибку Store и учитывает её в метриках
func (ps *Persister) noteStoreError(op string, cmd Command, err error) {
	switch c := cmd.(type) {
	case WriteBlock:
		logging.LogStoreError(op, c.P, c.Q, err)
	case WriteLight:
		logging.LogStoreError(op, c.P, c.Q, err)
	case SetKey:
		logging.LogStoreError(op, c.P, c.Q, err)
	case WriteDamage:
		logging.LogStoreError(op, c.P, c.Q, err)
	case TrimZeroDamage:
		logging.LogStoreError(op, c.P, c.Q, err)
	default:
		logging.Error("Store %s failed: %v", op, err)
	}
	if ps.metrics != nil {
		ps.metrics.storeErrors.WithLabelValues(op).Inc()
	}
}

// publishCommit публикует событие границы коммита в шину
func (ps *Persister) publishCommit(commands int, elapsed time.Duration) {
	ps.commitSeq++
	if ps.bus == nil {
		return
	}

	payload, err := json.Marshal(CommitAppliedPayload{
		Seq:      ps.commitSeq,
		Commands: commands,
		Millis:   elapsed.Milliseconds(),
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = ps.bus.Publish(ctx, &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    ps.source,
		EventType: "CommitApplied",
		Payload:   payload,
	})
	if err != nil {
		logging.Warn("Publish CommitApplied: %v", err)
	}
}
