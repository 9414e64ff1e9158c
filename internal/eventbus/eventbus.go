package eventbus

import (
	"context"
	"sync"
	"time"
)

// Envelope универсальный контейнер события подсистемы персистенции.
type Envelope struct {
	ID        string            // Глобально уникальный идентификатор (UUID).
	Timestamp time.Time         // Время создания события (UTC).
	Source    string            // Имя узла-источника.
	EventType string            // Тип события (CommitApplied, PersistStopped…).
	Payload   []byte            // Сериализованный JSON.
	Metadata  map[string]string // Произвольные метаданные.
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Stats агрегированные счетчики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
}

// EventBus абстракция шины событий. Публикация не должна блокировать
// вызывающего дольше, чем на время сериализации: события персистенции
// информационные, их потеря допустима.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, eventType string, h Handler) (Subscription, error)
	Metrics() Stats
}

//================ In-Memory implementation =================//

// MemoryBus реализует EventBus в памяти процесса (тесты, одиночный узел).
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers map[int]memSubscriber
	nextID      int
	stats       Stats
	buffer      chan *Envelope
	closed      bool
}

type memSubscriber struct {
	eventType string // пусто — все типы
	handler   Handler
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewMemoryBus создает in-memory шину с указанным буфером.
func NewMemoryBus(capacity int) *MemoryBus {
	mb := &MemoryBus{
		subscribers: make(map[int]memSubscriber),
		buffer:      make(chan *Envelope, capacity),
	}
	go mb.dispatchLoop()
	return mb
}

// Publish кладет событие в буфер; при переполнении или после Close
// событие отбрасывается.
func (mb *MemoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		mb.stats.Dropped++
		return nil
	}
	select {
	case mb.buffer <- ev:
		mb.stats.Published++
	default:
		mb.stats.Dropped++
	}
	return nil
}

func (mb *MemoryBus) Subscribe(ctx context.Context, eventType string, h Handler) (Subscription, error) {
	mb.mu.Lock()
	id := mb.nextID
	mb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	mb.subscribers[id] = memSubscriber{eventType: eventType, handler: h, ctx: cctx, cancel: cancel}
	mb.mu.Unlock()

	return &memSub{bus: mb, id: id}, nil
}

func (mb *MemoryBus) Metrics() Stats {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.stats
}

// Close закрывает буфер и завершает горутину диспетчеризации.
// Уже забуференные события дойдут до подписчиков; повторный вызов безопасен.
func (mb *MemoryBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if !mb.closed {
		mb.closed = true
		close(mb.buffer)
	}
}

// dispatchLoop рассылает события подписчикам, пока буфер не закрыт.
func (mb *MemoryBus) dispatchLoop() {
	for ev := range mb.buffer {
		mb.mu.RLock()
		subs := make([]memSubscriber, 0, len(mb.subscribers))
		for _, sub := range mb.subscribers {
			if sub.eventType == "" || sub.eventType == ev.EventType {
				subs = append(subs, sub)
			}
		}
		mb.mu.RUnlock()

		for _, sub := range subs {
			select {
			case <-sub.ctx.Done():
			default:
				sub.handler(sub.ctx, ev)
				mb.mu.Lock()
				mb.stats.Consumed++
				mb.mu.Unlock()
			}
		}
	}
}

type memSub struct {
	bus *MemoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		sub.cancel()
		delete(s.bus.subscribers, s.id)
	}
	s.bus.mu.Unlock()
}
