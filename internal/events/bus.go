package events

import (
	"log/slog"
	"sync"

	"github.com/savrin/operato/internal/domain"
)

// DefaultBuffer — размер буфера подписчика по умолчанию.
const DefaultBuffer = 256

// Bus — внутрипроцессная шина событий workflow.
//
// Гарантирует порядок: события одного execution доставляются каждому
// подписчику в порядке публикации. Публикация не блокируется —
// при переполненном буфере подписчика событие для него отбрасывается
// с записью в лог (медленный подписчик не должен останавливать движок).
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan domain.WorkflowEvent
	nextID int
	closed bool
	logger *slog.Logger
}

// NewBus создаёт новую шину событий.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[int]chan domain.WorkflowEvent),
		logger: logger,
	}
}

// Subscribe регистрирует подписчика и возвращает его канал
// вместе с функцией отписки. Канал закрывается при отписке
// или при закрытии шины.
func (b *Bus) Subscribe() (<-chan domain.WorkflowEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan domain.WorkflowEvent)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan domain.WorkflowEvent, DefaultBuffer)
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Publish рассылает событие всем подписчикам.
//
// Вызовы для одного execution сериализует контроллер (состояние
// execution двигает одна горутина), поэтому порядок в каналах
// совпадает с порядком публикации.
func (b *Bus) Publish(event domain.WorkflowEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Warn("event dropped: subscriber buffer full",
				"subscriber", id,
				"event_type", string(event.Type),
				"execution_id", event.ExecutionID)
		}
	}
}

// Close закрывает шину и каналы всех подписчиков.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
