// Пакет feed — отменяемые потоки событий для подписок.
//
// Stream доставляет значения одному потребителю по принципу
// «последнее значение побеждает»: каждое событие — полный снимок,
// поэтому при медленном потребителе промежуточные снимки отбрасываются.
// После Close потребитель больше не получит ни одного значения.
package feed

import "sync"

// Stream — подписка одного потребителя.
type Stream[T any] struct {
	mu      sync.Mutex
	ch      chan T
	closed  bool
	onClose func()
}

// NewStream создаёт поток. onClose вызывается один раз при закрытии
// (например, для отписки от источника); может быть nil.
func NewStream[T any](onClose func()) *Stream[T] {
	return &Stream[T]{
		ch:      make(chan T, 1),
		onClose: onClose,
	}
}

// C возвращает канал значений. Канал закрывается после Close.
func (s *Stream[T]) C() <-chan T {
	return s.ch
}

// Publish не блокируясь заменяет ещё не прочитанное значение на v.
// Возвращает false, если поток закрыт.
func (s *Stream[T]) Publish(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	// Отправители сериализованы мьютексом, поэтому после вычитки
	// устаревшего значения место в буфере гарантированно есть.
	select {
	case s.ch <- v:
	default:
		select {
		case <-s.ch:
		default:
		}
		s.ch <- v
	}
	return true
}

// Close закрывает поток. Непрочитанное значение отбрасывается.
// Повторный вызов безопасен.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	select {
	case <-s.ch:
	default:
	}
	close(s.ch)
	onClose := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

// Closed сообщает, закрыт ли поток.
func (s *Stream[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
