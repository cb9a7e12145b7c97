package feed

import "sync"

// Broadcast — значение с подписчиками. Новый подписчик сразу получает
// текущее значение (если оно задано), затем все последующие.
// Рассылка идёт под блокировкой, порядок Set сохраняется.
type Broadcast[T any] struct {
	mu     sync.Mutex
	value  T
	set    bool
	closed bool
	subs   map[*Stream[T]]struct{}
}

// NewBroadcast создаёт Broadcast без начального значения.
func NewBroadcast[T any]() *Broadcast[T] {
	return &Broadcast[T]{subs: make(map[*Stream[T]]struct{})}
}

// Set сохраняет значение и рассылает его подписчикам.
func (b *Broadcast[T]) Set(v T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.value = v
	b.set = true
	for s := range b.subs {
		s.Publish(v)
	}
	b.mu.Unlock()
}

// Get возвращает текущее значение и признак того, что оно задано.
func (b *Broadcast[T]) Get() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.set
}

// Subscribe создаёт поток. Если Broadcast закрыт, поток возвращается закрытым.
func (b *Broadcast[T]) Subscribe() *Stream[T] {
	var s *Stream[T]
	s = NewStream[T](func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
	})

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.Close()
		return s
	}
	b.subs[s] = struct{}{}
	if b.set {
		s.Publish(b.value)
	}
	b.mu.Unlock()
	return s
}

// Close закрывает все подписки; последующие Set игнорируются.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	targets := make([]*Stream[T], 0, len(b.subs))
	for s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.Close()
	}
}
