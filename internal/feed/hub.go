package feed

import "sync"

// Hub — набор подписок, сгруппированных по ключу (клиент, identity).
// Доставка неблокирующая, поэтому Publish выполняется под блокировкой хаба
// и конкурентные публикации одного ключа не переупорядочиваются.
type Hub[K comparable, T any] struct {
	mu   sync.Mutex
	subs map[K]map[*Stream[T]]struct{}

	// onSubscribe/onUnsubscribe вызываются вне блокировки
	// с числом подписчиков ключа после изменения.
	onSubscribe   func(key K, count int)
	onUnsubscribe func(key K, count int)
}

// HubOption — опция Hub.
type HubOption[K comparable, T any] func(*Hub[K, T])

// WithSubscribeHook задаёт обработчик появления подписчика.
func WithSubscribeHook[K comparable, T any](fn func(key K, count int)) HubOption[K, T] {
	return func(h *Hub[K, T]) { h.onSubscribe = fn }
}

// WithUnsubscribeHook задаёт обработчик ухода подписчика.
func WithUnsubscribeHook[K comparable, T any](fn func(key K, count int)) HubOption[K, T] {
	return func(h *Hub[K, T]) { h.onUnsubscribe = fn }
}

// NewHub создаёт пустой Hub.
func NewHub[K comparable, T any](opts ...HubOption[K, T]) *Hub[K, T] {
	h := &Hub[K, T]{subs: make(map[K]map[*Stream[T]]struct{})}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe создаёт поток для ключа. Close потока отписывает его.
func (h *Hub[K, T]) Subscribe(key K) *Stream[T] {
	var s *Stream[T]
	s = NewStream[T](func() { h.remove(key, s) })

	h.mu.Lock()
	set, ok := h.subs[key]
	if !ok {
		set = make(map[*Stream[T]]struct{})
		h.subs[key] = set
	}
	set[s] = struct{}{}
	count := len(set)
	h.mu.Unlock()

	if h.onSubscribe != nil {
		h.onSubscribe(key, count)
	}
	return s
}

func (h *Hub[K, T]) remove(key K, s *Stream[T]) {
	h.mu.Lock()
	set, ok := h.subs[key]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := set[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, s)
	count := len(set)
	if count == 0 {
		delete(h.subs, key)
	}
	h.mu.Unlock()

	if h.onUnsubscribe != nil {
		h.onUnsubscribe(key, count)
	}
}

// Publish доставляет v всем подписчикам ключа. Возвращает число получателей.
func (h *Hub[K, T]) Publish(key K, v T) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for s := range h.subs[key] {
		if s.Publish(v) {
			n++
		}
	}
	return n
}

// Count возвращает число подписчиков ключа.
func (h *Hub[K, T]) Count(key K) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[key])
}

// Keys возвращает ключи, у которых есть подписчики.
func (h *Hub[K, T]) Keys() []K {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]K, 0, len(h.subs))
	for k := range h.subs {
		keys = append(keys, k)
	}
	return keys
}

// CloseAll закрывает все подписки.
func (h *Hub[K, T]) CloseAll() {
	h.mu.Lock()
	var all []*Stream[T]
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
