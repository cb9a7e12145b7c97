// conversation_sync.go — локальное упорядоченное представление переписки.
//
// ConversationSync держит подписку на переписку текущей identity,
// сливает каждый снимок по ID и сортирует по времени создания.
// При смене identity старая подписка закрывается до открытия новой;
// снимок старой подписки, пришедший после смены, отбрасывается.
package service

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/feed"
)

// Conversation — переписка identity в порядке отображения.
type Conversation struct {
	Identity string
	Messages []model.Message
}

// Merge сливает снимок с текущим представлением: сообщения с тем же ID
// заменяются, новые добавляются. Результат упорядочен по CreatedAt
// по возрастанию; сообщения без CreatedAt идут последними; равные
// метки упорядочиваются по ID. Повторное слияние того же снимка
// не меняет результат.
func Merge(current, emission []model.Message) []model.Message {
	byID := make(map[string]int, len(current)+len(emission))
	merged := make([]model.Message, 0, len(current)+len(emission))

	upsert := func(m model.Message) {
		if i, ok := byID[m.ID]; ok {
			merged[i] = m
			return
		}
		byID[m.ID] = len(merged)
		merged = append(merged, m)
	}
	for _, m := range current {
		upsert(m)
	}
	for _, m := range emission {
		upsert(m)
	}

	sort.Slice(merged, func(i, j int) bool {
		return messageLess(merged[i], merged[j])
	})
	return merged
}

func messageLess(a, b model.Message) bool {
	switch {
	case a.CreatedAt == nil && b.CreatedAt == nil:
		return a.ID < b.ID
	case a.CreatedAt == nil:
		return false
	case b.CreatedAt == nil:
		return true
	case a.CreatedAt.Equal(*b.CreatedAt):
		return a.ID < b.ID
	default:
		return a.CreatedAt.Before(*b.CreatedAt)
	}
}

// ConversationSync — синхронизация переписки одной identity.
type ConversationSync struct {
	source MessageSubscriber
	logger *slog.Logger

	mu       sync.Mutex
	gen      uint64
	identity string
	stream   *feed.Stream[[]model.Message]
	messages []model.Message
	closed   bool
	updates  *feed.Broadcast[Conversation]
	drains   sync.WaitGroup
}

// NewConversationSync создаёт синхронизацию без identity.
func NewConversationSync(source MessageSubscriber, logger *slog.Logger) *ConversationSync {
	c := &ConversationSync{
		source:  source,
		logger:  logger.With(slog.String("component", "conversation_sync")),
		updates: feed.NewBroadcast[Conversation](),
	}
	c.updates.Set(Conversation{})
	return c
}

// SetIdentity переключает подписку на identity. Пустая строка —
// только освободить текущую подписку.
func (c *ConversationSync) SetIdentity(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || identity == c.identity {
		return
	}

	c.releaseLocked()
	c.gen++
	c.identity = identity
	c.messages = nil
	c.updates.Set(Conversation{Identity: identity})

	if identity == "" {
		return
	}

	stream := c.source.Subscribe(identity)
	c.stream = stream
	gen := c.gen
	c.drains.Add(1)
	go c.drain(gen, stream)

	c.logger.Debug("Подписка на переписку открыта", slog.String("identity", identity))
}

// Identity возвращает identity текущей подписки.
func (c *ConversationSync) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Snapshot возвращает копию текущего представления.
func (c *ConversationSync) Snapshot() Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Conversation{
		Identity: c.identity,
		Messages: append([]model.Message(nil), c.messages...),
	}
}

// Updates подписывает на изменения; текущее представление доставляется сразу.
func (c *ConversationSync) Updates() *feed.Stream[Conversation] {
	return c.updates.Subscribe()
}

// Close освобождает подписку и закрывает поток изменений.
func (c *ConversationSync) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	c.releaseLocked()
	c.mu.Unlock()

	c.drains.Wait()
	c.updates.Close()
}

func (c *ConversationSync) drain(gen uint64, stream *feed.Stream[[]model.Message]) {
	defer c.drains.Done()
	for snapshot := range stream.C() {
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.messages = Merge(c.messages, snapshot)
		c.updates.Set(Conversation{
			Identity: c.identity,
			Messages: append([]model.Message(nil), c.messages...),
		})
		c.mu.Unlock()
	}
}

// releaseLocked закрывает текущую подписку. Вызывается под c.mu.
func (c *ConversationSync) releaseLocked() {
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
}
