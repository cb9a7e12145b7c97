// dispatcher.go — отправка сообщения пользователя и получение ответа ассистента.
//
// Порядок: запись сообщения пользователя, генерация ответа, запись ответа.
// Если генерация не удалась, записывается фиксированный текст FallbackReply.
// Признак «ассистент печатает» выставляется на время генерации и
// снимается на любом исходе.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/feed"
)

// FallbackReply — ответ ассистента при сбое генерации.
const FallbackReply = "Sorry, I'm having trouble connecting. Please try again later."

// Таймаут записи ответа ассистента после отмены запроса пользователя.
const replyWriteTimeout = 5 * time.Second

var messagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "st_messages_sent_total",
	Help: "Количество записанных сообщений по отправителю.",
}, []string{"sender"})

// Dispatcher — отправка сообщений одного клиента.
type Dispatcher struct {
	store  MessageAppender
	gen    Generator
	maxLen int
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	inflight  int
	composing *feed.Broadcast[bool]
	pending   sync.WaitGroup
}

// NewDispatcher создаёт Dispatcher. maxLen <= 0 — без ограничения длины.
func NewDispatcher(store MessageAppender, gen Generator, maxLen int, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		gen:       gen,
		maxLen:    maxLen,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "dispatcher")),
		composing: feed.NewBroadcast[bool](),
	}
	d.composing.Set(false)
	return d
}

// Send записывает сообщение пользователя, дожидается ответа ассистента
// и возвращает оба сообщения. Ошибка генерации не возвращается:
// вместо неё записывается FallbackReply.
func (d *Dispatcher) Send(ctx context.Context, identity, text string) (model.Message, model.Message, error) {
	user, err := d.storeUser(ctx, identity, text)
	if err != nil {
		return model.Message{}, model.Message{}, err
	}

	d.begin()
	defer d.end()
	reply, err := d.respond(ctx, identity, text)
	if err != nil {
		return user, model.Message{}, err
	}
	return user, reply, nil
}

// Submit записывает сообщение пользователя и отвечает в фоне.
// Ответ появляется в переписке через поток сообщений.
func (d *Dispatcher) Submit(ctx context.Context, identity, text string) (model.Message, error) {
	user, err := d.storeUser(ctx, identity, text)
	if err != nil {
		return model.Message{}, err
	}

	d.begin()
	d.pending.Add(1)
	bg := context.WithoutCancel(ctx)
	go func() {
		defer d.pending.Done()
		defer d.end()
		if _, err := d.respond(bg, identity, text); err != nil {
			d.logger.Error("Ответ ассистента не записан",
				slog.String("identity", identity),
				slog.String("error", err.Error()),
			)
		}
	}()
	return user, nil
}

// Composing подписывает на признак «ассистент печатает».
func (d *Dispatcher) Composing() *feed.Stream[bool] {
	return d.composing.Subscribe()
}

// IsComposing возвращает текущее значение признака.
func (d *Dispatcher) IsComposing() bool {
	v, _ := d.composing.Get()
	return v
}

// Wait ждёт завершения фоновых ответов.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// Close ждёт фоновые ответы и закрывает поток признака.
func (d *Dispatcher) Close() {
	d.pending.Wait()
	d.composing.Close()
}

// storeUser проверяет и записывает сообщение пользователя.
// Прошедший проверку текст сохраняется без изменений.
func (d *Dispatcher) storeUser(ctx context.Context, identity, text string) (model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return model.Message{}, ErrEmptyMessage
	}
	if identity == "" {
		return model.Message{}, ErrNoIdentity
	}
	if d.maxLen > 0 && utf8.RuneCountInString(text) > d.maxLen {
		return model.Message{}, fmt.Errorf("%w: максимум %d символов", ErrMessageTooLong, d.maxLen)
	}

	msg := model.NewMessage(identity, text, model.SenderUser, d.now())
	if err := d.store.Append(ctx, &msg); err != nil {
		return model.Message{}, &StoreWriteError{Sender: model.SenderUser, Err: err}
	}
	messagesSentTotal.WithLabelValues(string(model.SenderUser)).Inc()
	return msg, nil
}

// respond генерирует ответ и записывает его.
func (d *Dispatcher) respond(ctx context.Context, identity, prompt string) (model.Message, error) {
	text := d.generate(ctx, identity, prompt)

	// Ответ записывается даже если запрос пользователя уже отменён.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyWriteTimeout)
	defer cancel()

	msg := model.NewMessage(identity, text, model.SenderAssistant, d.now())
	if err := d.store.Append(writeCtx, &msg); err != nil {
		return model.Message{}, &StoreWriteError{Sender: model.SenderAssistant, Err: err}
	}
	messagesSentTotal.WithLabelValues(string(model.SenderAssistant)).Inc()
	return msg, nil
}

// generate возвращает текст ответа или FallbackReply.
func (d *Dispatcher) generate(ctx context.Context, identity, prompt string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Паника при генерации ответа",
				slog.String("identity", identity),
				slog.Any("panic", r),
			)
			text = FallbackReply
		}
	}()

	reply, err := d.gen.Generate(ctx, prompt)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelInfo
		}
		d.logger.Log(ctx, level, "Генерация ответа не удалась",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		return FallbackReply
	}
	return reply
}

func (d *Dispatcher) begin() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight++
	d.composing.Set(true)
}

func (d *Dispatcher) end() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight--
	d.composing.Set(d.inflight > 0)
}
