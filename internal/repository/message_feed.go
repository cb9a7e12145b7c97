package repository

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/feed"
)

// Канал PostgreSQL, в который триггер trg_messages_notify публикует user_id.
const notifyChannel = "messages"

// Prometheus-метрики живого потока сообщений.
var (
	feedSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "st_feed_subscriptions",
		Help: "Количество активных подписок на переписку.",
	})
	feedReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "st_feed_reconnects_total",
		Help: "Количество переподключений LISTEN-соединения.",
	})
)

// MessageFeedOption — опция MessageFeed.
type MessageFeedOption func(*MessageFeed)

// WithReconnectDelay задаёт паузу между попытками переподключения LISTEN.
func WithReconnectDelay(d time.Duration) MessageFeedOption {
	return func(f *MessageFeed) { f.reconnectDelay = d }
}

// WithLoadTimeout задаёт таймаут загрузки снимка переписки.
func WithLoadTimeout(d time.Duration) MessageFeedOption {
	return func(f *MessageFeed) { f.loadTimeout = d }
}

// MessageFeed — живой поток переписки по identity.
// Каждое событие — полный снимок переписки (порядок не гарантируется).
// Источник изменений — LISTEN messages на выделенном соединении пула.
type MessageFeed struct {
	pool     *pgxpool.Pool
	messages MessageRepository
	hub      *feed.Hub[string, []model.Message]
	logger   *slog.Logger

	reconnectDelay time.Duration
	loadTimeout    time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMessageFeed создаёт поток. pool может быть nil: тогда поток
// отдаёт только начальные снимки (используется в тестах без PostgreSQL).
func NewMessageFeed(pool *pgxpool.Pool, messages MessageRepository, logger *slog.Logger, opts ...MessageFeedOption) *MessageFeed {
	f := &MessageFeed{
		pool:           pool,
		messages:       messages,
		logger:         logger.With(slog.String("component", "message_feed")),
		reconnectDelay: 2 * time.Second,
		loadTimeout:    5 * time.Second,
	}
	f.hub = feed.NewHub[string, []model.Message](
		feed.WithSubscribeHook[string, []model.Message](func(string, int) { feedSubscriptions.Inc() }),
		feed.WithUnsubscribeHook[string, []model.Message](func(string, int) { feedSubscriptions.Dec() }),
	)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscribe открывает подписку на переписку identity.
// Первый снимок загружается асинхронно. Close потока отписывает его.
func (f *MessageFeed) Subscribe(identityID string) *feed.Stream[[]model.Message] {
	s := f.hub.Subscribe(identityID)
	go func() {
		snapshot, err := f.load(identityID)
		if err != nil {
			f.logger.Warn("Ошибка загрузки начального снимка переписки",
				slog.String("identity", identityID),
				slog.String("error", err.Error()),
			)
			return
		}
		s.Publish(snapshot)
	}()
	return s
}

// Notify перечитывает переписку identity и рассылает снимок подписчикам.
// Вызывается из цикла LISTEN; доступен для повторной рассылки после записи.
func (f *MessageFeed) Notify(identityID string) {
	if f.hub.Count(identityID) == 0 {
		return
	}
	snapshot, err := f.load(identityID)
	if err != nil {
		f.logger.Warn("Ошибка загрузки снимка переписки",
			slog.String("identity", identityID),
			slog.String("error", err.Error()),
		)
		return
	}
	f.hub.Publish(identityID, snapshot)
}

// Start запускает цикл LISTEN в фоновой горутине.
func (f *MessageFeed) Start(ctx context.Context) {
	if f.pool == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return
	}

	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		f.run(ctx)
	}()

	f.logger.Info("Поток сообщений запущен", slog.String("channel", notifyChannel))
}

// Stop останавливает цикл LISTEN и закрывает все подписки.
func (f *MessageFeed) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	f.hub.CloseAll()
	f.logger.Info("Поток сообщений остановлен")
}

func (f *MessageFeed) run(ctx context.Context) {
	first := true
	for {
		if !first {
			// Уведомления, пришедшие без соединения, потеряны: рассылаем свежие снимки.
			f.resync()
		}
		err := f.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		first = false
		feedReconnectsTotal.Inc()
		f.logger.Warn("LISTEN-соединение потеряно, переподключение",
			slog.String("error", errString(err)),
			slog.Duration("delay", f.reconnectDelay),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.reconnectDelay):
		}
	}
}

// listen держит выделенное соединение и обрабатывает уведомления до ошибки.
func (f *MessageFeed) listen(ctx context.Context) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// Соединение возвращается в пул, поэтому подписка снимается.
		unlistenCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, _ = conn.Exec(unlistenCtx, "UNLISTEN *")
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		f.Notify(n.Payload)
	}
}

func (f *MessageFeed) resync() {
	for _, id := range f.hub.Keys() {
		f.Notify(id)
	}
}

func (f *MessageFeed) load(identityID string) ([]model.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), f.loadTimeout)
	defer cancel()
	snapshot, err := f.messages.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		snapshot = []model.Message{}
	}
	return snapshot, nil
}

func errString(err error) string {
	if err == nil {
		return "соединение закрыто"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "таймаут"
	}
	return err.Error()
}
