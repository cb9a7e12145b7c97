// client.go — состояние одного браузерного клиента.
//
// Client владеет SessionWatcher, ConversationSync, Dispatcher и
// AdminAggregator. Смена сессии переключает подписку на переписку;
// потеря роли admin снимает выбор в панели администратора.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/domain/view"
	"github.com/bigkaa/smarttalk/internal/feed"
)

// Theme — тема оформления интерфейса.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme возвращает тему; неизвестное значение — светлая тема.
func ParseTheme(s string) Theme {
	if Theme(s) == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// Deps — внешние зависимости клиента.
type Deps struct {
	Sessions      SessionSource
	Authz         AuthorizationLookup
	Messages      MessageSubscriber
	Store         MessageAppender
	Generator     Generator
	Identities    IdentityLister
	LookupTimeout time.Duration
	MaxMessageLen int
}

// Client — состояние браузерного клиента.
type Client struct {
	ID string

	watcher      *SessionWatcher
	conversation *ConversationSync
	dispatcher   *Dispatcher
	admin        *AdminAggregator
	logger       *slog.Logger

	mu    sync.Mutex
	theme Theme

	changes *feed.Stream[SessionState]
	done    chan struct{}
	once    sync.Once
}

// NewClient создаёт и запускает клиента.
func NewClient(id string, deps Deps, logger *slog.Logger) *Client {
	logger = logger.With(slog.String("client", id))
	c := &Client{
		ID:           id,
		watcher:      NewSessionWatcher(deps.Sessions, id, deps.Authz, deps.LookupTimeout, logger),
		conversation: NewConversationSync(deps.Messages, logger),
		dispatcher:   NewDispatcher(deps.Store, deps.Generator, deps.MaxMessageLen, logger),
		admin:        NewAdminAggregator(deps.Identities, deps.Messages, logger),
		logger:       logger.With(slog.String("component", "client")),
		theme:        ThemeLight,
		done:         make(chan struct{}),
	}
	c.changes = c.watcher.Updates()
	c.watcher.Start()
	go c.run()
	return c
}

// Session возвращает последнее разрешённое состояние сессии.
func (c *Client) Session() SessionState {
	return c.watcher.Current()
}

// AwaitSession ждёт разрешения уведомления seq.
func (c *Client) AwaitSession(ctx context.Context, seq uint64) (SessionState, error) {
	return c.watcher.Await(ctx, seq)
}

// SessionUpdates подписывает на разрешённые состояния сессии.
func (c *Client) SessionUpdates() *feed.Stream[SessionState] {
	return c.watcher.Updates()
}

// Route выбирает экран для запрошенной страницы.
func (c *Client) Route(requested view.Page) view.View {
	st := c.watcher.Current()
	return view.Route(st.HasSession(), st.IsAdmin, requested)
}

// Conversation возвращает синхронизацию переписки текущего пользователя.
func (c *Client) Conversation() *ConversationSync {
	return c.conversation
}

// Dispatcher возвращает отправителя сообщений клиента.
func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Admin возвращает агрегатор панели администратора.
func (c *Client) Admin() *AdminAggregator {
	return c.admin
}

// Send отправляет сообщение от имени текущего пользователя и ждёт ответа.
func (c *Client) Send(ctx context.Context, text string) (model.Message, model.Message, error) {
	return c.dispatcher.Send(ctx, c.watcher.Current().Identity(), text)
}

// Submit отправляет сообщение от имени текущего пользователя; ответ приходит в фоне.
func (c *Client) Submit(ctx context.Context, text string) (model.Message, error) {
	return c.dispatcher.Submit(ctx, c.watcher.Current().Identity(), text)
}

// Theme возвращает тему оформления.
func (c *Client) Theme() Theme {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.theme
}

// SetTheme меняет тему оформления.
func (c *Client) SetTheme(t Theme) {
	c.mu.Lock()
	c.theme = t
	c.mu.Unlock()
}

// Close освобождает все подписки клиента. Повторный вызов безопасен.
func (c *Client) Close() {
	c.once.Do(func() {
		c.watcher.Close()
		<-c.done
		c.dispatcher.Close()
		c.admin.Close()
		c.conversation.Close()
		c.logger.Debug("Клиент закрыт")
	})
}

func (c *Client) run() {
	defer close(c.done)
	for st := range c.changes.C() {
		c.conversation.SetIdentity(st.Identity())
		if !st.IsAdmin {
			c.admin.SelectIdentity("")
		}
	}
}
