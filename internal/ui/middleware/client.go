// Пакет middleware — HTTP middleware для UI SmartTalk.
// client.go — привязка запроса к состоянию браузерного клиента.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/smarttalk/internal/domain/view"
	"github.com/bigkaa/smarttalk/internal/service"
	"github.com/bigkaa/smarttalk/internal/ui/session"
)

// contextKey — тип для ключей контекста UI (избегаем коллизий с API middleware).
type contextKey string

const (
	contextKeyClient contextKey = "ui_client"
	contextKeyState  contextKey = "ui_session_state"
	contextKeyCookie contextKey = "ui_cookie"
)

// Таймаут ожидания разрешения сессии (проверка роли admin ограничена отдельно).
const awaitTimeout = 5 * time.Second

// SessionReconciler — сверка сессии клиента с id-токеном из cookie (auth.Service).
type SessionReconciler interface {
	Reconcile(ctx context.Context, clientID, token string) uint64
}

// ClientProvider — реестр клиентов (service.ClientRegistry).
type ClientProvider interface {
	Get(id string) *service.Client
}

// ClientContext — middleware, привязывающее запрос к клиенту.
// Читает cookie (при отсутствии или повреждении создаёт нового клиента),
// сверяет сессию с id-токеном и ждёт разрешения роли, чтобы обработчик
// никогда не видел наполовину разрешённое состояние.
type ClientContext struct {
	cookies  *session.Manager
	sessions SessionReconciler
	clients  ClientProvider
	logger   *slog.Logger
}

// NewClientContext создаёт middleware клиента.
func NewClientContext(cookies *session.Manager, sessions SessionReconciler, clients ClientProvider, logger *slog.Logger) *ClientContext {
	return &ClientContext{
		cookies:  cookies,
		sessions: sessions,
		clients:  clients,
		logger:   logger.With(slog.String("component", "ui_client_middleware")),
	}
}

// Middleware возвращает HTTP middleware.
func (cc *ClientContext) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, err := cc.cookies.Load(r)
			if err != nil {
				cc.logger.Debug("Ошибка чтения cookie клиента",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				data = nil
			}
			dirty := false
			if data == nil {
				data = session.New()
				dirty = true
			}

			client := cc.clients.Get(data.ClientID)
			if data.Theme != "" {
				client.SetTheme(service.ParseTheme(data.Theme))
			}

			seq := cc.sessions.Reconcile(r.Context(), data.ClientID, data.Token)

			ctx, cancel := context.WithTimeout(r.Context(), awaitTimeout)
			state, err := client.AwaitSession(ctx, seq)
			cancel()
			if err != nil {
				cc.logger.Warn("Сессия клиента не разрешена",
					slog.String("client", data.ClientID),
					slog.String("error", err.Error()),
				)
			}

			// Отклонённый токен удаляется из cookie.
			if data.Token != "" && !state.HasSession() {
				data.Token = ""
				dirty = true
			}
			if dirty {
				if err := cc.cookies.Save(w, data); err != nil {
					cc.logger.Error("Ошибка записи cookie клиента", slog.String("error", err.Error()))
				}
			}

			ctx = context.WithValue(r.Context(), contextKeyClient, client)
			ctx = context.WithValue(ctx, contextKeyState, state)
			ctx = context.WithValue(ctx, contextKeyCookie, data)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession пропускает только вошедших пользователей;
// остальные перенаправляются на страницу входа.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !StateFromContext(r.Context()).HasSession() {
			http.Redirect(w, r, view.Unauthenticated.Path(), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin пропускает только администраторов.
// Остальные получают 403 (SSE, формы) или перенаправление на свой экран (страницы).
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := StateFromContext(r.Context())
		routed := view.Route(st.HasSession(), st.IsAdmin, view.PageAdmin)
		if routed == view.Admin {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodGet && r.Header.Get("Accept") != "text/event-stream" {
			http.Redirect(w, r, routed.Path(), http.StatusFound)
			return
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}

// ClientFromContext извлекает клиента из контекста запроса.
// Возвращает nil, если запрос не прошёл через ClientContext.
func ClientFromContext(ctx context.Context) *service.Client {
	client, _ := ctx.Value(contextKeyClient).(*service.Client)
	return client
}

// StateFromContext извлекает разрешённое состояние сессии.
func StateFromContext(ctx context.Context) service.SessionState {
	st, _ := ctx.Value(contextKeyState).(service.SessionState)
	return st
}

// CookieFromContext извлекает данные cookie клиента.
func CookieFromContext(ctx context.Context) *session.Data {
	data, _ := ctx.Value(contextKeyCookie).(*session.Data)
	return data
}

// WithClient помещает клиента и состояние в контекст (для тестов обработчиков).
func WithClient(ctx context.Context, client *service.Client, state service.SessionState, data *session.Data) context.Context {
	ctx = context.WithValue(ctx, contextKeyClient, client)
	ctx = context.WithValue(ctx, contextKeyState, state)
	return context.WithValue(ctx, contextKeyCookie, data)
}
