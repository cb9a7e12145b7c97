// Пакет handlers — HTTP-обработчики UI SmartTalk.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/smarttalk/internal/ui/middleware"
	"github.com/bigkaa/smarttalk/internal/ui/pages"
	"github.com/bigkaa/smarttalk/internal/ui/session"
)

// Интервал комментариев keepalive в SSE, если не задан конфигурацией.
const defaultKeepalive = 15 * time.Second

// Authenticator — вход, регистрация и выход клиента (auth.Service).
type Authenticator interface {
	SignIn(ctx context.Context, clientID, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, clientID, email, password string) (*model.Session, error)
	SignOut(clientID string)
}

// Handler — обработчики страниц, форм и SSE.
type Handler struct {
	auth         Authenticator
	cookies      *session.Manager
	renderer     *pages.Renderer
	chatbotName  string
	sseKeepalive time.Duration
	logger       *slog.Logger
}

// New создаёт обработчики UI.
func New(
	auth Authenticator,
	cookies *session.Manager,
	renderer *pages.Renderer,
	chatbotName string,
	sseKeepalive time.Duration,
	logger *slog.Logger,
) *Handler {
	if sseKeepalive <= 0 {
		sseKeepalive = defaultKeepalive
	}
	return &Handler{
		auth:         auth,
		cookies:      cookies,
		renderer:     renderer,
		chatbotName:  chatbotName,
		sseKeepalive: sseKeepalive,
		logger:       logger.With(slog.String("component", "ui")),
	}
}

// layout собирает общие данные страницы.
func (h *Handler) layout(r *http.Request, active string) pages.LayoutData {
	l := pages.LayoutData{
		Lang:        i18n.LangFromContext(r.Context()),
		ChatbotName: h.chatbotName,
		Active:      active,
		Theme:       "light",
	}
	if client := uimiddleware.ClientFromContext(r.Context()); client != nil {
		l.Theme = string(client.Theme())
	}
	st := uimiddleware.StateFromContext(r.Context())
	if st.Session != nil {
		l.Email = st.Session.Email
		l.IsAdmin = st.IsAdmin
	}
	return l
}

// render рендерит страницу; ошибка логируется и превращается в 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, page templ.Component) {
	if err := h.renderer.Render(r.Context(), w, status, page); err != nil {
		h.logger.Error("Ошибка рендеринга страницы",
			slog.String("page", name),
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
		http.Error(w, "Ошибка рендеринга страницы", http.StatusInternalServerError)
	}
}

// saveCookie сохраняет cookie клиента, изменённый обработчиком.
func (h *Handler) saveCookie(w http.ResponseWriter, data *session.Data) {
	if data == nil {
		return
	}
	if err := h.cookies.Save(w, data); err != nil {
		h.logger.Error("Ошибка записи cookie клиента", slog.String("error", err.Error()))
	}
}

// wantsJSON сообщает, ожидает ли клиент JSON вместо перенаправления.
func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json"
}
