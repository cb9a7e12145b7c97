// Пакет pages — HTML-страницы UI SmartTalk (templ-компоненты).
// Исходники страниц — *.templ, код *_templ.go генерируется `templ generate`.
package pages

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/a-h/templ"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/service"
	"github.com/bigkaa/smarttalk/internal/ui/i18n"
)

// Имена экранов (значение body data-view).
const (
	PageLogin = "login"
	PageChat  = "chat"
	PageAdmin = "admin"
)

// LayoutData — общие данные всех страниц.
type LayoutData struct {
	Lang        string
	Theme       string
	ChatbotName string
	// Active — текущий экран (login, chat, admin)
	Active string
	// Email — адрес вошедшего пользователя
	Email   string
	IsAdmin bool
}

// LoginData — страница входа и регистрации.
type LoginData struct {
	Layout LayoutData
	SignUp bool
	Email  string
	// Error — сообщение сервиса аутентификации, показывается дословно
	Error string
}

// ChatData — страница чата.
type ChatData struct {
	Layout    LayoutData
	Messages  []model.Message
	Composing bool
	Error     string
}

// AdminData — панель администратора.
type AdminData struct {
	Layout LayoutData
	View   service.AdminView
}

// Renderer — рендеринг страниц с каталогами переводов.
type Renderer struct {
	bundle *i18n.Bundle
}

// NewRenderer создаёт Renderer.
func NewRenderer(bundle *i18n.Bundle) *Renderer {
	return &Renderer{bundle: bundle}
}

// Render выполняет компонент. Ответ пишется только при успешном
// рендеринге, чтобы ошибка не оставляла половину страницы.
func (r *Renderer) Render(ctx context.Context, w http.ResponseWriter, status int, c templ.Component) error {
	var buf bytes.Buffer
	if err := c.Render(i18n.WithBundle(ctx, r.bundle), &buf); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func themeClass(theme string) string {
	if theme == string(service.ThemeDark) {
		return "dark"
	}
	return ""
}

func nextTheme(theme string) string {
	if theme == string(service.ThemeDark) {
		return string(service.ThemeLight)
	}
	return string(service.ThemeDark)
}

func themeIcon(theme string) string {
	if theme == string(service.ThemeDark) {
		return "☀"
	}
	return "☾"
}

func nextLang(lang string) string {
	if lang == "ru" {
		return "en"
	}
	return "ru"
}

func langLabel(lang string) string {
	if lang == "ru" {
		return "EN"
	}
	return "RU"
}

func navClass(base string, active bool) string {
	if active {
		return base + " active"
	}
	return base
}

func rowClass(sender model.Sender) string {
	if sender == model.SenderUser {
		return "row row-user"
	}
	return "row row-assistant"
}

func logClass(sender model.Sender) string {
	if sender == model.SenderUser {
		return "log log-user"
	}
	return "log log-assistant"
}

func senderLabel(ctx context.Context, sender model.Sender) string {
	if sender == model.SenderUser {
		return i18n.T(ctx, "sender.user")
	}
	return i18n.T(ctx, "sender.assistant")
}

func identityClass(id, selected string) string {
	if id == selected {
		return "selected"
	}
	return ""
}

func identityURL(id string) templ.SafeURL {
	return templ.SafeURL("/admin?identity=" + url.QueryEscape(id))
}

func shortID(id string) string {
	return model.Identity{ID: id}.ShortID()
}

func clock(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.Local().Format("15:04")
}

func authAction(signUp bool) templ.SafeURL {
	if signUp {
		return "/signup"
	}
	return "/login"
}

func authSubmit(ctx context.Context, signUp bool) string {
	if signUp {
		return i18n.T(ctx, "auth.signup")
	}
	return i18n.T(ctx, "auth.login")
}

func chatLogsTitle(ctx context.Context, selected string) string {
	if selected == "" {
		return i18n.T(ctx, "admin.chat_logs_none")
	}
	return i18n.Tf(ctx, "admin.chat_logs", shortID(selected))
}
