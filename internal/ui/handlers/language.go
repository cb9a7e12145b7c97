// language.go — переключение языка и темы UI.
package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/bigkaa/smarttalk/internal/service"
	"github.com/bigkaa/smarttalk/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/smarttalk/internal/ui/middleware"
)

// HandleSetLanguage обрабатывает POST /set-language.
// Устанавливает cookie "lang" и перенаправляет обратно.
// Параметр lang: "en" или "ru" (из query или form).
func HandleSetLanguage(w http.ResponseWriter, r *http.Request) {
	lang := r.FormValue("lang")
	if !i18n.IsSupported(lang) {
		lang = i18n.DefaultLang
	}

	// Устанавливаем cookie "lang" на 1 год
	http.SetCookie(w, &http.Cookie{
		Name:     i18n.LangCookieName,
		Value:    lang,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: false, // JS может читать для UI-логики
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(365 * 24 * time.Hour),
	})

	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

// HandleSetTheme обрабатывает POST /set-theme.
// Тема хранится в состоянии клиента и в его cookie.
func (h *Handler) HandleSetTheme(w http.ResponseWriter, r *http.Request) {
	theme := service.ParseTheme(r.FormValue("theme"))
	if client := uimiddleware.ClientFromContext(r.Context()); client != nil {
		client.SetTheme(theme)
	}
	if data := uimiddleware.CookieFromContext(r.Context()); data != nil {
		data.Theme = string(theme)
		h.saveCookie(w, data)
	}
	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

// backTo возвращает путь страницы из Referer. Внешние адреса
// не используются: перенаправление только в пределах приложения.
func backTo(r *http.Request) string {
	if ref, err := url.Parse(r.Header.Get("Referer")); err == nil && ref.Path != "" &&
		(ref.Host == "" || ref.Host == r.Host) {
		if ref.RawQuery != "" {
			return ref.Path + "?" + ref.RawQuery
		}
		return ref.Path
	}
	return "/"
}
