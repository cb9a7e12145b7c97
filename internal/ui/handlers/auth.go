// auth.go — вход, регистрация, выход и выбор экрана.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bigkaa/smarttalk/internal/auth"
	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/domain/view"
	uimiddleware "github.com/bigkaa/smarttalk/internal/ui/middleware"
	"github.com/bigkaa/smarttalk/internal/ui/pages"
)

// HandleRoot обрабатывает GET / — перенаправляет на экран, выбранный маршрутизатором.
// Запрошенная страница берётся из параметра page (chat по умолчанию).
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	st := uimiddleware.StateFromContext(r.Context())
	routed := view.Route(st.HasSession(), st.IsAdmin, view.ParsePage(r.URL.Query().Get("page")))
	http.Redirect(w, r, routed.Path(), http.StatusFound)
}

// HandleLoginPage обрабатывает GET /login. Вошедший пользователь
// перенаправляется в чат; ?mode=signup открывает форму регистрации.
func (h *Handler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if uimiddleware.StateFromContext(r.Context()).HasSession() {
		http.Redirect(w, r, view.Chat.Path(), http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, pages.PageLogin, pages.Login(pages.LoginData{
		Layout: h.layout(r, pages.PageLogin),
		SignUp: r.URL.Query().Get("mode") == "signup",
	}))
}

// HandleLogin обрабатывает POST /login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, false)
}

// HandleSignUp обрабатывает POST /signup.
func (h *Handler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, true)
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, signUp bool) {
	data := uimiddleware.CookieFromContext(r.Context())
	if data == nil {
		http.Error(w, "Нет состояния клиента", http.StatusInternalServerError)
		return
	}

	email := r.FormValue("email")
	password := r.FormValue("password")

	var (
		sess *model.Session
		err  error
	)
	if signUp {
		sess, err = h.auth.SignUp(r.Context(), data.ClientID, email, password)
	} else {
		sess, err = h.auth.SignIn(r.Context(), data.ClientID, email, password)
	}
	if err != nil {
		// Сообщение сервиса аутентификации показывается дословно.
		message := "Authentication failed. Please try again."
		var authErr *auth.Error
		if errors.As(err, &authErr) {
			message = authErr.Message
		}
		h.logger.Info("Вход отклонён",
			slog.String("client", data.ClientID),
			slog.String("error", err.Error()),
		)
		h.render(w, r, http.StatusUnauthorized, pages.PageLogin, pages.Login(pages.LoginData{
			Layout: h.layout(r, pages.PageLogin),
			SignUp: signUp,
			Email:  email,
			Error:  message,
		}))
		return
	}

	data.Token = sess.Token
	h.saveCookie(w, data)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout обрабатывает POST /logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if data := uimiddleware.CookieFromContext(r.Context()); data != nil {
		h.auth.SignOut(data.ClientID)
		data.Token = ""
		h.saveCookie(w, data)
	}
	http.Redirect(w, r, view.Unauthenticated.Path(), http.StatusSeeOther)
}
