// Пакет view — выбор экрана по состоянию сессии.
package view

// Page — страница, запрошенная пользователем (навигация).
type Page string

const (
	PageChat  Page = "chat"
	PageAdmin Page = "admin"
)

// View — экран, который будет показан.
type View string

const (
	Unauthenticated View = "unauthenticated"
	Chat            View = "chat"
	Admin           View = "admin"
)

// Route выбирает экран. Без сессии всегда Unauthenticated;
// Admin только при запросе admin и наличии роли; иначе Chat.
func Route(hasSession, isAdmin bool, requested Page) View {
	if !hasSession {
		return Unauthenticated
	}
	if requested == PageAdmin && isAdmin {
		return Admin
	}
	return Chat
}

// ParsePage преобразует строку навигации в Page.
// Неизвестные значения трактуются как chat.
func ParsePage(s string) Page {
	if Page(s) == PageAdmin {
		return PageAdmin
	}
	return PageChat
}

// Path возвращает путь HTTP для экрана.
func (v View) Path() string {
	switch v {
	case Admin:
		return "/admin"
	case Chat:
		return "/chat"
	default:
		return "/login"
	}
}
