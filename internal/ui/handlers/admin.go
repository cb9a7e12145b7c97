// admin.go — панель администратора.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/bigkaa/smarttalk/internal/domain/view"
	uimiddleware "github.com/bigkaa/smarttalk/internal/ui/middleware"
	"github.com/bigkaa/smarttalk/internal/ui/pages"
)

// HandleAdmin обрабатывает GET /admin.
// Параметр identity выбирает пользователя для просмотра переписки;
// без параметра сохраняется текущий выбор клиента.
func (h *Handler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	client := uimiddleware.ClientFromContext(r.Context())
	if client == nil {
		http.Redirect(w, r, view.Unauthenticated.Path(), http.StatusFound)
		return
	}
	admin := client.Admin()

	if _, err := admin.ListIdentities(r.Context()); err != nil {
		// Панель показывается с последним известным списком.
		h.logger.Error("Ошибка получения списка пользователей",
			slog.String("error", err.Error()),
		)
	}
	if q := r.URL.Query(); q.Has("identity") {
		admin.SelectIdentity(q.Get("identity"))
	}

	h.render(w, r, http.StatusOK, pages.PageAdmin, pages.Admin(pages.AdminData{
		Layout: h.layout(r, pages.PageAdmin),
		View:   admin.Snapshot(),
	}))
}
