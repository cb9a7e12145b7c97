// chat.go — страница чата и отправка сообщений.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bigkaa/smarttalk/internal/api/dto"
	apierrors "github.com/bigkaa/smarttalk/internal/api/errors"
	"github.com/bigkaa/smarttalk/internal/domain/view"
	"github.com/bigkaa/smarttalk/internal/service"
	uimiddleware "github.com/bigkaa/smarttalk/internal/ui/middleware"
	"github.com/bigkaa/smarttalk/internal/ui/pages"
)

// HandleChat обрабатывает GET /chat — текущий снимок разговора.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	client := uimiddleware.ClientFromContext(r.Context())
	if client == nil {
		http.Redirect(w, r, view.Unauthenticated.Path(), http.StatusFound)
		return
	}

	conv := client.Conversation().Snapshot()
	h.render(w, r, http.StatusOK, pages.PageChat, pages.Chat(pages.ChatData{
		Layout:    h.layout(r, pages.PageChat),
		Messages:  conv.Messages,
		Composing: client.Dispatcher().IsComposing(),
	}))
}

// HandleSendMessage обрабатывает POST /chat/messages.
// Сообщение пользователя записывается синхронно, ответ чат-бота
// генерируется в фоне и приходит через SSE.
// Accept: application/json — ответ 202 с записанным сообщением,
// иначе 303 на /chat.
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	client := uimiddleware.ClientFromContext(r.Context())
	if client == nil {
		apierrors.Unauthorized(w, "Требуется вход")
		return
	}

	text := r.FormValue("text")
	msg, err := client.Submit(r.Context(), text)
	if err != nil {
		h.logSendError(r, err)
		if wantsJSON(r) {
			apierrors.SendError(w, err)
			return
		}
		if errors.Is(err, service.ErrEmptyMessage) {
			http.Redirect(w, r, view.Chat.Path(), http.StatusSeeOther)
			return
		}
		conv := client.Conversation().Snapshot()
		h.render(w, r, http.StatusBadRequest, pages.PageChat, pages.Chat(pages.ChatData{
			Layout:    h.layout(r, pages.PageChat),
			Messages:  conv.Messages,
			Composing: client.Dispatcher().IsComposing(),
			Error:     err.Error(),
		}))
		return
	}

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(dto.FromMessage(msg))
		return
	}
	http.Redirect(w, r, view.Chat.Path(), http.StatusSeeOther)
}

func (h *Handler) logSendError(r *http.Request, err error) {
	level := slog.LevelInfo
	var storeErr *service.StoreWriteError
	if errors.As(err, &storeErr) {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "Сообщение не отправлено",
		slog.String("error", err.Error()),
	)
}
