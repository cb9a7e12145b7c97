// messages.go — текущий пользователь и его переписка.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/smarttalk/internal/api/dto"
	apierrors "github.com/bigkaa/smarttalk/internal/api/errors"
	"github.com/bigkaa/smarttalk/internal/api/middleware"
	"github.com/bigkaa/smarttalk/internal/service"
)

// Ограничение тела POST /api/v1/messages.
const maxSendBody = 64 << 10

// sendRequest — тело POST /api/v1/messages.
type sendRequest struct {
	Text string `json:"text"`
}

// sendResponse — записанные сообщения пользователя и ассистента.
type sendResponse struct {
	Message dto.Message `json:"message"`
	Reply   dto.Message `json:"reply"`
}

type messageList struct {
	Messages []dto.Message `json:"messages"`
}

type identityList struct {
	Identities []dto.Identity `json:"identities"`
	Total      int            `json:"total"`
}

// GetMe обрабатывает GET /api/v1/me.
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, dto.Me{
		Identity:  p.IdentityID(),
		Email:     openapi_types.Email(p.Session.Email),
		Role:      p.Role,
		IsAdmin:   p.IsAdmin(),
		ExpiresAt: p.Session.ExpiresAt,
	})
}

// ListMessages обрабатывает GET /api/v1/messages — переписка текущего пользователя.
func (h *APIHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	h.writeTranscript(w, r, p.IdentityID())
}

// SendMessage обрабатывает POST /api/v1/messages.
// Синхронно записывает сообщение, ждёт ответ ассистента и возвращает оба.
func (h *APIHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())

	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSendBody)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	userMsg, reply, err := h.sender.Send(r.Context(), p.IdentityID(), req.Text)
	if err != nil {
		h.logger.Info("Сообщение не отправлено",
			slog.String("identity", p.IdentityID()),
			slog.String("error", err.Error()),
		)
		apierrors.SendError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sendResponse{
		Message: dto.FromMessage(userMsg),
		Reply:   dto.FromMessage(reply),
	})
}

// ListIdentities обрабатывает GET /api/v1/admin/identities (admin).
func (h *APIHandler) ListIdentities(w http.ResponseWriter, r *http.Request) {
	identities, err := h.identities.List(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения списка учётных записей", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}
	items := make([]dto.Identity, 0, len(identities))
	for _, ident := range identities {
		items = append(items, dto.FromIdentity(*ident))
	}
	writeJSON(w, http.StatusOK, identityList{Identities: items, Total: len(items)})
}

// HandleIdentityMessages разбирает path-параметр {id} и передаёт его
// в ListIdentityMessages. Идентификатор учётной записи — UUID.
func (h *APIHandler) HandleIdentityMessages(w http.ResponseWriter, r *http.Request) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр id: %s", err))
		return
	}
	h.ListIdentityMessages(w, r, id)
}

// ListIdentityMessages обрабатывает GET /api/v1/admin/identities/{id}/messages (admin).
func (h *APIHandler) ListIdentityMessages(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) {
	h.writeTranscript(w, r, id.String())
}

// writeTranscript отдаёт переписку в каноническом порядке.
func (h *APIHandler) writeTranscript(w http.ResponseWriter, r *http.Request, identity string) {
	messages, err := h.messages.ListByIdentity(r.Context(), identity)
	if err != nil {
		h.logger.Error("Ошибка получения переписки",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}
	writeJSON(w, http.StatusOK, messageList{Messages: dto.FromMessages(service.Merge(nil, messages))})
}
