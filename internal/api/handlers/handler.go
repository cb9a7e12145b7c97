// handler.go — обработчики JSON API SmartTalk.
// Делегируют запросы в сервисный слой и репозитории.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bigkaa/smarttalk/internal/domain/model"
)

// MessageLister — разовая выборка переписки (repository.MessageRepository).
type MessageLister interface {
	ListByIdentity(ctx context.Context, identityID string) ([]model.Message, error)
}

// IdentityLister — разовый список учётных записей (repository.IdentityRepository).
type IdentityLister interface {
	List(ctx context.Context) ([]*model.Identity, error)
}

// MessageSender — синхронная отправка сообщения с ответом ассистента (service.Dispatcher).
type MessageSender interface {
	Send(ctx context.Context, identity, text string) (model.Message, model.Message, error)
}

// KeySetProvider — публичные ключи подписи id-токенов (auth.Service).
type KeySetProvider interface {
	JWKS() json.RawMessage
}

// APIHandler — основной обработчик API.
type APIHandler struct {
	health     *HealthHandler
	messages   MessageLister
	identities IdentityLister
	sender     MessageSender
	keys       KeySetProvider
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	messages MessageLister,
	identities IdentityLister,
	sender MessageSender,
	keys KeySetProvider,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:     health,
		messages:   messages,
		identities: identities,
		sender:     sender,
		keys:       keys,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// GetJWKS обрабатывает GET /auth/jwks.json — публичные ключи id-токенов.
func (h *APIHandler) GetJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.keys.JWKS())
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
