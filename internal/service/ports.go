package service

import (
	"context"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/feed"
)

// SessionSource — поток смены сессий клиента (auth.Service).
type SessionSource interface {
	Subscribe(clientID string) *feed.Stream[model.SessionChange]
}

// AuthorizationLookup — проверка записи авторизации (repository.AuthorizationRepository).
type AuthorizationLookup interface {
	Exists(ctx context.Context, identityID string) (bool, error)
}

// MessageSubscriber — живой поток переписки (repository.MessageFeed).
type MessageSubscriber interface {
	Subscribe(identityID string) *feed.Stream[[]model.Message]
}

// MessageAppender — запись сообщения (repository.MessageRepository).
type MessageAppender interface {
	Append(ctx context.Context, m *model.Message) error
}

// Generator — генерация ответа ассистента (gemini.Client).
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// IdentityLister — разовый список учётных записей (repository.IdentityRepository).
type IdentityLister interface {
	List(ctx context.Context) ([]*model.Identity, error)
}
