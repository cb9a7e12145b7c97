package model

import (
	"fmt"
	"time"
)

// Sender — автор сообщения.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"

	// senderLegacyAI — устаревшее обозначение ассистента, встречается в старых записях.
	senderLegacyAI = "ai"
)

// ParseSender преобразует значение из хранилища в Sender.
// "ai" принимается как синоним assistant.
func ParseSender(s string) (Sender, error) {
	switch s {
	case string(SenderUser):
		return SenderUser, nil
	case string(SenderAssistant), senderLegacyAI:
		return SenderAssistant, nil
	default:
		return "", fmt.Errorf("неизвестный отправитель %q", s)
	}
}

// Message — сообщение переписки. Принадлежит ровно одной Identity,
// никогда не изменяется и не удаляется клиентом.
type Message struct {
	// ID — идентификатор, назначенный хранилищем
	ID string
	// IdentityID — владелец переписки
	IdentityID string
	// Text — текст сообщения
	Text string
	// Sender — user или assistant
	Sender Sender
	// CreatedAt — время создания; nil, если отсутствует в хранилище
	CreatedAt *time.Time
}

// NewMessage создаёт сообщение для записи с текущим временем.
func NewMessage(identityID, text string, sender Sender, now time.Time) Message {
	ts := now.UTC()
	return Message{
		IdentityID: identityID,
		Text:       text,
		Sender:     sender,
		CreatedAt:  &ts,
	}
}
