// Пакет dto — JSON-представления доменных объектов для API и SSE.
package dto

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/service"
)

// Message — сообщение переписки.
type Message struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Sender    string     `json:"sender"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Identity — учётная запись в списке администратора.
type Identity struct {
	ID        string              `json:"id"`
	ShortID   string              `json:"short_id"`
	Email     openapi_types.Email `json:"email"`
	CreatedAt time.Time           `json:"created_at"`
}

// Stats — счётчики панели администратора.
type Stats struct {
	TotalIdentities int `json:"total_identities"`
	MessageCount    int `json:"message_count"`
}

// AdminView — состояние панели администратора.
type AdminView struct {
	Identities []Identity `json:"identities"`
	Selected   string     `json:"selected"`
	Transcript []Message  `json:"transcript"`
	Stats      Stats      `json:"stats"`
}

// Me — текущий пользователь.
type Me struct {
	Identity  string              `json:"identity"`
	Email     openapi_types.Email `json:"email"`
	Role      string              `json:"role"`
	IsAdmin   bool                `json:"is_admin"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// FromMessage преобразует сообщение.
func FromMessage(m model.Message) Message {
	return Message{ID: m.ID, Text: m.Text, Sender: string(m.Sender), CreatedAt: m.CreatedAt}
}

// FromMessages преобразует список сообщений; nil становится пустым списком.
func FromMessages(messages []model.Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, FromMessage(m))
	}
	return out
}

// FromIdentity преобразует учётную запись.
func FromIdentity(i model.Identity) Identity {
	return Identity{ID: i.ID, ShortID: i.ShortID(), Email: openapi_types.Email(i.Email), CreatedAt: i.CreatedAt}
}

// FromIdentities преобразует список учётных записей.
func FromIdentities(identities []model.Identity) []Identity {
	out := make([]Identity, 0, len(identities))
	for _, i := range identities {
		out = append(out, FromIdentity(i))
	}
	return out
}

// FromAdminView преобразует состояние панели администратора.
func FromAdminView(v service.AdminView) AdminView {
	return AdminView{
		Identities: FromIdentities(v.Identities),
		Selected:   v.Selected,
		Transcript: FromMessages(v.Transcript),
		Stats: Stats{
			TotalIdentities: v.Stats.TotalIdentities,
			MessageCount:    v.Stats.MessageCount,
		},
	}
}
