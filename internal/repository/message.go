package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bigkaa/smarttalk/internal/domain/model"
)

// MessageRepository — доступ к таблице messages.
type MessageRepository interface {
	// Append сохраняет сообщение и заполняет m.ID.
	Append(ctx context.Context, m *model.Message) error
	// ListByIdentity возвращает всю переписку пользователя.
	// Порядок не гарантируется: упорядочивает потребитель.
	ListByIdentity(ctx context.Context, identityID string) ([]model.Message, error)
}

type messageRepo struct {
	db DBTX
}

// NewMessageRepository создаёт репозиторий сообщений.
func NewMessageRepository(db DBTX) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Append(ctx context.Context, m *model.Message) error {
	if !validID(m.IdentityID) {
		return fmt.Errorf("ошибка записи сообщения: некорректный identity %q", m.IdentityID)
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO messages (user_id, text, sender, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id::text`,
		m.IdentityID, m.Text, string(m.Sender), m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("ошибка записи сообщения: %w", err)
	}
	return nil
}

func (r *messageRepo) ListByIdentity(ctx context.Context, identityID string) ([]model.Message, error) {
	if !validID(identityID) {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id::text, user_id::text, text, sender, created_at
		 FROM messages WHERE user_id = $1`, identityID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения переписки: %w", err)
	}
	defer rows.Close()

	var result []model.Message
	for rows.Next() {
		var (
			m         model.Message
			sender    string
			createdAt *time.Time
		)
		if err := rows.Scan(&m.ID, &m.IdentityID, &m.Text, &sender, &createdAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сообщения: %w", err)
		}
		m.Sender, err = model.ParseSender(sender)
		if err != nil {
			return nil, fmt.Errorf("сообщение %s: %w", m.ID, err)
		}
		m.CreatedAt = createdAt
		result = append(result, m)
	}
	return result, rows.Err()
}
