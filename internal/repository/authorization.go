package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/smarttalk/internal/domain/model"
)

// AuthorizationRepository — доступ к таблице admins.
// Наличие записи для identity даёт роль admin.
type AuthorizationRepository interface {
	// Exists проверяет наличие записи авторизации.
	Exists(ctx context.Context, identityID string) (bool, error)
	// Grant создаёт запись; повторный вызов не меняет её.
	Grant(ctx context.Context, identityID string) error
	// Revoke удаляет запись. ErrNotFound, если её не было.
	Revoke(ctx context.Context, identityID string) error
	// List возвращает все записи авторизации.
	List(ctx context.Context) ([]*model.Authorization, error)
}

type authorizationRepo struct {
	db DBTX
}

// NewAuthorizationRepository создаёт репозиторий записей авторизации.
func NewAuthorizationRepository(db DBTX) AuthorizationRepository {
	return &authorizationRepo{db: db}
}

func (r *authorizationRepo) Exists(ctx context.Context, identityID string) (bool, error) {
	if !validID(identityID) {
		return false, nil
	}

	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM admins WHERE identity_id = $1)`, identityID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки записи авторизации: %w", err)
	}
	return exists, nil
}

func (r *authorizationRepo) Grant(ctx context.Context, identityID string) error {
	if !validID(identityID) {
		return ErrNotFound
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO admins (identity_id) VALUES ($1) ON CONFLICT (identity_id) DO NOTHING`,
		identityID)
	if err != nil {
		return fmt.Errorf("ошибка создания записи авторизации: %w", err)
	}
	return nil
}

func (r *authorizationRepo) Revoke(ctx context.Context, identityID string) error {
	if !validID(identityID) {
		return ErrNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM admins WHERE identity_id = $1`, identityID)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи авторизации: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *authorizationRepo) List(ctx context.Context) ([]*model.Authorization, error) {
	rows, err := r.db.Query(ctx,
		`SELECT identity_id::text, created_at FROM admins ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записей авторизации: %w", err)
	}
	defer rows.Close()

	var result []*model.Authorization
	for rows.Next() {
		a := &model.Authorization{}
		if err := rows.Scan(&a.IdentityID, &a.GrantedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи авторизации: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
