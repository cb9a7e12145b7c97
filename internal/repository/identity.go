package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/smarttalk/internal/domain/model"
)

// Credentials — учётная запись вместе с хэшем пароля.
// Используется только сервисом аутентификации.
type Credentials struct {
	Identity     model.Identity
	PasswordHash string
}

// IdentityRepository — доступ к таблице users.
type IdentityRepository interface {
	// Create регистрирует учётную запись. ErrConflict, если email занят.
	Create(ctx context.Context, email, passwordHash string) (*model.Identity, error)
	// GetCredentials возвращает учётную запись и хэш пароля по email.
	GetCredentials(ctx context.Context, email string) (*Credentials, error)
	// GetByID возвращает учётную запись по ID.
	GetByID(ctx context.Context, id string) (*model.Identity, error)
	// List возвращает все учётные записи (разовый снимок, по времени регистрации).
	List(ctx context.Context) ([]*model.Identity, error)
}

type identityRepo struct {
	db DBTX
}

// NewIdentityRepository создаёт репозиторий учётных записей.
func NewIdentityRepository(db DBTX) IdentityRepository {
	return &identityRepo{db: db}
}

// NormalizeEmail приводит email к каноничному виду для хранения и поиска.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *identityRepo) Create(ctx context.Context, email, passwordHash string) (*model.Identity, error) {
	query := `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id::text, email, created_at`

	id := &model.Identity{}
	err := r.db.QueryRow(ctx, query, NormalizeEmail(email), passwordHash).
		Scan(&id.ID, &id.Email, &id.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("ошибка создания учётной записи: %w", err)
	}
	return id, nil
}

func (r *identityRepo) GetCredentials(ctx context.Context, email string) (*Credentials, error) {
	query := `SELECT id::text, email, created_at, password_hash FROM users WHERE email = $1`

	c := &Credentials{}
	err := r.db.QueryRow(ctx, query, NormalizeEmail(email)).Scan(
		&c.Identity.ID, &c.Identity.Email, &c.Identity.CreatedAt, &c.PasswordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения учётной записи: %w", err)
	}
	return c, nil
}

func (r *identityRepo) GetByID(ctx context.Context, id string) (*model.Identity, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	ident := &model.Identity{}
	err := r.db.QueryRow(ctx,
		`SELECT id::text, email, created_at FROM users WHERE id = $1`, id,
	).Scan(&ident.ID, &ident.Email, &ident.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения учётной записи: %w", err)
	}
	return ident, nil
}

func (r *identityRepo) List(ctx context.Context) ([]*model.Identity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id::text, email, created_at FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка учётных записей: %w", err)
	}
	defer rows.Close()

	var result []*model.Identity
	for rows.Next() {
		ident := &model.Identity{}
		if err := rows.Scan(&ident.ID, &ident.Email, &ident.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования учётной записи: %w", err)
		}
		result = append(result, ident)
	}
	return result, rows.Err()
}
