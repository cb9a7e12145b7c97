// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/smarttalk/internal/domain/model"
)

var (
	// ErrEmptyMessage — текст пуст после удаления пробелов; ничего не записано.
	ErrEmptyMessage = errors.New("пустое сообщение")
	// ErrNoIdentity — нет активной сессии; ничего не записано.
	ErrNoIdentity = errors.New("нет активной сессии")
	// ErrMessageTooLong — текст превышает допустимую длину.
	ErrMessageTooLong = errors.New("сообщение слишком длинное")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
)

// StoreWriteError — сбой записи сообщения в хранилище.
type StoreWriteError struct {
	Sender model.Sender
	Err    error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("ошибка записи сообщения (%s): %v", e.Sender, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// AuthorizationLookupError — сбой проверки записи авторизации.
// Только логируется: пользователь считается не-администратором.
type AuthorizationLookupError struct {
	Identity string
	Err      error
}

func (e *AuthorizationLookupError) Error() string {
	return fmt.Sprintf("ошибка проверки авторизации %s: %v", e.Identity, e.Err)
}

func (e *AuthorizationLookupError) Unwrap() error {
	return e.Err
}
