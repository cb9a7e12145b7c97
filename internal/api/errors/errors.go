// Пакет errors — конструкторы стандартных ошибок API SmartTalk.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bigkaa/smarttalk/internal/service"
)

// Машиночитаемые коды ошибок.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodeMessageTooLong  = "MESSAGE_TOO_LONG"
	CodeStoreWrite      = "STORE_WRITE_FAILED"
	CodeUnavailable     = "SERVICE_UNAVAILABLE"
	CodeInternalError   = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в едином формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 конфликт (дублирующийся ресурс).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// MessageTooLong — 413 сообщение длиннее допустимого.
func MessageTooLong(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeMessageTooLong, message)
}

// StoreWriteFailed — 502 хранилище сообщений отклонило запись.
func StoreWriteFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeStoreWrite, message)
}

// Unavailable — 503 зависимость недоступна.
func Unavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// SendError отображает ошибку отправки сообщения в HTTP-ответ.
func SendError(w http.ResponseWriter, err error) {
	var storeErr *service.StoreWriteError
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		ValidationError(w, "Сообщение не должно быть пустым")
	case errors.Is(err, service.ErrMessageTooLong):
		MessageTooLong(w, err.Error())
	case errors.Is(err, service.ErrNoIdentity):
		Unauthorized(w, "Требуется вход")
	case errors.As(err, &storeErr):
		StoreWriteFailed(w, "Не удалось сохранить сообщение")
	default:
		InternalError(w, "Внутренняя ошибка сервера")
	}
}
