package auth

import "errors"

// Коды отказов аутентификации.
const (
	CodeInvalidEmail       = "auth/invalid-email"
	CodeWeakPassword       = "auth/weak-password"
	CodeEmailInUse         = "auth/email-already-in-use"
	CodeInvalidCredential  = "auth/invalid-credential"
	CodeServiceUnavailable = "auth/service-unavailable"
)

// Error — отказ в аутентификации. Message показывается пользователю как есть.
type Error struct {
	Code    string
	Message string
	// Err — исходная причина (не показывается пользователю)
	Err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrInvalidToken — токен не прошёл проверку подписи, issuer или срока.
var ErrInvalidToken = errors.New("невалидный или просроченный токен")

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}
