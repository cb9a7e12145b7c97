package model

import "time"

// Session — аутентифицированная сессия, полученная из проверенного id-токена.
type Session struct {
	// IdentityID — sub токена
	IdentityID string
	// Email — claim email
	Email string
	// Token — подписанный id-токен (хранится в cookie браузера)
	Token string
	// IssuedAt — время выпуска токена
	IssuedAt time.Time
	// ExpiresAt — время истечения токена
	ExpiresAt time.Time
}

// Expired сообщает, истекла ли сессия к моменту now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionChange — уведомление о смене сессии клиента.
// Seq монотонно растёт в пределах клиента; Session == nil означает выход.
type SessionChange struct {
	Seq     uint64
	Session *Session
}
