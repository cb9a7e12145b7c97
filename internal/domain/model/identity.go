// Пакет model — доменные модели SmartTalk.
package model

import "time"

// Identity — учётная запись, выданная сервисом аутентификации.
// Неизменяема после создания.
type Identity struct {
	// ID — UUID учётной записи (sub в id-токене)
	ID string
	// Email — адрес входа (уникален, хранится в нижнем регистре)
	Email string
	// CreatedAt — время регистрации
	CreatedAt time.Time
}

// ShortID возвращает первые 10 символов ID для отображения в списках.
func (i Identity) ShortID() string {
	if len(i.ID) <= 10 {
		return i.ID
	}
	return i.ID[:10]
}

// Authorization — запись авторизации. Её наличие даёт роль admin.
// Хранится в таблице admins, создаётся вне клиента (CLI grant-admin).
type Authorization struct {
	IdentityID string
	GrantedAt  time.Time
}
