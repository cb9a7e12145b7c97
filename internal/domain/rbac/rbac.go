// Пакет rbac — роли SmartTalk и проверка доступа.
// Роль admin даёт запись авторизации (таблица admins), остальным — user.
// Роль admin включает все права роли user.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

// RoleFor возвращает роль по наличию записи авторизации.
func RoleFor(isAdmin bool) string {
	if isAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Allows проверяет, достаточно ли роли role для действия, требующего required.
// Неизвестные роли ничего не разрешают.
func Allows(role, required string) bool {
	have, ok := roleWeight[role]
	if !ok {
		return false
	}
	need, ok := roleWeight[required]
	if !ok {
		return false
	}
	return have >= need
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}
