// auth.go — аутентификация и авторизация JSON API SmartTalk.
// Принимает id-токен из заголовка Authorization: Bearer или из cookie
// браузерного клиента, проверяет подпись через JWKS сервиса и вычисляет
// роль по записи авторизации в БД.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/bigkaa/smarttalk/internal/api/errors"
	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/domain/rbac"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyPrincipal — аутентифицированный субъект в контексте запроса.
	ContextKeyPrincipal contextKey = "api_principal"
)

// Principal — субъект запроса API.
type Principal struct {
	// Session — проверенный id-токен
	Session *model.Session
	// Role — роль (user, admin)
	Role string
}

// IdentityID возвращает ID учётной записи субъекта.
func (p *Principal) IdentityID() string {
	return p.Session.IdentityID
}

// IsAdmin сообщает, есть ли у субъекта роль admin.
func (p *Principal) IsAdmin() bool {
	return p.Role == rbac.RoleAdmin
}

// TokenVerifier — проверка id-токена (auth.Service).
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*model.Session, error)
}

// AuthorizationLookup — проверка записи авторизации (repository.AuthorizationRepository).
type AuthorizationLookup interface {
	Exists(ctx context.Context, identityID string) (bool, error)
}

// TokenSource — дополнительный источник токена (cookie браузера).
type TokenSource func(r *http.Request) string

// BearerAuth — middleware аутентификации API.
type BearerAuth struct {
	verifier      TokenVerifier
	authz         AuthorizationLookup
	fallback      TokenSource
	lookupTimeout time.Duration
	logger        *slog.Logger
}

// NewBearerAuth создаёт middleware аутентификации.
// fallback может быть nil: тогда принимается только заголовок Authorization.
func NewBearerAuth(verifier TokenVerifier, authz AuthorizationLookup, fallback TokenSource, lookupTimeout time.Duration, logger *slog.Logger) *BearerAuth {
	return &BearerAuth{
		verifier:      verifier,
		authz:         authz,
		fallback:      fallback,
		lookupTimeout: lookupTimeout,
		logger:        logger.With(slog.String("component", "api_auth")),
	}
}

// Middleware возвращает HTTP middleware для аутентификации.
func (b *BearerAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, msg := b.extractToken(r)
			if tokenString == "" {
				apierrors.Unauthorized(w, msg)
				return
			}

			sess, err := b.verifier.Verify(r.Context(), tokenString)
			if err != nil {
				b.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), b.lookupTimeout)
			isAdmin, err := b.authz.Exists(ctx, sess.IdentityID)
			cancel()
			if err != nil {
				// Ошибка проверки не даёт прав администратора.
				b.logger.Warn("Ошибка проверки записи авторизации",
					slog.String("identity", sess.IdentityID),
					slog.String("error", err.Error()),
				)
				isAdmin = false
			}

			principal := &Principal{Session: sess, Role: rbac.RoleFor(isAdmin)}
			ctx = context.WithValue(r.Context(), ContextKeyPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken возвращает токен запроса или сообщение об ошибке.
func (b *BearerAuth) extractToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if b.fallback != nil {
			if tok := b.fallback(r); tok != "" {
				return tok, ""
			}
		}
		return "", "Отсутствует заголовок Authorization"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "Неверный формат Authorization: ожидается Bearer <token>"
	}
	if strings.TrimSpace(parts[1]) == "" {
		return "", "Пустой Bearer token"
	}
	return strings.TrimSpace(parts[1]), ""
}

// RequireRole возвращает middleware, требующий роль не ниже role.
// Должен использоваться ПОСЛЕ BearerAuth.Middleware().
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				apierrors.Unauthorized(w, "Отсутствует субъект в контексте")
				return
			}
			if !rbac.Allows(p.Role, role) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext извлекает субъекта из контекста запроса.
// Возвращает nil, если запрос не прошёл через BearerAuth.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ContextKeyPrincipal).(*Principal)
	return p
}

// WithPrincipal помещает субъекта в контекст (для тестов обработчиков).
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}
