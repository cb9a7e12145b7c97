package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/smarttalk/internal/domain/model"
)

// idTokenClaims — claims id-токена SmartTalk.
type idTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// TokenIssuer выпускает RS256 id-токены.
type TokenIssuer struct {
	key    *rsa.PrivateKey
	kid    string
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer создаёт издателя токенов.
func NewTokenIssuer(key *rsa.PrivateKey, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		key:    key,
		kid:    KeyID(&key.PublicKey),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue выпускает токен для учётной записи и возвращает сессию.
func (t *TokenIssuer) Issue(identity model.Identity) (*model.Session, error) {
	now := t.now().Truncate(time.Second)
	exp := now.Add(t.ttl)

	claims := idTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: identity.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = t.kid
	signed, err := token.SignedString(t.key)
	if err != nil {
		return nil, fmt.Errorf("ошибка подписи id-токена: %w", err)
	}

	return &model.Session{
		IdentityID: identity.ID,
		Email:      identity.Email,
		Token:      signed,
		IssuedAt:   now,
		ExpiresAt:  exp,
	}, nil
}

// JWKS возвращает публичный ключ в формате JWKS.
func (t *TokenIssuer) JWKS() json.RawMessage {
	return JWKSJSON(&t.key.PublicKey, t.kid)
}

// TokenVerifier проверяет id-токены по JWKS.
type TokenVerifier struct {
	jwks   keyfunc.Keyfunc
	issuer string
	leeway time.Duration
}

// NewTokenVerifier создаёт проверку по JWKS JSON.
func NewTokenVerifier(jwksJSON json.RawMessage, issuer string) (*TokenVerifier, error) {
	kf, err := keyfunc.NewJWKSetJSON(jwksJSON)
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return NewTokenVerifierWithKeyfunc(kf, issuer), nil
}

// NewTokenVerifierWithKeyfunc создаёт проверку с готовой keyfunc.
func NewTokenVerifierWithKeyfunc(kf keyfunc.Keyfunc, issuer string) *TokenVerifier {
	return &TokenVerifier{jwks: kf, issuer: issuer, leeway: 5 * time.Second}
}

// Verify проверяет подпись (RS256), issuer и срок действия токена.
// Любой отказ возвращается как ErrInvalidToken.
func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (*model.Session, error) {
	claims := &idTokenClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	session := &model.Session{
		IdentityID: claims.Subject,
		Email:      claims.Email,
		Token:      tokenString,
		ExpiresAt:  claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	return session, nil
}
