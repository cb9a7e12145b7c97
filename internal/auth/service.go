// Пакет auth — сервис аутентификации SmartTalk.
// Учётные записи с паролями bcrypt, RS256 id-токены с публикацией JWKS
// и поток смены сессий для каждого браузерного клиента.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/feed"
	"github.com/bigkaa/smarttalk/internal/repository"
)

// IdentityStore — хранилище учётных записей, нужное сервису.
// Реализуется repository.IdentityRepository.
type IdentityStore interface {
	Create(ctx context.Context, email, passwordHash string) (*model.Identity, error)
	GetCredentials(ctx context.Context, email string) (*repository.Credentials, error)
}

// Options — параметры сервиса.
type Options struct {
	// BcryptCost — стоимость bcrypt (по умолчанию bcrypt.DefaultCost)
	BcryptCost int
	// MinPasswordLength — минимальная длина пароля в символах
	MinPasswordLength int
}

// clientState — текущая сессия клиента и номер последнего уведомления.
type clientState struct {
	seq     uint64
	session *model.Session
}

// Service — сервис аутентификации.
// Для каждого клиента (браузера) хранит текущую сессию и рассылает
// её смену подписчикам; номер уведомления монотонно растёт.
type Service struct {
	identities IdentityStore
	issuer     *TokenIssuer
	verifier   *TokenVerifier
	opts       Options
	logger     *slog.Logger

	mu      sync.Mutex
	clients map[string]*clientState
	hub     *feed.Hub[string, model.SessionChange]
}

// NewService создаёт сервис аутентификации.
func NewService(identities IdentityStore, issuer *TokenIssuer, verifier *TokenVerifier, opts Options, logger *slog.Logger) *Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.MinPasswordLength == 0 {
		opts.MinPasswordLength = 6
	}
	return &Service{
		identities: identities,
		issuer:     issuer,
		verifier:   verifier,
		opts:       opts,
		logger:     logger.With(slog.String("component", "auth")),
		clients:    make(map[string]*clientState),
		hub:        feed.NewHub[string, model.SessionChange](),
	}
}

// Subscribe подписывает на смену сессии клиента.
// Текущее состояние доставляется сразу. Close потока отписывает.
func (s *Service) Subscribe(clientID string) *feed.Stream[model.SessionChange] {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.hub.Subscribe(clientID)
	st := s.state(clientID)
	stream.Publish(model.SessionChange{Seq: st.seq, Session: st.session})
	return stream
}

// SignUp регистрирует учётную запись и открывает сессию клиента.
func (s *Service) SignUp(ctx context.Context, clientID, email, password string) (*model.Session, error) {
	email = repository.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < s.opts.MinPasswordLength {
		return nil, newError(CodeWeakPassword,
			fmt.Sprintf("Password should be at least %d characters.", s.opts.MinPasswordLength), nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return nil, newError(CodeWeakPassword, "Password cannot be used.", err)
	}

	identity, err := s.identities.Create(ctx, email, string(hash))
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, newError(CodeEmailInUse, "An account with this email already exists.", err)
		}
		s.logger.Error("Ошибка регистрации", slog.String("error", err.Error()))
		return nil, newError(CodeServiceUnavailable, "Sign-up is temporarily unavailable. Please try again later.", err)
	}

	session, err := s.issuer.Issue(*identity)
	if err != nil {
		return nil, newError(CodeServiceUnavailable, "Sign-up is temporarily unavailable. Please try again later.", err)
	}

	s.logger.Info("Учётная запись создана",
		slog.String("identity", identity.ID),
		slog.String("client", clientID),
	)
	s.announce(clientID, session)
	return session, nil
}

// SignIn проверяет пароль и открывает сессию клиента.
func (s *Service) SignIn(ctx context.Context, clientID, email, password string) (*model.Session, error) {
	email = repository.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	creds, err := s.identities.GetCredentials(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(CodeInvalidCredential, "Invalid email or password.", err)
		}
		s.logger.Error("Ошибка входа", slog.String("error", err.Error()))
		return nil, newError(CodeServiceUnavailable, "Sign-in is temporarily unavailable. Please try again later.", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return nil, newError(CodeInvalidCredential, "Invalid email or password.", err)
	}

	session, err := s.issuer.Issue(creds.Identity)
	if err != nil {
		return nil, newError(CodeServiceUnavailable, "Sign-in is temporarily unavailable. Please try again later.", err)
	}

	s.logger.Info("Вход выполнен",
		slog.String("identity", creds.Identity.ID),
		slog.String("client", clientID),
	)
	s.announce(clientID, session)
	return session, nil
}

// SignOut закрывает сессию клиента.
func (s *Service) SignOut(clientID string) {
	s.announce(clientID, nil)
}

// Reconcile сверяет сессию клиента с токеном из cookie браузера
// (после рестарта процесса или вытеснения клиента) и возвращает
// номер актуального уведомления. Невалидный токен означает выход.
func (s *Service) Reconcile(ctx context.Context, clientID, token string) uint64 {
	s.mu.Lock()
	st := s.state(clientID)
	if (token == "" && st.session == nil) || (st.session != nil && st.session.Token == token) {
		seq := st.seq
		s.mu.Unlock()
		return seq
	}
	s.mu.Unlock()

	var session *model.Session
	if token != "" {
		verified, err := s.Verify(ctx, token)
		if err != nil {
			s.logger.Debug("Токен клиента отклонён",
				slog.String("client", clientID),
				slog.String("error", err.Error()),
			)
		} else {
			session = verified
		}
	}
	return s.announce(clientID, session)
}

// Verify проверяет id-токен (Bearer API).
func (s *Service) Verify(ctx context.Context, token string) (*model.Session, error) {
	return s.verifier.Verify(ctx, token)
}

// Seq возвращает номер последнего уведомления клиента.
func (s *Service) Seq(clientID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state(clientID).seq
}

// Forget удаляет состояние клиента (клиент вытеснен из реестра).
// Состояние клиента, у которого снова есть подписчики, сохраняется.
func (s *Service) Forget(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hub.Count(clientID) > 0 {
		return
	}
	delete(s.clients, clientID)
}

// JWKS возвращает публичные ключи проверки id-токенов.
func (s *Service) JWKS() json.RawMessage {
	return s.issuer.JWKS()
}

// announce сохраняет новую сессию клиента и рассылает уведомление.
func (s *Service) announce(clientID string, session *model.Session) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(clientID)
	st.seq++
	st.session = session
	s.hub.Publish(clientID, model.SessionChange{Seq: st.seq, Session: session})
	return st.seq
}

// state возвращает состояние клиента, создавая его. Вызывается под s.mu.
func (s *Service) state(clientID string) *clientState {
	st, ok := s.clients[clientID]
	if !ok {
		st = &clientState{}
		s.clients[clientID] = st
	}
	return st
}

func validateEmail(email string) error {
	if email == "" || strings.ContainsAny(email, " \t") {
		return newError(CodeInvalidEmail, "The email address is badly formatted.", nil)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return newError(CodeInvalidEmail, "The email address is badly formatted.", err)
	}
	return nil
}
