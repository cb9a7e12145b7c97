package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/repository"
)

const testIssuer = "smarttalk-test"

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// memIdentities — IdentityStore в памяти.
type memIdentities struct {
	mu    sync.Mutex
	byKey map[string]*repository.Credentials
	err   error
}

func newMemIdentities() *memIdentities {
	return &memIdentities{byKey: make(map[string]*repository.Credentials)}
}

func (m *memIdentities) Create(_ context.Context, email, hash string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if _, ok := m.byKey[email]; ok {
		return nil, repository.ErrConflict
	}
	ident := model.Identity{ID: uuid.New().String(), Email: email, CreatedAt: time.Now()}
	m.byKey[email] = &repository.Credentials{Identity: ident, PasswordHash: hash}
	return &ident, nil
}

func (m *memIdentities) GetCredentials(_ context.Context, email string) (*repository.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.byKey[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

// newTestService создаёт сервис с ключом в памяти и минимальной стоимостью bcrypt.
func newTestService(t *testing.T) (*Service, *memIdentities) {
	t.Helper()
	key := generateTestKey(t)
	issuer := NewTokenIssuer(key, testIssuer, time.Hour)
	verifier, err := NewTokenVerifier(issuer.JWKS(), testIssuer)
	if err != nil {
		t.Fatalf("NewTokenVerifier() ошибка: %v", err)
	}
	store := newMemIdentities()
	svc := NewService(store, issuer, verifier, Options{BcryptCost: bcrypt.MinCost, MinPasswordLength: 6}, testLogger())
	return svc, store
}

// nextChange читает уведомление с таймаутом.
func nextChange(t *testing.T, svcStream interface {
	C() <-chan model.SessionChange
}) model.SessionChange {
	t.Helper()
	select {
	case ch := <-svcStream.C():
		return ch
	case <-time.After(time.Second):
		t.Fatal("таймаут ожидания уведомления о сессии")
		return model.SessionChange{}
	}
}

// --- Токены ---

func TestTokenIssueVerify(t *testing.T) {
	key := generateTestKey(t)
	issuer := NewTokenIssuer(key, testIssuer, time.Hour)
	verifier, err := NewTokenVerifier(issuer.JWKS(), testIssuer)
	if err != nil {
		t.Fatal(err)
	}

	ident := model.Identity{ID: uuid.New().String(), Email: "a@example.com"}
	session, err := issuer.Issue(ident)
	if err != nil {
		t.Fatalf("Issue() ошибка: %v", err)
	}

	got, err := verifier.Verify(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("Verify() ошибка: %v", err)
	}
	if got.IdentityID != ident.ID || got.Email != ident.Email {
		t.Errorf("Verify() = %+v", got)
	}
	if !got.ExpiresAt.Equal(session.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, хотели %v", got.ExpiresAt, session.ExpiresAt)
	}
}

func TestTokenVerify_Rejects(t *testing.T) {
	key := generateTestKey(t)
	ident := model.Identity{ID: uuid.New().String(), Email: "a@example.com"}

	expiredIssuer := NewTokenIssuer(key, testIssuer, time.Minute)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := expiredIssuer.Issue(ident)
	if err != nil {
		t.Fatal(err)
	}

	foreign, err := NewTokenIssuer(key, "someone-else", time.Hour).Issue(ident)
	if err != nil {
		t.Fatal(err)
	}

	otherKey, err := NewTokenIssuer(generateTestKey(t), testIssuer, time.Hour).Issue(ident)
	if err != nil {
		t.Fatal(err)
	}

	verifier, err := NewTokenVerifier(JWKSJSON(&key.PublicKey, KeyID(&key.PublicKey)), testIssuer)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"просроченный", expired.Token},
		{"чужой issuer", foreign.Token},
		{"чужой ключ", otherKey.Token},
		{"мусор", "not.a.token"},
		{"пустой", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() ошибка = %v, хотели ErrInvalidToken", err)
			}
		})
	}
}

// --- Ключи ---

func TestParsePrivateKeyPEM(t *testing.T) {
	key := generateTestKey(t)

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"PKCS#1", pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), false},
		{"PKCS#8", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}), false},
		{"неизвестный тип", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1}}), true},
		{"не PEM", []byte("garbage"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrivateKeyPEM(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePrivateKeyPEM() ошибка = %v, wantErr = %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.N.Cmp(key.N) != 0 {
				t.Error("разобран другой ключ")
			}
		})
	}
}

func TestLoadOrGenerateKey(t *testing.T) {
	generated, err := LoadOrGenerateKey("")
	if err != nil || generated == nil {
		t.Fatalf("LoadOrGenerateKey(\"\") = (%v, %v)", generated, err)
	}

	path := filepath.Join(t.TempDir(), "signing.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(generated)})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadOrGenerateKey(path)
	if err != nil {
		t.Fatalf("LoadOrGenerateKey(path) ошибка: %v", err)
	}
	if KeyID(&loaded.PublicKey) != KeyID(&generated.PublicKey) {
		t.Error("загружен другой ключ")
	}

	if _, err := LoadOrGenerateKey(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("ожидалась ошибка для отсутствующего файла")
	}
}

// --- Сервис ---

func TestService_SignUpAndSignIn(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.SignUp(ctx, "c1", " New@Example.com ", "secret1")
	if err != nil {
		t.Fatalf("SignUp() ошибка: %v", err)
	}
	if created.Email != "new@example.com" {
		t.Errorf("Email = %q, хотели нормализованный", created.Email)
	}

	signedIn, err := svc.SignIn(ctx, "c2", "new@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn() ошибка: %v", err)
	}
	if signedIn.IdentityID != created.IdentityID {
		t.Errorf("SignIn вернул identity %q, хотели %q", signedIn.IdentityID, created.IdentityID)
	}
}

func TestService_Rejections(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "c", "taken@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		signUp   bool
		email    string
		password string
		wantCode string
	}{
		{"регистрация занятого email", true, "taken@example.com", "secret2", CodeEmailInUse},
		{"короткий пароль", true, "short@example.com", "12345", CodeWeakPassword},
		{"некорректный email", true, "not-an-email", "secret1", CodeInvalidEmail},
		{"пустой email", false, "", "secret1", CodeInvalidEmail},
		{"неверный пароль", false, "taken@example.com", "wrong-pass", CodeInvalidCredential},
		{"неизвестный пользователь", false, "ghost@example.com", "secret1", CodeInvalidCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.signUp {
				_, err = svc.SignUp(ctx, "c", tt.email, tt.password)
			} else {
				_, err = svc.SignIn(ctx, "c", tt.email, tt.password)
			}
			var authErr *Error
			if !errors.As(err, &authErr) {
				t.Fatalf("ошибка = %v, хотели *auth.Error", err)
			}
			if authErr.Code != tt.wantCode {
				t.Errorf("Code = %q, хотели %q", authErr.Code, tt.wantCode)
			}
			if authErr.Message == "" {
				t.Error("Message пустой")
			}
		})
	}

	// Сбой хранилища — отдельный код, причина доступна через errors.Is
	store.err = errors.New("db down")
	_, err := svc.SignIn(ctx, "c", "taken@example.com", "secret1")
	var authErr *Error
	if !errors.As(err, &authErr) || authErr.Code != CodeServiceUnavailable {
		t.Errorf("ошибка = %v, хотели %s", err, CodeServiceUnavailable)
	}
	if !errors.Is(err, store.err) {
		t.Error("причина сбоя потеряна")
	}
}

func TestService_SessionFeed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	stream := svc.Subscribe("browser")
	defer stream.Close()

	// Начальное состояние — без сессии
	initial := nextChange(t, stream)
	if initial.Seq != 0 || initial.Session != nil {
		t.Fatalf("начальное уведомление = %+v", initial)
	}

	session, err := svc.SignUp(ctx, "browser", "feed@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	change := nextChange(t, stream)
	if change.Seq != 1 || change.Session == nil || change.Session.IdentityID != session.IdentityID {
		t.Fatalf("уведомление о входе = %+v", change)
	}

	// Другой клиент не получает чужих уведомлений
	other := svc.Subscribe("other")
	defer other.Close()
	if c := nextChange(t, other); c.Session != nil {
		t.Error("другой клиент получил чужую сессию")
	}

	svc.SignOut("browser")
	change = nextChange(t, stream)
	if change.Seq != 2 || change.Session != nil {
		t.Fatalf("уведомление о выходе = %+v", change)
	}
	if svc.Seq("browser") != 2 {
		t.Errorf("Seq() = %d, хотели 2", svc.Seq("browser"))
	}

	// Поздний подписчик получает текущее состояние
	late := svc.Subscribe("browser")
	defer late.Close()
	if c := nextChange(t, late); c.Seq != 2 || c.Session != nil {
		t.Errorf("поздний подписчик получил %+v", c)
	}
}

func TestService_Reconcile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "old-client", "restore@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}

	// Новый клиент (после рестарта) с токеном из cookie
	seq := svc.Reconcile(ctx, "new-client", session.Token)
	if seq != 1 {
		t.Errorf("Reconcile() = %d, хотели 1", seq)
	}
	stream := svc.Subscribe("new-client")
	defer stream.Close()
	c := nextChange(t, stream)
	if c.Session == nil || c.Session.IdentityID != session.IdentityID {
		t.Fatalf("восстановленная сессия = %+v", c)
	}

	// Тот же токен — без нового уведомления
	if seq := svc.Reconcile(ctx, "new-client", session.Token); seq != 1 {
		t.Errorf("повторный Reconcile() = %d, хотели 1", seq)
	}

	// Невалидный токен — выход
	if seq := svc.Reconcile(ctx, "new-client", "forged"); seq != 2 {
		t.Errorf("Reconcile(forged) = %d, хотели 2", seq)
	}
	if c := nextChange(t, stream); c.Session != nil {
		t.Error("после невалидного токена сессия должна быть закрыта")
	}

	// Без cookie и без сессии — ничего не меняется
	if seq := svc.Reconcile(ctx, "new-client", ""); seq != 2 {
		t.Errorf("Reconcile(\"\") = %d, хотели 2", seq)
	}

	// Пока есть подписчик, Forget сохраняет состояние
	svc.Forget("new-client")
	if svc.Seq("new-client") != 2 {
		t.Errorf("Forget() с подписчиком: Seq = %d, хотели 2", svc.Seq("new-client"))
	}

	stream.Close()
	svc.Forget("new-client")
	if svc.Seq("new-client") != 0 {
		t.Error("Forget() не удалил состояние клиента")
	}
}
