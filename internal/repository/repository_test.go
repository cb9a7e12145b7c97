package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/smarttalk/internal/config"
	"github.com/bigkaa/smarttalk/internal/database"
	"github.com/bigkaa/smarttalk/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool и функцию очистки.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("smarttalk_test"),
		postgres.WithUsername("smarttalk"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	t.Setenv("ST_DB_HOST", host)
	t.Setenv("ST_DB_PORT", port.Port())
	t.Setenv("ST_DB_NAME", "smarttalk_test")
	t.Setenv("ST_DB_USER", "smarttalk")
	t.Setenv("ST_DB_PASSWORD", "test-password")
	t.Setenv("ST_DB_SSL_MODE", "disable")
	t.Setenv("ST_GEMINI_API_KEY", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Тесты IdentityRepository ---

func TestIdentityRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewIdentityRepository(pool)

	created, err := repo.Create(ctx, "  Alice@Example.com ", "hash-1")
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if created.Email != "alice@example.com" {
		t.Errorf("Email = %q, хотели нормализованный", created.Email)
	}
	if _, err := uuid.Parse(created.ID); err != nil {
		t.Errorf("ID = %q не UUID", created.ID)
	}

	// Повторная регистрация
	if _, err := repo.Create(ctx, "alice@example.com", "hash-2"); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Create() ошибка = %v, хотели ErrConflict", err)
	}

	creds, err := repo.GetCredentials(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetCredentials() ошибка: %v", err)
	}
	if creds.PasswordHash != "hash-1" || creds.Identity.ID != created.ID {
		t.Errorf("GetCredentials() = %+v", creds)
	}

	if _, err := repo.GetCredentials(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCredentials(неизвестный) ошибка = %v, хотели ErrNotFound", err)
	}

	got, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Email != created.Email {
		t.Errorf("GetByID().Email = %q", got.Email)
	}
	if _, err := repo.GetByID(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(некорректный) ошибка = %v, хотели ErrNotFound", err)
	}

	if _, err := repo.Create(ctx, "bob@example.com", "hash-3"); err != nil {
		t.Fatalf("Create(bob) ошибка: %v", err)
	}
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() вернул %d записей, хотели 2", len(list))
	}
	if list[0].ID != created.ID {
		t.Error("List() должен упорядочивать по времени регистрации")
	}
}

// --- Тесты AuthorizationRepository ---

func TestAuthorizationRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	identities := NewIdentityRepository(pool)
	repo := NewAuthorizationRepository(pool)

	ident, err := identities.Create(ctx, "admin@example.com", "hash")
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	exists, err := repo.Exists(ctx, ident.ID)
	if err != nil || exists {
		t.Fatalf("Exists() до Grant = (%v, %v), хотели (false, nil)", exists, err)
	}

	if err := repo.Grant(ctx, ident.ID); err != nil {
		t.Fatalf("Grant() ошибка: %v", err)
	}
	// Повторный Grant идемпотентен
	if err := repo.Grant(ctx, ident.ID); err != nil {
		t.Fatalf("повторный Grant() ошибка: %v", err)
	}

	exists, err = repo.Exists(ctx, ident.ID)
	if err != nil || !exists {
		t.Fatalf("Exists() после Grant = (%v, %v), хотели (true, nil)", exists, err)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 1 || list[0].IdentityID != ident.ID {
		t.Errorf("List() = %+v", list)
	}

	if err := repo.Revoke(ctx, ident.ID); err != nil {
		t.Fatalf("Revoke() ошибка: %v", err)
	}
	if err := repo.Revoke(ctx, ident.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Revoke() ошибка = %v, хотели ErrNotFound", err)
	}

	// Некорректный identity — не admin, без ошибки
	exists, err = repo.Exists(ctx, "garbage")
	if err != nil || exists {
		t.Errorf("Exists(garbage) = (%v, %v)", exists, err)
	}
}

// --- Тесты MessageRepository ---

func TestMessageRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	identities := NewIdentityRepository(pool)
	repo := NewMessageRepository(pool)

	ident, err := identities.Create(ctx, "chat@example.com", "hash")
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	m := model.NewMessage(ident.ID, "Hi", model.SenderUser, time.Now())
	if err := repo.Append(ctx, &m); err != nil {
		t.Fatalf("Append() ошибка: %v", err)
	}
	if m.ID == "" {
		t.Error("Append() не заполнил ID")
	}

	// Сообщение без метки времени и в устаревшем формате отправителя
	_, err = pool.Exec(ctx,
		`INSERT INTO messages (user_id, text, sender, created_at) VALUES ($1, 'legacy', 'ai', NULL)`,
		ident.ID)
	if err != nil {
		t.Fatalf("вставка legacy-сообщения: %v", err)
	}

	list, err := repo.ListByIdentity(ctx, ident.ID)
	if err != nil {
		t.Fatalf("ListByIdentity() ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByIdentity() вернул %d, хотели 2", len(list))
	}
	for _, got := range list {
		if got.Text == "legacy" {
			if got.Sender != model.SenderAssistant {
				t.Errorf("legacy Sender = %q, хотели assistant", got.Sender)
			}
			if got.CreatedAt != nil {
				t.Errorf("legacy CreatedAt = %v, хотели nil", got.CreatedAt)
			}
		}
	}

	empty, err := repo.ListByIdentity(ctx, uuid.New().String())
	if err != nil || len(empty) != 0 {
		t.Errorf("ListByIdentity(чужой) = (%v, %v)", empty, err)
	}
}

// --- Тесты MessageFeed ---

func TestMessageFeed_LiveUpdates(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	identities := NewIdentityRepository(pool)
	messages := NewMessageRepository(pool)
	ident, err := identities.Create(ctx, "feed@example.com", "hash")
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	f := NewMessageFeed(pool, messages, logger, WithReconnectDelay(100*time.Millisecond))
	f.Start(ctx)
	defer f.Stop()

	s := f.Subscribe(ident.ID)
	defer s.Close()

	// Начальный снимок — пустая переписка
	select {
	case snap := <-s.C():
		if len(snap) != 0 {
			t.Fatalf("начальный снимок содержит %d сообщений", len(snap))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("таймаут начального снимка")
	}

	// Даём LISTEN-циклу подключиться перед записью
	time.Sleep(300 * time.Millisecond)

	m := model.NewMessage(ident.ID, "Hi", model.SenderUser, time.Now())
	if err := messages.Append(ctx, &m); err != nil {
		t.Fatalf("Append() ошибка: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-s.C():
			if len(snap) == 1 && snap[0].ID == m.ID {
				return
			}
		case <-deadline:
			t.Fatal("уведомление о новом сообщении не получено")
		}
	}
}

func TestMessageFeed_WithoutPool(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	repo := &staticMessages{msgs: []model.Message{{ID: "1", Text: "a", Sender: model.SenderUser}}}

	f := NewMessageFeed(nil, repo, logger)
	f.Start(context.Background())

	s := f.Subscribe("any")
	select {
	case snap := <-s.C():
		if len(snap) != 1 {
			t.Errorf("снимок = %v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("таймаут начального снимка")
	}

	f.Notify("any")
	select {
	case snap := <-s.C():
		if len(snap) != 1 {
			t.Errorf("снимок после Notify = %v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("Notify не разослал снимок")
	}

	f.Stop()
	if !s.Closed() {
		t.Error("Stop() должен закрыть подписки")
	}
}

// staticMessages — MessageRepository с фиксированной перепиской.
type staticMessages struct {
	msgs []model.Message
}

func (s *staticMessages) Append(_ context.Context, m *model.Message) error {
	m.ID = uuid.New().String()
	s.msgs = append(s.msgs, *m)
	return nil
}

func (s *staticMessages) ListByIdentity(context.Context, string) ([]model.Message, error) {
	return append([]model.Message(nil), s.msgs...), nil
}

func TestValidID(t *testing.T) {
	if !validID(uuid.New().String()) {
		t.Error("корректный UUID отклонён")
	}
	if validID("abc") || validID("") {
		t.Error("некорректный идентификатор принят")
	}
}
